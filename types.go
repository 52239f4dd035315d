package gpgpu

import (
	"fmt"
	"reflect"
)

// ElementType describes the numeric type of a single buffer channel.
// It is an immutable descriptor of element width and signedness.
type ElementType uint8

const (
	// Float32 is a 32-bit IEEE-754 float.
	Float32 ElementType = iota
	// Int8 is a signed 8-bit integer.
	Int8
	// Int16 is a signed 16-bit integer.
	Int16
	// Int32 is a signed 32-bit integer.
	Int32
	// Uint8 is an unsigned 8-bit integer.
	Uint8
	// Uint16 is an unsigned 16-bit integer.
	Uint16
	// Uint32 is an unsigned 32-bit integer.
	Uint32
)

// Bytes returns the width of one channel in bytes (1, 2 or 4).
func (t ElementType) Bytes() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	default:
		return 4
	}
}

// Integer reports whether the type is integral.
func (t ElementType) Integer() bool {
	return t != Float32
}

// Unsigned reports whether the type is an unsigned integer.
func (t ElementType) Unsigned() bool {
	return t == Uint8 || t == Uint16 || t == Uint32
}

// Valid reports whether t is one of the supported element types.
func (t ElementType) Valid() bool {
	return t <= Uint32
}

// String returns the lowercase type name.
func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// Number is the set of host element types a buffer can hold.
type Number interface {
	~float32 | ~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32
}

// ElementTypeOf returns the ElementType matching the host type T.
func ElementTypeOf[T Number]() ElementType {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Uint8:
		return Uint8
	case reflect.Uint16:
		return Uint16
	case reflect.Uint32:
		return Uint32
	default:
		return Float32
	}
}

// WrapMode is the edge policy applied when a kernel addresses a texel
// outside an input's extent.
type WrapMode uint8

const (
	// WrapClamp clamps coordinates to the edge texel.
	WrapClamp WrapMode = iota
	// WrapRepeat wraps coordinates around.
	WrapRepeat
	// WrapMirror wraps coordinates with mirrored repetition.
	WrapMirror
)

// String returns the mode name.
func (m WrapMode) String() string {
	switch m {
	case WrapClamp:
		return "clamp"
	case WrapRepeat:
		return "repeat"
	case WrapMirror:
		return "mirror"
	default:
		return fmt.Sprintf("WrapMode(%d)", uint8(m))
	}
}

// Wrap holds the edge policy for both texture axes.
type Wrap struct {
	S WrapMode
	T WrapMode
}

// Extent is a 2-D placement of texels.
type Extent struct {
	Width  int
	Height int
}

// Texels returns Width*Height.
func (e Extent) Texels() int {
	return e.Width * e.Height
}

// String returns "WxH".
func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
