package gpgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Precision is the shader numeric precision class of a format.
type Precision uint8

const (
	// PrecisionLow is used for 1-byte channels.
	PrecisionLow Precision = iota
	// PrecisionMedium is the reduced precision used for 2-byte channels.
	PrecisionMedium
	// PrecisionHigh is used for 4-byte channels.
	PrecisionHigh
)

// String returns the GLSL-style qualifier name.
func (p Precision) String() string {
	switch p {
	case PrecisionLow:
		return "lowp"
	case PrecisionMedium:
		return "mediump"
	default:
		return "highp"
	}
}

// SampleKind is the kind of texture binding an input is declared as.
type SampleKind uint8

const (
	// SampleFloat binds a float texture.
	SampleFloat SampleKind = iota
	// SampleSint binds a signed integer texture.
	SampleSint
	// SampleUint binds an unsigned integer texture.
	SampleUint
)

// FormatDescriptor is the complete set of storage and shader descriptors
// for a buffer of a given element type and vector width.
type FormatDescriptor struct {
	Type   ElementType
	Vector int

	// Bytes is the width of one channel.
	Bytes int
	// InternalFormat is the device storage layout name, e.g. "RG16I".
	InternalFormat string
	// HostFormat is the host transfer layout name, e.g. "RG_INTEGER".
	HostFormat string
	// HostType is the host transfer channel type, e.g. "UNSIGNED_SHORT".
	HostType string
	// Storage is the device texture format.
	Storage gputypes.TextureFormat

	Sample SampleKind
	// InputType is the shader declaration of an input binding.
	InputType string
	// OutputType is the shader type of an output variable.
	OutputType string
	// TexelType is the 4-component shader type returned by texture loads.
	TexelType string
	Precision Precision
}

// TexelBytes returns the size of one texel in bytes.
func (f FormatDescriptor) TexelBytes() int {
	return f.Bytes * f.Vector
}

// Integer reports whether the format holds integers.
func (f FormatDescriptor) Integer() bool { return f.Type.Integer() }

// Unsigned reports whether the format holds unsigned integers.
func (f FormatDescriptor) Unsigned() bool { return f.Type.Unsigned() }

// NormalizeVector validates a vector width. Width 3 is promoted to 4; the
// returned flag reports the promotion so callers can warn about it.
func NormalizeVector(vector int) (int, bool, error) {
	switch vector {
	case 1, 2, 4:
		return vector, false, nil
	case 3:
		return 4, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %d", ErrInvalidVector, vector)
	}
}

// DeriveFormat returns the descriptor for (t, vector). It is a pure
// function: equal inputs yield equal descriptors, and vector 3 yields the
// descriptor of vector 4.
func DeriveFormat(t ElementType, vector int) (FormatDescriptor, error) {
	if !t.Valid() {
		return FormatDescriptor{}, fmt.Errorf("%w: element type %d", ErrConfiguration, uint8(t))
	}
	vector, _, err := NormalizeVector(vector)
	if err != nil {
		return FormatDescriptor{}, err
	}

	f := FormatDescriptor{
		Type:   t,
		Vector: vector,
		Bytes:  t.Bytes(),
	}

	scalar := "f32"
	switch {
	case t.Unsigned():
		f.Sample, scalar = SampleUint, "u32"
	case t.Integer():
		f.Sample, scalar = SampleSint, "i32"
	}
	f.InputType = "texture_2d<" + scalar + ">"
	f.TexelType = "vec4<" + scalar + ">"
	if vector == 1 {
		f.OutputType = scalar
	} else {
		f.OutputType = fmt.Sprintf("vec%d<%s>", vector, scalar)
	}

	f.Precision = [...]Precision{PrecisionLow, PrecisionMedium, PrecisionHigh, PrecisionHigh}[f.Bytes-1]

	suffix := "F"
	if t.Unsigned() {
		suffix = "UI"
	} else if t.Integer() {
		suffix = "I"
	}
	f.InternalFormat = fmt.Sprintf("%s%d%s", channelNames[vector-1], f.Bytes*8, suffix)

	f.HostFormat = hostChannelNames[vector-1]
	if t.Integer() {
		f.HostFormat += "_INTEGER"
	}

	switch {
	case !t.Integer():
		f.HostType = "FLOAT"
	case f.Bytes == 1:
		f.HostType = "BYTE"
	case f.Bytes == 2:
		f.HostType = "SHORT"
	default:
		f.HostType = "INT"
	}
	if t.Unsigned() {
		f.HostType = "UNSIGNED_" + f.HostType
	}

	f.Storage = storageFormats[storageKey{t, vector}]
	return f, nil
}

var (
	channelNames     = [...]string{"R", "RG", "RGB", "RGBA"}
	hostChannelNames = [...]string{"RED", "RG", "RGB", "RGBA"}
)

type storageKey struct {
	t      ElementType
	vector int
}

// storageFormats maps (type, width) to the device texture format. Every
// entry is a renderable, non-normalized format so values pass through
// exactly.
var storageFormats = map[storageKey]gputypes.TextureFormat{
	{Float32, 1}: gputypes.TextureFormatR32Float,
	{Float32, 2}: gputypes.TextureFormatRG32Float,
	{Float32, 4}: gputypes.TextureFormatRGBA32Float,
	{Int8, 1}:    gputypes.TextureFormatR8Sint,
	{Int8, 2}:    gputypes.TextureFormatRG8Sint,
	{Int8, 4}:    gputypes.TextureFormatRGBA8Sint,
	{Int16, 1}:   gputypes.TextureFormatR16Sint,
	{Int16, 2}:   gputypes.TextureFormatRG16Sint,
	{Int16, 4}:   gputypes.TextureFormatRGBA16Sint,
	{Int32, 1}:   gputypes.TextureFormatR32Sint,
	{Int32, 2}:   gputypes.TextureFormatRG32Sint,
	{Int32, 4}:   gputypes.TextureFormatRGBA32Sint,
	{Uint8, 1}:   gputypes.TextureFormatR8Uint,
	{Uint8, 2}:   gputypes.TextureFormatRG8Uint,
	{Uint8, 4}:   gputypes.TextureFormatRGBA8Uint,
	{Uint16, 1}:  gputypes.TextureFormatR16Uint,
	{Uint16, 2}:  gputypes.TextureFormatRG16Uint,
	{Uint16, 4}:  gputypes.TextureFormatRGBA16Uint,
	{Uint32, 1}:  gputypes.TextureFormatR32Uint,
	{Uint32, 2}:  gputypes.TextureFormatRG32Uint,
	{Uint32, 4}:  gputypes.TextureFormatRGBA32Uint,
}
