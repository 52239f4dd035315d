package gpgpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// UniformKind is the closed set of uniform value kinds a kernel can
// declare.
type UniformKind uint8

const (
	// UniformFloat is an f32 scalar.
	UniformFloat UniformKind = iota
	// UniformInt is an i32 scalar.
	UniformInt
	// UniformUint is a u32 scalar.
	UniformUint
	// UniformBool is stored as a u32 that is 0 or 1.
	UniformBool
	// UniformVec2 is a vec2<f32>.
	UniformVec2
	// UniformVec3 is a vec3<f32>.
	UniformVec3
	// UniformVec4 is a vec4<f32>.
	UniformVec4
	// UniformIVec2 is a vec2<i32>.
	UniformIVec2
	// UniformIVec3 is a vec3<i32>.
	UniformIVec3
	// UniformIVec4 is a vec4<i32>.
	UniformIVec4
	// UniformUVec2 is a vec2<u32>.
	UniformUVec2
	// UniformUVec3 is a vec3<u32>.
	UniformUVec3
	// UniformUVec4 is a vec4<u32>.
	UniformUVec4
	// UniformMat2 is a column-major mat2x2<f32>.
	UniformMat2
	// UniformMat3 is a column-major mat3x3<f32>.
	UniformMat3
	// UniformMat4 is a column-major mat4x4<f32>.
	UniformMat4
)

// uniformLayout is one row of the dispatch table.
type uniformLayout struct {
	name string
	wgsl string
	// lanes is the number of scalar components.
	lanes int
	// columns and rows describe matrices; columns is 0 otherwise.
	columns, rows int
	scalar        scalarKind
}

type scalarKind uint8

const (
	scalarFloat scalarKind = iota
	scalarInt
	scalarUint
)

var uniformLayouts = [...]uniformLayout{
	UniformFloat: {name: "float", wgsl: "f32", lanes: 1, scalar: scalarFloat},
	UniformInt:   {name: "int", wgsl: "i32", lanes: 1, scalar: scalarInt},
	UniformUint:  {name: "uint", wgsl: "u32", lanes: 1, scalar: scalarUint},
	UniformBool:  {name: "bool", wgsl: "u32", lanes: 1, scalar: scalarUint},
	UniformVec2:  {name: "vec2", wgsl: "vec2<f32>", lanes: 2, scalar: scalarFloat},
	UniformVec3:  {name: "vec3", wgsl: "vec3<f32>", lanes: 3, scalar: scalarFloat},
	UniformVec4:  {name: "vec4", wgsl: "vec4<f32>", lanes: 4, scalar: scalarFloat},
	UniformIVec2: {name: "ivec2", wgsl: "vec2<i32>", lanes: 2, scalar: scalarInt},
	UniformIVec3: {name: "ivec3", wgsl: "vec3<i32>", lanes: 3, scalar: scalarInt},
	UniformIVec4: {name: "ivec4", wgsl: "vec4<i32>", lanes: 4, scalar: scalarInt},
	UniformUVec2: {name: "uvec2", wgsl: "vec2<u32>", lanes: 2, scalar: scalarUint},
	UniformUVec3: {name: "uvec3", wgsl: "vec3<u32>", lanes: 3, scalar: scalarUint},
	UniformUVec4: {name: "uvec4", wgsl: "vec4<u32>", lanes: 4, scalar: scalarUint},
	UniformMat2:  {name: "mat2", wgsl: "mat2x2<f32>", lanes: 4, columns: 2, rows: 2, scalar: scalarFloat},
	UniformMat3:  {name: "mat3", wgsl: "mat3x3<f32>", lanes: 9, columns: 3, rows: 3, scalar: scalarFloat},
	UniformMat4:  {name: "mat4", wgsl: "mat4x4<f32>", lanes: 16, columns: 4, rows: 4, scalar: scalarFloat},
}

// Valid reports whether k is a known kind.
func (k UniformKind) Valid() bool { return int(k) < len(uniformLayouts) }

// String returns the kind name.
func (k UniformKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("UniformKind(%d)", uint8(k))
	}
	return uniformLayouts[k].name
}

// WGSLType returns the shader type the uniform is declared with.
func (k UniformKind) WGSLType() string { return uniformLayouts[k].wgsl }

// Lanes returns the number of scalar components.
func (k UniformKind) Lanes() int { return uniformLayouts[k].lanes }

// UniformValue is a tagged union over UniformKind. The zero value is a
// float 0.
type UniformValue struct {
	kind UniformKind
	f    [16]float32
	i    [4]int32
	u    [4]uint32
}

// Float returns a float uniform.
func Float(v float32) UniformValue { return UniformValue{kind: UniformFloat, f: [16]float32{v}} }

// Int returns an int uniform.
func Int(v int32) UniformValue { return UniformValue{kind: UniformInt, i: [4]int32{v}} }

// Uint returns a uint uniform.
func Uint(v uint32) UniformValue { return UniformValue{kind: UniformUint, u: [4]uint32{v}} }

// Bool returns a bool uniform.
func Bool(v bool) UniformValue {
	u := UniformValue{kind: UniformBool}
	if v {
		u.u[0] = 1
	}
	return u
}

// Vec2 returns a vec2<f32> uniform.
func Vec2(x, y float32) UniformValue { return UniformValue{kind: UniformVec2, f: [16]float32{x, y}} }

// Vec3 returns a vec3<f32> uniform.
func Vec3(x, y, z float32) UniformValue {
	return UniformValue{kind: UniformVec3, f: [16]float32{x, y, z}}
}

// Vec4 returns a vec4<f32> uniform.
func Vec4(x, y, z, w float32) UniformValue {
	return UniformValue{kind: UniformVec4, f: [16]float32{x, y, z, w}}
}

// IVec returns an integer vector uniform of 2, 3 or 4 components. It
// panics for any other number of components.
func IVec(v ...int32) UniformValue {
	u := UniformValue{kind: vectorKind(UniformIVec2, len(v))}
	copy(u.i[:], v)
	return u
}

// UVec returns an unsigned vector uniform of 2, 3 or 4 components. It
// panics for any other number of components.
func UVec(v ...uint32) UniformValue {
	u := UniformValue{kind: vectorKind(UniformUVec2, len(v))}
	copy(u.u[:], v)
	return u
}

func vectorKind(base UniformKind, n int) UniformKind {
	if n < 2 || n > 4 {
		panic(fmt.Sprintf("gpgpu: vector uniform needs 2 to 4 components, got %d", n))
	}
	return base + UniformKind(n-2)
}

// Mat2 returns a 2x2 matrix uniform from column-major values.
func Mat2(m [4]float32) UniformValue {
	u := UniformValue{kind: UniformMat2}
	copy(u.f[:], m[:])
	return u
}

// Mat3 returns a 3x3 matrix uniform from column-major values.
func Mat3(m [9]float32) UniformValue {
	u := UniformValue{kind: UniformMat3}
	copy(u.f[:], m[:])
	return u
}

// Mat4 returns a 4x4 matrix uniform from column-major values.
func Mat4(m [16]float32) UniformValue { return UniformValue{kind: UniformMat4, f: m} }

// ZeroUniform returns the zero value of kind k.
func ZeroUniform(k UniformKind) UniformValue { return UniformValue{kind: k} }

// Kind returns the value kind.
func (v UniformValue) Kind() UniformKind { return v.kind }

// Floats returns the float components. It is empty for integer kinds.
func (v UniformValue) Floats() []float32 {
	if uniformLayouts[v.kind].scalar != scalarFloat {
		return nil
	}
	out := make([]float32, v.kind.Lanes())
	copy(out, v.f[:])
	return out
}

// Ints returns the signed integer components.
func (v UniformValue) Ints() []int32 {
	if uniformLayouts[v.kind].scalar != scalarInt {
		return nil
	}
	out := make([]int32, v.kind.Lanes())
	copy(out, v.i[:])
	return out
}

// Uints returns the unsigned integer components.
func (v UniformValue) Uints() []uint32 {
	if uniformLayouts[v.kind].scalar != scalarUint {
		return nil
	}
	out := make([]uint32, v.kind.Lanes())
	copy(out, v.u[:])
	return out
}

// Lane returns component n converted to float64.
func (v UniformValue) Lane(n int) float64 {
	switch uniformLayouts[v.kind].scalar {
	case scalarInt:
		return float64(v.i[n])
	case scalarUint:
		return float64(v.u[n])
	default:
		return float64(v.f[n])
	}
}

// Encode returns the value in the WGSL uniform address-space layout,
// padded to a multiple of 16 bytes. Matrix columns are 16-byte aligned
// except for mat2x2, whose columns are 8 bytes.
func (v UniformValue) Encode() []byte {
	l := uniformLayouts[v.kind]
	stride := 4
	if l.columns > 0 {
		stride = columnStride(l.rows)
	}

	var buf []byte
	if l.columns == 0 {
		buf = make([]byte, 16)
		for n := 0; n < l.lanes; n++ {
			binary.LittleEndian.PutUint32(buf[n*4:], v.bits(n))
		}
		return buf
	}

	buf = make([]byte, pad16(l.columns*stride))
	for c := 0; c < l.columns; c++ {
		for r := 0; r < l.rows; r++ {
			binary.LittleEndian.PutUint32(buf[c*stride+r*4:], v.bits(c*l.rows+r))
		}
	}
	return buf
}

func (v UniformValue) bits(n int) uint32 {
	switch uniformLayouts[v.kind].scalar {
	case scalarInt:
		return uint32(v.i[n])
	case scalarUint:
		return v.u[n]
	default:
		return math.Float32bits(v.f[n])
	}
}

func (v UniformValue) String() string {
	switch uniformLayouts[v.kind].scalar {
	case scalarInt:
		return fmt.Sprintf("%s%v", v.kind, v.Ints())
	case scalarUint:
		return fmt.Sprintf("%s%v", v.kind, v.Uints())
	default:
		return fmt.Sprintf("%s%v", v.kind, v.Floats())
	}
}

func columnStride(rows int) int {
	if rows == 2 {
		return 8
	}
	return 16
}

func pad16(n int) int { return (n + 15) &^ 15 }

// Uniforms maps uniform names to values for one Exec call.
type Uniforms map[string]UniformValue

// UniformDecl declares a uniform a kernel body can read.
type UniformDecl struct {
	Name string
	Kind UniformKind
}

// EncodeSize returns the WGSL uniform block for the built-in bl_Size.
func EncodeSize(e Extent) []byte {
	return IVec(int32(e.Width), int32(e.Height)).Encode() //nolint:gosec // extents are bounded by MaxExtent
}
