package gpgpu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFormat(t *testing.T, et ElementType, vector int) FormatDescriptor {
	t.Helper()
	f, err := DeriveFormat(et, vector)
	require.NoError(t, err)
	return f
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"src", "dst", "a", "_x", "weights2"} {
		assert.NoError(t, validName(name), name)
	}
	for _, name := range []string{"", "2x", "a-b", "bl_Size", "__x", "main", "fn", "vec4", "a b"} {
		assert.ErrorIs(t, validName(name), ErrInvalidName, name)
	}
}

func TestSynthesizeProgram(t *testing.T) {
	f1 := mustFormat(t, Float32, 1)
	u4 := mustFormat(t, Uint8, 4)
	desc := &ProgramDescriptor{
		Body: "fn main() {\n    a = bl_fetch_src(bl_Id());\n    b = vec4<u32>(1u);\n}",
		Inputs: []ProgramInput{
			{Name: "src", Binding: 1, Format: f1, Wrap: Wrap{S: WrapRepeat, T: WrapMirror}},
		},
		Outputs: []ProgramOutput{
			{Name: "a", Slot: -1, Format: f1},
			{Name: "b", Slot: 0, Format: u4},
		},
		Uniforms: []ProgramUniform{{Name: "gain", Binding: 2, Kind: UniformVec2}},
	}
	src := SynthesizeProgram(desc)

	assert.True(t, strings.HasPrefix(src, Preamble()))
	assert.Contains(t, src, "@group(0) @binding(1) var src: texture_2d<f32>;")
	assert.Contains(t, src, "fn bl_fetch_src(id: u32) -> f32 {")
	assert.Contains(t, src, "fn bl_at_src(coord: vec2<i32>) -> f32 {")
	assert.Contains(t, src, "bl_Wrap(coord.x, size.x, 1u), bl_Wrap(coord.y, size.y, 2u)")
	assert.Contains(t, src, "textureLoad(src, c, 0).x;")
	assert.Contains(t, src, "@group(0) @binding(2) var<uniform> gain: vec2<f32>;")
	assert.Contains(t, src, "var<private> a: f32;")
	assert.Contains(t, src, "var<private> b: vec4<u32>;")
	assert.Contains(t, src, "@location(0) o0: vec4<u32>,")
	assert.Contains(t, src, "out.o0 = b;")
	assert.Contains(t, src, desc.Body)

	// The unbound output is computed but never written.
	assert.NotContains(t, src, "@location(1)")
	assert.NotContains(t, src, "out.o0 = vec4<f32>(a")
}

func TestSynthesizeProgramDeterministic(t *testing.T) {
	f := mustFormat(t, Int16, 2)
	desc := &ProgramDescriptor{
		Body:    "fn main() { o = bl_fetch_i(bl_Id()); }",
		Inputs:  []ProgramInput{{Name: "i", Binding: 1, Format: f}},
		Outputs: []ProgramOutput{{Name: "o", Slot: 0, Format: f}},
	}
	assert.Equal(t, SynthesizeProgram(desc), SynthesizeProgram(desc))
	assert.Contains(t, SynthesizeProgram(desc), "out.o0 = vec4<i32>(o, 0i, 0i);")
}

func TestWiden(t *testing.T) {
	assert.Equal(t, "vec4<f32>(x, 0.0, 0.0, 0.0)", widen("x", mustFormat(t, Float32, 1)))
	assert.Equal(t, "vec4<u32>(x, 0u, 0u)", widen("x", mustFormat(t, Uint16, 2)))
	assert.Equal(t, "x", widen("x", mustFormat(t, Int32, 4)))
}

func TestReadsBeforeWrite(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"fn main() { o = 1.0; }", false},
		{"fn main() { p = o; o = 1.0; }", true},
		{"fn main() { o += 1.0; }", true},
		{"fn main() { if (o == 1.0) {} }", true},
		{"fn main() { // o is written below\n o = 1.0; }", false},
		{"fn main() { /* o */ o = 2.0; }", false},
		{"fn main() { out = 1.0; }", false},
		{"fn main() { x = 1.0; }", false},
		{"fn main() { o.x = 1.0; o.y = o.x; }", false},
		{"fn main() { o . y = 1.0; }", false},
		{"fn main() { o[i + 1] = 1.0; }", false},
		{"fn main() { o.x += 1.0; }", true},
		{"fn main() { p = o.x; o = 1.0; }", true},
		{"fn main() { p = v.o; o = 1.0; }", false},
		{"fn main() { p = bl_fetch_src(id).o; }", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, readsBeforeWrite(tt.body, "o"), tt.body)
	}
}
