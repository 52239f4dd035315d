package soft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend"
)

func format(t *testing.T, et gpgpu.ElementType, vector int) gpgpu.FormatDescriptor {
	t.Helper()
	f, err := gpgpu.DeriveFormat(et, vector)
	require.NoError(t, err)
	return f
}

func texture(t *testing.T, d *Device, et gpgpu.ElementType, e gpgpu.Extent) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(&gpgpu.TextureDescriptor{Label: "t", Format: format(t, et, 1), Extent: e}, nil)
	require.NoError(t, err)
	return tex.(*Texture)
}

func TestRegistered(t *testing.T) {
	assert.True(t, backend.IsRegistered(backend.BackendSoft))
	dev, err := backend.Open(backend.BackendSoft)
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, DefaultMaxRenderTargets, dev.Capabilities().MaxRenderTargets)
}

func TestOptions(t *testing.T) {
	d := New(WithMaxRenderTargets(2), WithMaxInputs(3), WithMaxExtent(64))
	caps := d.Capabilities()
	assert.Equal(t, 2, caps.MaxRenderTargets)
	assert.Equal(t, 3, caps.MaxInputs)
	assert.Equal(t, 64, caps.MaxExtent)
	assert.Equal(t, "gpgpu soft", caps.Renderer)
}

func TestRoutineKeyIgnoresWhitespace(t *testing.T) {
	body := "fn main() {\n    out = 1.0;\n}"
	Register(body, func(*Invocation) {})
	defer Unregister(body)

	_, ok := lookupRoutine("fn main() { out = 1.0; }")
	assert.True(t, ok)
	_, ok = lookupRoutine("fn main() { out = 2.0; }")
	assert.False(t, ok)

	Unregister(body)
	_, ok = lookupRoutine(body)
	assert.False(t, ok)
}

func TestWrap(t *testing.T) {
	tests := []struct {
		c, n int
		mode gpgpu.WrapMode
		want int
	}{
		{-1, 4, gpgpu.WrapClamp, 0},
		{5, 4, gpgpu.WrapClamp, 3},
		{2, 4, gpgpu.WrapClamp, 2},
		{-1, 4, gpgpu.WrapRepeat, 3},
		{4, 4, gpgpu.WrapRepeat, 0},
		{9, 4, gpgpu.WrapRepeat, 1},
		{-1, 4, gpgpu.WrapMirror, 0},
		{4, 4, gpgpu.WrapMirror, 3},
		{5, 4, gpgpu.WrapMirror, 2},
		{8, 4, gpgpu.WrapMirror, 0},
		{-5, 4, gpgpu.WrapMirror, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Wrap(tt.c, tt.n, tt.mode), "Wrap(%d, %d, %s)", tt.c, tt.n, tt.mode)
	}
}

func TestChannelCodec(t *testing.T) {
	tests := []struct {
		et   gpgpu.ElementType
		in   float64
		want float64
	}{
		{gpgpu.Float32, 1.5, 1.5},
		{gpgpu.Int8, -3.7, -3},
		{gpgpu.Int8, 130, -126},
		{gpgpu.Uint8, 256, 0},
		{gpgpu.Int16, -32768, -32768},
		{gpgpu.Uint16, 65535, 65535},
		{gpgpu.Int32, -2147483648, -2147483648},
		{gpgpu.Uint32, 4294967295, 4294967295},
	}
	for _, tt := range tests {
		b := make([]byte, 4)
		encodeChannel(tt.et, b, tt.in)
		assert.Equal(t, tt.want, decodeChannel(tt.et, b), "%s %v", tt.et, tt.in)
	}
}

func TestTextureLifecycle(t *testing.T) {
	d := New()
	tex := texture(t, d, gpgpu.Uint8, gpgpu.Extent{Width: 2, Height: 2})
	assert.Equal(t, 1, d.Stats().Textures)

	require.NoError(t, tex.Upload([]byte{1, 2, 3, 4}))
	dup, err := tex.Duplicate()
	require.NoError(t, err)
	require.NoError(t, tex.Upload([]byte{9, 9, 9, 9}))

	got := make([]byte, 4)
	require.NoError(t, dup.Read(got))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	assert.Error(t, tex.Read(make([]byte, 3)))

	tex.Destroy()
	tex.Destroy()
	dup.Destroy()
	assert.Zero(t, d.Stats().Textures)
	assert.ErrorIs(t, tex.Read(got), ErrDestroyed)
	assert.ErrorIs(t, tex.Upload(got), ErrDestroyed)
}

func TestCreateTextureLimits(t *testing.T) {
	d := New(WithMaxExtent(4))
	f := format(t, gpgpu.Float32, 1)
	_, err := d.CreateTexture(&gpgpu.TextureDescriptor{Format: f, Extent: gpgpu.Extent{Width: 5, Height: 1}}, nil)
	assert.Error(t, err)
	_, err = d.CreateTexture(&gpgpu.TextureDescriptor{Format: f, Extent: gpgpu.Extent{Width: 2, Height: 2}}, []byte{1})
	assert.Error(t, err)
	assert.Zero(t, d.Stats().Textures)
}

func TestReadAsyncSnapshot(t *testing.T) {
	d := New()
	tex := texture(t, d, gpgpu.Uint8, gpgpu.Extent{Width: 1, Height: 2})
	require.NoError(t, tex.Upload([]byte{7, 8}))

	dst := make([]byte, 2)
	wait, err := tex.ReadAsync(dst)
	require.NoError(t, err)
	require.NoError(t, tex.Upload([]byte{0, 0}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wait(ctx))
	assert.Equal(t, []byte{7, 8}, dst)
}

const doubleBody = "fn main() { out = bl_fetch_in(bl_Id()) * 2.0; }"

func compileDouble(t *testing.T, d *Device, f gpgpu.FormatDescriptor) gpgpu.Program {
	t.Helper()
	Register(doubleBody, func(inv *Invocation) {
		inv.SetScalar("out", inv.Fetch("in", inv.ID())[0]*2)
	})
	t.Cleanup(func() { Unregister(doubleBody) })

	desc := &gpgpu.ProgramDescriptor{
		Body:    doubleBody,
		Inputs:  []gpgpu.ProgramInput{{Name: "in", Binding: 1, Format: f}},
		Outputs: []gpgpu.ProgramOutput{{Name: "out", Slot: 0, Format: f}},
	}
	desc.Source = gpgpu.SynthesizeProgram(desc)
	p, err := d.CompileProgram(desc)
	require.NoError(t, err)
	return p
}

func TestDraw(t *testing.T) {
	d := New()
	e := gpgpu.Extent{Width: 2, Height: 2}
	in := texture(t, d, gpgpu.Int16, e)
	out := texture(t, d, gpgpu.Int16, e)
	require.NoError(t, in.Upload([]byte{1, 0, 0xff, 0xff, 3, 0, 4, 0}))

	p := compileDouble(t, d, format(t, gpgpu.Int16, 1))
	assert.Equal(t, 1, d.Stats().Programs)

	rt, err := d.AcquireTarget()
	require.NoError(t, err)
	defer rt.Release()
	require.NoError(t, rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}, Inputs: []gpgpu.Texture{in}}))

	got := make([]byte, 8)
	require.NoError(t, rt.ReadSlot(0, got))
	assert.Equal(t, []byte{2, 0, 0xfe, 0xff, 6, 0, 8, 0}, got)
	assert.Equal(t, 1, d.Stats().Draws)
	assert.Error(t, rt.ReadSlot(1, got))

	p.Destroy()
	p.Destroy()
	assert.Zero(t, d.Stats().Programs)
}

func TestDrawValidation(t *testing.T) {
	d := New()
	e := gpgpu.Extent{Width: 2, Height: 2}
	f := format(t, gpgpu.Float32, 1)
	in := texture(t, d, gpgpu.Float32, e)
	out := texture(t, d, gpgpu.Float32, e)
	small := texture(t, d, gpgpu.Float32, gpgpu.Extent{Width: 1, Height: 1})
	p := compileDouble(t, d, f)
	rt, _ := d.AcquireTarget()

	err := rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{in}, Inputs: []gpgpu.Texture{in}})
	assert.ErrorIs(t, err, ErrFeedbackLoop)

	err = rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{small}, Inputs: []gpgpu.Texture{in}})
	assert.Error(t, err)

	err = rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}})
	assert.Error(t, err)

	other := texture(t, New(), gpgpu.Float32, e)
	err = rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}, Inputs: []gpgpu.Texture{other}})
	assert.Error(t, err)

	in.Destroy()
	err = rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}, Inputs: []gpgpu.Texture{in}})
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Zero(t, d.Stats().Draws)

	rt.Release()
	assert.Error(t, rt.Draw(&gpgpu.Pass{Program: p, Extent: e}))
}

func TestRoutinePanicBecomesError(t *testing.T) {
	d := New()
	e := gpgpu.Extent{Width: 1, Height: 1}
	f := format(t, gpgpu.Float32, 1)
	body := "fn main() { out = missing; }"
	Register(body, func(inv *Invocation) { inv.Set("missing", Vec{}) })
	defer Unregister(body)

	desc := &gpgpu.ProgramDescriptor{Body: body, Outputs: []gpgpu.ProgramOutput{{Name: "out", Slot: 0, Format: f}}}
	p, err := d.CompileProgram(desc)
	require.NoError(t, err)

	rt, _ := d.AcquireTarget()
	err = rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{texture(t, d, gpgpu.Float32, e)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCompileProgramErrors(t *testing.T) {
	d := New()
	_, err := d.CompileProgram(&gpgpu.ProgramDescriptor{Body: "out = 1.0;"})
	assert.ErrorIs(t, err, gpgpu.ErrShaderCompile)

	_, err = d.CompileProgram(&gpgpu.ProgramDescriptor{Body: "fn main() { out = 3.0; }"})
	assert.ErrorIs(t, err, gpgpu.ErrShaderCompile)
	assert.Zero(t, d.Stats().Programs)
}

func TestValidationRejectsInvalidWGSL(t *testing.T) {
	d := New(WithValidation(true))
	f := format(t, gpgpu.Float32, 1)
	body := "fn main() { out = ; }"
	Register(body, func(*Invocation) {})
	defer Unregister(body)

	desc := &gpgpu.ProgramDescriptor{Body: body, Outputs: []gpgpu.ProgramOutput{{Name: "out", Slot: 0, Format: f}}}
	desc.Source = gpgpu.SynthesizeProgram(desc)
	_, err := d.CompileProgram(desc)
	require.ErrorIs(t, err, gpgpu.ErrShaderCompile)

	var ce *gpgpu.ShaderCompileError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Diagnostic)
}

func TestDrawAcrossWorkers(t *testing.T) {
	e := gpgpu.Extent{Width: 3, Height: 41}
	src := make([]byte, e.Texels()*2)
	for i := range e.Texels() {
		src[2*i] = byte(i)
	}

	run := func(workers int) []byte {
		d := New(WithWorkers(workers))
		defer d.Close()
		in := texture(t, d, gpgpu.Int16, e)
		out := texture(t, d, gpgpu.Int16, e)
		require.NoError(t, in.Upload(src))

		rt, err := d.AcquireTarget()
		require.NoError(t, err)
		defer rt.Release()
		p := compileDouble(t, d, format(t, gpgpu.Int16, 1))
		require.NoError(t, rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}, Inputs: []gpgpu.Texture{in}}))

		got := make([]byte, len(src))
		require.NoError(t, rt.ReadSlot(0, got))
		return got
	}

	serial := run(1)
	assert.Equal(t, serial, run(4))
	assert.Equal(t, byte(80), serial[2*40], "element 40 doubled")
}

func TestDrawAfterClose(t *testing.T) {
	d := New(WithWorkers(2))
	e := gpgpu.Extent{Width: 1, Height: 1}
	in := texture(t, d, gpgpu.Int16, e)
	out := texture(t, d, gpgpu.Int16, e)
	p := compileDouble(t, d, format(t, gpgpu.Int16, 1))
	d.Close()

	rt, err := d.AcquireTarget()
	require.NoError(t, err)
	assert.NoError(t, rt.Draw(&gpgpu.Pass{Program: p, Extent: e, Targets: []gpgpu.Texture{out}, Inputs: []gpgpu.Texture{in}}))
}
