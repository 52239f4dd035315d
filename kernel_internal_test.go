package gpgpu

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fanoutIO(t *testing.T, dev Device, n int) (KernelIO, string) {
	t.Helper()
	src, err := AllocHostBuffer[float32](dev, 16)
	require.NoError(t, err)
	io := KernelIO{Inputs: []Binding{Bind("src", src)}}
	var body strings.Builder
	body.WriteString("fn main() {\n")
	for k := 0; k < n; k++ {
		out, err := AllocHostBuffer[float32](dev, 16)
		require.NoError(t, err)
		name := fmt.Sprintf("o%d", k)
		io.Outputs = append(io.Outputs, Bind(name, out))
		fmt.Fprintf(&body, "    %s = bl_fetch_src(bl_Id());\n", name)
	}
	body.WriteString("}")
	return io, body.String()
}

func TestPlanStepsSplitsOutputs(t *testing.T) {
	dev := newFakeDevice()
	io, body := fanoutIO(t, dev, 9)

	descs, err := planSteps(dev.Capabilities(), io, body)
	require.NoError(t, err)
	require.Len(t, descs, 3)

	var sizes []int
	for _, d := range descs {
		sizes = append(sizes, len(boundNames(d.Outputs)))
		assert.Len(t, d.Outputs, 9, "every step declares every output")
	}
	assert.Equal(t, []int{4, 4, 1}, sizes)
	assert.Equal(t, []string{"o8"}, boundNames(descs[2].Outputs))
	assert.Equal(t, 0, descs[2].Outputs[8].Slot)
}

func TestPlanStepsBindings(t *testing.T) {
	dev := newFakeDevice()
	a, _ := AllocHostBuffer[float32](dev, 4)
	b, _ := AllocHostBuffer[int32](dev, 4)
	o, _ := AllocHostBuffer[float32](dev, 4)
	io := KernelIO{
		Inputs:   []Binding{Bind("a", a), Bind("b", b)},
		Outputs:  []Binding{Bind("o", o)},
		Uniforms: []UniformDecl{{Name: "k", Kind: UniformFloat}, {Name: "n", Kind: UniformUint}},
	}
	descs, err := planSteps(dev.Capabilities(), io, "fn main() { o = 1.0; }")
	require.NoError(t, err)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, 1, d.Inputs[0].Binding)
	assert.Equal(t, 2, d.Inputs[1].Binding)
	assert.Equal(t, 3, d.Uniforms[0].Binding)
	assert.Equal(t, 4, d.Uniforms[1].Binding)
	assert.Equal(t, "texture_2d<i32>", d.Inputs[1].Format.InputType)
	assert.Equal(t, SynthesizeProgram(d), d.Source)
}

func TestPlanStepsOutputReadBeforeWrite(t *testing.T) {
	dev := newFakeDevice()
	io, _ := fanoutIO(t, dev, 5)
	body := "fn main() {\n    o4 = 2.0;\n    o0 = o4;\n    o1 = 0.0;\n    o2 = 0.0;\n    o3 = 0.0;\n}"

	// o4 is written before it is read, so every step computes it.
	_, err := planSteps(dev.Capabilities(), io, body)
	require.NoError(t, err)

	body = "fn main() {\n    o0 = o4;\n    o4 = 2.0;\n    o1 = 0.0;\n    o2 = 0.0;\n    o3 = 0.0;\n}"
	_, err = planSteps(dev.Capabilities(), io, body)
	assert.ErrorIs(t, err, ErrOutputReadBeforeWrite)
	assert.ErrorIs(t, err, ErrConfiguration)

	// The outcome does not depend on how the outputs are split.
	for _, targets := range []int{1, 4, 8} {
		caps := dev.Capabilities()
		caps.MaxRenderTargets = targets
		_, err = planSteps(caps, io, body)
		assert.ErrorIs(t, err, ErrOutputReadBeforeWrite, "%d targets", targets)
	}
}

func TestPlanStepsComponentWritesAcrossSteps(t *testing.T) {
	dev := newFakeDevice()
	src, err := AllocHostBuffer[float32](dev, 16)
	require.NoError(t, err)
	p, err := AllocHostBuffer[float32](dev, 16, WithVector(2))
	require.NoError(t, err)
	q, err := AllocHostBuffer[float32](dev, 16)
	require.NoError(t, err)
	x, err := AllocHostBuffer[float32](dev, 16)
	require.NoError(t, err)

	tests := []struct {
		name string
		io   KernelIO
		body string
	}{
		{
			name: "component writes",
			io:   KernelIO{Inputs: []Binding{Bind("src", src)}, Outputs: []Binding{Bind("p", p), Bind("q", q)}},
			body: "fn main() {\n    let v = bl_fetch_src(bl_Id());\n    p.x = v;\n    p.y = v;\n    q = v;\n}",
		},
		{
			name: "output named like a swizzle",
			io:   KernelIO{Inputs: []Binding{Bind("src", p)}, Outputs: []Binding{Bind("q", q), Bind("x", x)}},
			body: "fn main() {\n    q = bl_fetch_src(bl_Id()).x;\n    x = 1.0;\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, targets := range []int{1, 8} {
				caps := dev.Capabilities()
				caps.MaxRenderTargets = targets
				descs, err := planSteps(caps, tt.io, tt.body)
				require.NoError(t, err, "%d targets", targets)
				assert.Len(t, descs, (len(tt.io.Outputs)+targets-1)/targets)
			}
		})
	}
}

func TestNewKernelCompileFailureReleasesPrograms(t *testing.T) {
	dev := newFakeDevice()
	dev.failStep = 1
	io, body := fanoutIO(t, dev, 9)

	k, err := NewKernel(dev, io, body)
	require.Nil(t, k)
	assert.ErrorIs(t, err, ErrShaderCompile)

	var ce *ShaderCompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Step)
	assert.Equal(t, dev.compiled[1].Source, ce.Source)

	require.Len(t, dev.programs, 1)
	assert.True(t, dev.programs[0].destroyed)
}

func TestNewKernelValidation(t *testing.T) {
	dev := newFakeDevice()
	a, _ := AllocHostBuffer[float32](dev, 4)
	b, _ := AllocHostBuffer[float32](dev, 4)

	tests := []struct {
		name string
		io   KernelIO
		want error
	}{
		{"no outputs", KernelIO{Inputs: []Binding{Bind("a", a)}}, ErrNoOutputs},
		{"conflict", KernelIO{Inputs: []Binding{Bind("x", a)}, Outputs: []Binding{Bind("x", b)}}, ErrNameConflict},
		{"uniform conflict", KernelIO{
			Outputs:  []Binding{Bind("x", b)},
			Uniforms: []UniformDecl{{Name: "x", Kind: UniformFloat}},
		}, ErrNameConflict},
		{"reserved", KernelIO{Outputs: []Binding{Bind("bl_Size", b)}}, ErrInvalidName},
		{"shared output", KernelIO{Outputs: []Binding{Bind("x", b), Bind("y", b)}}, ErrConfiguration},
		{"nil buffer", KernelIO{Outputs: []Binding{Bind("x", nil)}}, ErrConfiguration},
		{"bad kind", KernelIO{
			Outputs:  []Binding{Bind("x", b)},
			Uniforms: []UniformDecl{{Name: "u", Kind: UniformKind(99)}},
		}, ErrUniformType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKernel(dev, tt.io, "fn main() { x = 1.0; }")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, dev.compiled, "validation runs before compilation")
}

func TestNewKernelTooManyInputs(t *testing.T) {
	dev := newFakeDevice()
	dev.caps.MaxInputs = 2
	io := KernelIO{}
	for i := 0; i < 3; i++ {
		b, err := AllocHostBuffer[float32](dev, 4)
		require.NoError(t, err)
		io.Inputs = append(io.Inputs, Bind(fmt.Sprintf("in%d", i), b))
	}
	out, _ := AllocHostBuffer[float32](dev, 4)
	io.Outputs = []Binding{Bind("out", out)}

	_, err := NewKernel(dev, io, "fn main() { out = 1.0; }")
	assert.ErrorIs(t, err, ErrTooManyInputs)
	assert.Contains(t, err.Error(), "allowed 2, given 3")
}

func TestExecReleasesHostSurfaces(t *testing.T) {
	dev := newFakeDevice()
	io, body := fanoutIO(t, dev, 6)
	k, err := NewKernel(dev, io, body)
	require.NoError(t, err)
	defer k.Delete()

	require.NoError(t, k.Exec(nil))
	assert.Equal(t, 0, dev.liveTextures())
	assert.Len(t, dev.draws, 2)
	assert.Len(t, dev.draws[0].Targets, 4)
	assert.Len(t, dev.draws[1].Targets, 2)
	assert.Same(t, dev.draws[0].Inputs[0], dev.draws[1].Inputs[0], "steps share the input snapshot")
	assert.Equal(t, []int{0}, dev.liveAtRelease, "buffers are reconciled before the target is released")
}

func TestExecDeviceErrorCategory(t *testing.T) {
	dev := newFakeDevice()
	io, body := fanoutIO(t, dev, 1)
	k, err := NewKernel(dev, io, body)
	require.NoError(t, err)

	dev.failCreate = true
	err = k.Exec(nil)
	assert.ErrorIs(t, err, ErrDeviceResource)
}

func TestKernelReleased(t *testing.T) {
	dev := newFakeDevice()
	io, body := fanoutIO(t, dev, 1)
	k, err := NewKernel(dev, io, body)
	require.NoError(t, err)

	k.Delete()
	k.Delete()
	assert.ErrorIs(t, k.Exec(nil), ErrReleased)
	assert.ErrorIs(t, k.SetUniforms(Uniforms{}), ErrReleased)
	assert.ErrorIs(t, k.Rebind("o0", io.Outputs[0].Buffer), ErrReleased)
	assert.True(t, dev.programs[0].destroyed)
}

func TestDeviceError(t *testing.T) {
	assert.NoError(t, deviceError("op", nil))

	err := deviceError("upload", errors.New("lost"))
	assert.ErrorIs(t, err, ErrDeviceResource)
	assert.Contains(t, err.Error(), "upload")

	err = deviceError("read", ErrReleased)
	assert.ErrorIs(t, err, ErrReleased)
	assert.NotErrorIs(t, err, ErrDeviceResource)
}
