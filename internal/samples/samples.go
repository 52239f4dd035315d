// Package samples holds ready-made kernels: the WGSL body every device
// compiles and the routine the soft device runs for it. The CLI and the
// tests share them.
package samples

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend/soft"
)

// Kernel is a named sample body with its argument names.
type Kernel struct {
	Name     string
	Body     string
	Inputs   []string
	Outputs  []string
	Uniforms []gpgpu.UniformDecl
	Routine  soft.Routine
}

// Identity copies src into dst element by element. It works for every
// element type and vector width as long as both buffers share them.
var Identity = Kernel{
	Name:    "identity",
	Body:    "fn main() {\n    dst = bl_fetch_src(bl_Id());\n}",
	Inputs:  []string{"src"},
	Outputs: []string{"dst"},
	Routine: func(inv *soft.Invocation) {
		inv.Set("dst", inv.Fetch("src", inv.ID()))
	},
}

// Increment adds one to every element of a float32 buffer.
var Increment = Kernel{
	Name:    "increment",
	Body:    "fn main() {\n    dst = bl_fetch_src(bl_Id()) + 1.0;\n}",
	Inputs:  []string{"src"},
	Outputs: []string{"dst"},
	Routine: func(inv *soft.Invocation) {
		inv.SetScalar("dst", inv.Fetch("src", inv.ID())[0]+1)
	},
}

// Scale multiplies a float32 buffer by the uniform factor.
var Scale = Kernel{
	Name:     "scale",
	Body:     "fn main() {\n    dst = bl_fetch_src(bl_Id()) * factor;\n}",
	Inputs:   []string{"src"},
	Outputs:  []string{"dst"},
	Uniforms: []gpgpu.UniformDecl{{Name: "factor", Kind: gpgpu.UniformFloat}},
	Routine: func(inv *soft.Invocation) {
		inv.SetScalar("dst", inv.Fetch("src", inv.ID())[0]*inv.Uniform("factor").Lane(0))
	},
}

// Saxpy computes a*x + y over float32 buffers.
var Saxpy = Kernel{
	Name:     "saxpy",
	Body:     "fn main() {\n    let id = bl_Id();\n    dst = a * bl_fetch_x(id) + bl_fetch_y(id);\n}",
	Inputs:   []string{"x", "y"},
	Outputs:  []string{"dst"},
	Uniforms: []gpgpu.UniformDecl{{Name: "a", Kind: gpgpu.UniformFloat}},
	Routine: func(inv *soft.Invocation) {
		id := inv.ID()
		a := float64(float32(inv.Uniform("a").Lane(0)))
		inv.SetScalar("dst", float64(float32(a*inv.Fetch("x", id)[0]+inv.Fetch("y", id)[0])))
	},
}

// Neighbors averages each element with its left and right neighbours,
// addressing past the edges through the input's wrap policy.
var Neighbors = Kernel{
	Name: "neighbors",
	Body: "fn main() {\n" +
		"    let c = vec2<i32>(bl_Position);\n" +
		"    dst = (bl_at_src(c - vec2<i32>(1, 0)) + bl_at_src(c) + bl_at_src(c + vec2<i32>(1, 0))) / 3.0;\n" +
		"}",
	Inputs:  []string{"src"},
	Outputs: []string{"dst"},
	Routine: func(inv *soft.Invocation) {
		x, y := inv.Coord()
		sum := inv.At("src", x-1, y)[0] + inv.At("src", x, y)[0] + inv.At("src", x+1, y)[0]
		inv.SetScalar("dst", float64(float32(sum)/3))
	},
}

// Invert inverts the color channels of RGBA8 pixels and keeps alpha.
var Invert = Kernel{
	Name: "invert",
	Body: "fn main() {\n" +
		"    let p = bl_fetch_src(bl_Id());\n" +
		"    dst = vec4<u32>(255u - p.x, 255u - p.y, 255u - p.z, p.w);\n" +
		"}",
	Inputs:  []string{"src"},
	Outputs: []string{"dst"},
	Routine: func(inv *soft.Invocation) {
		p := inv.Fetch("src", inv.ID())
		inv.Set("dst", soft.Vec{255 - p[0], 255 - p[1], 255 - p[2], p[3]})
	},
}

// Fanout returns a kernel with n outputs o0..o{n-1}, where output k is
// the input times k+1. With more outputs than render targets it is split
// into several steps.
func Fanout(n int) Kernel {
	var body strings.Builder
	body.WriteString("fn main() {\n    let v = bl_fetch_src(bl_Id());\n")
	outputs := make([]string, n)
	for k := range outputs {
		outputs[k] = fmt.Sprintf("o%d", k)
		fmt.Fprintf(&body, "    o%d = v * %d.0;\n", k, k+1)
	}
	body.WriteString("}")

	return Kernel{
		Name:    fmt.Sprintf("fanout%d", n),
		Body:    body.String(),
		Inputs:  []string{"src"},
		Outputs: outputs,
		Routine: func(inv *soft.Invocation) {
			v := inv.Fetch("src", inv.ID())[0]
			for k, name := range outputs {
				inv.SetScalar(name, v*float64(k+1))
			}
		},
	}
}

// IO builds the KernelIO of k from buffers listed in argument order:
// inputs first, then outputs.
func (k Kernel) IO(buffers ...gpgpu.Buffer) (gpgpu.KernelIO, error) {
	if len(buffers) != len(k.Inputs)+len(k.Outputs) {
		return gpgpu.KernelIO{}, fmt.Errorf("samples: %s takes %d buffers, got %d",
			k.Name, len(k.Inputs)+len(k.Outputs), len(buffers))
	}
	io := gpgpu.KernelIO{Uniforms: k.Uniforms}
	for i, name := range k.Inputs {
		io.Inputs = append(io.Inputs, gpgpu.Bind(name, buffers[i]))
	}
	for i, name := range k.Outputs {
		io.Outputs = append(io.Outputs, gpgpu.Bind(name, buffers[len(k.Inputs)+i]))
	}
	return io, nil
}

// Register makes k runnable on the soft device.
func (k Kernel) Register() Kernel {
	soft.Register(k.Body, k.Routine)
	return k
}

var registerOnce sync.Once

// All returns the fixed samples by name, registered with the soft device.
func All() map[string]Kernel {
	registerOnce.Do(func() {
		for _, k := range fixed() {
			k.Register()
		}
	})
	m := make(map[string]Kernel)
	for _, k := range fixed() {
		m[k.Name] = k
	}
	return m
}

// Names returns the sorted names of the fixed samples.
func Names() []string {
	var names []string
	for name := range All() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fixed() []Kernel {
	return []Kernel{Identity, Increment, Scale, Saxpy, Neighbors, Invert}
}
