package soft

import (
	"fmt"

	"github.com/gogpu/gpgpu"
)

type inputBinding struct {
	tex  *Texture
	wrap gpgpu.Wrap
}

// Invocation is the state of one element while its routine runs. It
// mirrors the names a kernel body sees: the built-in size and index, the
// input accessors, the uniforms and the output variables.
type Invocation struct {
	x, y int
	size gpgpu.Extent

	inputs   map[string]inputBinding
	uniforms map[string]gpgpu.UniformValue
	outputs  map[string]Vec
	bound    []string
}

func newInvocation(p *program, pass *gpgpu.Pass, inputs []*Texture) *Invocation {
	inv := &Invocation{
		size:     pass.Extent,
		inputs:   make(map[string]inputBinding, len(inputs)),
		uniforms: make(map[string]gpgpu.UniformValue, len(pass.Uniforms)),
		outputs:  make(map[string]Vec, len(p.desc.Outputs)),
		bound:    make([]string, 0, len(pass.Targets)),
	}
	for i, in := range p.desc.Inputs {
		inv.inputs[in.Name] = inputBinding{tex: inputs[i], wrap: in.Wrap}
	}
	for i, u := range p.desc.Uniforms {
		inv.uniforms[u.Name] = pass.Uniforms[i]
	}
	// Slots are consecutive in declaration order.
	for _, o := range p.desc.Outputs {
		inv.outputs[o.Name] = Vec{}
		if o.Bound() {
			inv.bound = append(inv.bound, o.Name)
		}
	}
	return inv
}

// reset moves to element (x, y) and zeroes the output variables.
func (inv *Invocation) reset(x, y int) {
	inv.x, inv.y = x, y
	for name := range inv.outputs {
		inv.outputs[name] = Vec{}
	}
}

// ID returns the linear index of the element, x + y*width.
func (inv *Invocation) ID() int { return inv.x + inv.y*inv.size.Width }

// Coord returns the element's position in the output extent.
func (inv *Invocation) Coord() (x, y int) { return inv.x, inv.y }

// Size returns the output extent.
func (inv *Invocation) Size() gpgpu.Extent { return inv.size }

// Fetch returns element id of input name, addressed with the input's
// own width.
func (inv *Invocation) Fetch(name string, id int) Vec {
	in := inv.input(name)
	w := in.tex.desc.Extent.Width
	return inv.at(in, id%w, id/w)
}

// At returns the texel of input name at (x, y), applying the input's
// edge policy to out-of-range coordinates.
func (inv *Invocation) At(name string, x, y int) Vec {
	return inv.at(inv.input(name), x, y)
}

func (inv *Invocation) at(in inputBinding, x, y int) Vec {
	e := in.tex.desc.Extent
	return in.tex.load(Wrap(x, e.Width, in.wrap.S), Wrap(y, e.Height, in.wrap.T))
}

func (inv *Invocation) input(name string) inputBinding {
	in, ok := inv.inputs[name]
	if !ok {
		panic(fmt.Sprintf("soft: no input named %q", name))
	}
	return in
}

// Uniform returns the current value of uniform name.
func (inv *Invocation) Uniform(name string) gpgpu.UniformValue {
	u, ok := inv.uniforms[name]
	if !ok {
		panic(fmt.Sprintf("soft: no uniform named %q", name))
	}
	return u
}

// Output returns the current value of output variable name.
func (inv *Invocation) Output(name string) Vec {
	v, ok := inv.outputs[name]
	if !ok {
		panic(fmt.Sprintf("soft: no output named %q", name))
	}
	return v
}

// Set assigns output variable name. Outputs the current step does not
// bind keep the value only until the element is done.
func (inv *Invocation) Set(name string, v Vec) {
	if _, ok := inv.outputs[name]; !ok {
		panic(fmt.Sprintf("soft: no output named %q", name))
	}
	inv.outputs[name] = v
}

// SetScalar assigns the first channel of output variable name.
func (inv *Invocation) SetScalar(name string, f float64) {
	inv.Set(name, Vec{f})
}

// Wrap applies an edge policy to coordinate c on an axis of n texels.
func Wrap(c, n int, mode gpgpu.WrapMode) int {
	switch mode {
	case gpgpu.WrapRepeat:
		return ((c % n) + n) % n
	case gpgpu.WrapMirror:
		period := 2 * n
		m := ((c % period) + period) % period
		if m >= n {
			return period - 1 - m
		}
		return m
	default:
		return min(max(c, 0), n-1)
	}
}
