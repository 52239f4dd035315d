package gpgpu

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Binding names a buffer argument of a kernel.
type Binding struct {
	Name   string
	Buffer Buffer
}

// Bind returns a Binding of b under name.
func Bind(name string, b Buffer) Binding { return Binding{Name: name, Buffer: b} }

// KernelIO is the fixed argument shape of a kernel. Outputs are visited in
// declaration order when they are split across steps.
type KernelIO struct {
	Inputs   []Binding
	Outputs  []Binding
	Uniforms []UniformDecl
}

// Step is one rendering pass of a kernel.
type Step struct {
	program Program
	source  string
	// outputs are the names this step writes, in slot order.
	outputs []string
	// uniforms is the program's uniform table, in binding order.
	uniforms []string
}

// Outputs returns the names of the outputs the step writes, in slot order.
func (s *Step) Outputs() []string { return append([]string(nil), s.outputs...) }

// Source returns the synthesized program text.
func (s *Step) Source() string { return s.source }

// Kernel runs a kernel body over a fixed set of named buffers. A kernel
// whose outputs outnumber the device's render targets is split into
// several steps; running them in order is indistinguishable from a single
// pass.
//
// The argument names and shapes are fixed at construction. The buffers
// bound to them can be swapped between Exec calls with Rebind.
type Kernel struct {
	mu sync.Mutex

	dev     Device
	inputs  []Binding
	outputs []Binding
	steps   []*Step

	// uniformKinds and uniformValues persist across Exec calls.
	uniformKinds  map[string]UniformKind
	uniformValues map[string]UniformValue

	released bool
}

// NewKernel validates io, plans the steps and compiles one program per
// step. Argument errors are reported before anything is compiled; a
// compile failure releases every program compiled so far.
func NewKernel(dev Device, io KernelIO, body string) (*Kernel, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrConfiguration)
	}
	if err := validateIO(dev.Capabilities(), io); err != nil {
		return nil, err
	}

	k := &Kernel{
		dev:           dev,
		inputs:        append([]Binding(nil), io.Inputs...),
		outputs:       append([]Binding(nil), io.Outputs...),
		uniformKinds:  make(map[string]UniformKind, len(io.Uniforms)),
		uniformValues: make(map[string]UniformValue, len(io.Uniforms)),
	}
	for _, u := range io.Uniforms {
		k.uniformKinds[u.Name] = u.Kind
		k.uniformValues[u.Name] = ZeroUniform(u.Kind)
	}

	descs, err := planSteps(dev.Capabilities(), io, body)
	if err != nil {
		return nil, err
	}

	for i, desc := range descs {
		prog, err := dev.CompileProgram(desc)
		if err != nil {
			k.Delete()
			var ce *ShaderCompileError
			if errors.As(err, &ce) {
				ce.Step = i
				if ce.Source == "" {
					ce.Source = desc.Source
				}
				return nil, ce
			}
			return nil, deviceError(fmt.Sprintf("compile step %d", i), err)
		}

		step := &Step{program: prog, source: desc.Source}
		for _, out := range desc.Outputs {
			if out.Bound() {
				step.outputs = append(step.outputs, out.Name)
			}
		}
		for _, u := range desc.Uniforms {
			step.uniforms = append(step.uniforms, u.Name)
		}
		k.steps = append(k.steps, step)
	}

	Logger().Debug("gpgpu: kernel created",
		"inputs", len(k.inputs), "outputs", len(k.outputs), "steps", len(k.steps))
	return k, nil
}

func validateIO(caps Capabilities, io KernelIO) error {
	if len(io.Outputs) == 0 {
		return ErrNoOutputs
	}

	seen := make(map[string]string, len(io.Inputs)+len(io.Outputs)+len(io.Uniforms))
	check := func(name, role string) error {
		if err := validName(name); err != nil {
			return err
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q is both %s and %s", ErrNameConflict, name, prev, role)
		}
		seen[name] = role
		return nil
	}

	for _, in := range io.Inputs {
		if err := check(in.Name, "input"); err != nil {
			return err
		}
		if in.Buffer == nil {
			return fmt.Errorf("%w: input %q has no buffer", ErrConfiguration, in.Name)
		}
	}
	targets := make(map[*layout]string, len(io.Outputs))
	for _, out := range io.Outputs {
		if err := check(out.Name, "output"); err != nil {
			return err
		}
		if out.Buffer == nil {
			return fmt.Errorf("%w: output %q has no buffer", ErrConfiguration, out.Name)
		}
		if prev, ok := targets[out.Buffer.base()]; ok {
			return fmt.Errorf("%w: outputs %q and %q share a buffer", ErrConfiguration, prev, out.Name)
		}
		targets[out.Buffer.base()] = out.Name
	}
	for _, u := range io.Uniforms {
		if err := check(u.Name, "uniform"); err != nil {
			return err
		}
		if !u.Kind.Valid() {
			return fmt.Errorf("%w: uniform %q has kind %s", ErrUniformType, u.Name, u.Kind)
		}
	}

	if len(io.Inputs) > caps.MaxInputs {
		return fmt.Errorf("%w: allowed %d, given %d", ErrTooManyInputs, caps.MaxInputs, len(io.Inputs))
	}
	return nil
}

// planSteps partitions the outputs into groups of at most
// MaxRenderTargets in declaration order and returns one program
// descriptor per group. Every descriptor declares all outputs; only the
// outputs of its own group get a slot.
//
// An output that is unbound in a step keeps its zero value there, so a
// body must write every output before reading it. This is checked for
// all outputs, whatever the number of steps, so that a kernel builds on
// every device or on none.
func planSteps(caps Capabilities, io KernelIO, body string) ([]*ProgramDescriptor, error) {
	for _, out := range io.Outputs {
		if readsBeforeWrite(body, out.Name) {
			return nil, fmt.Errorf("%w: %q", ErrOutputReadBeforeWrite, out.Name)
		}
	}

	maxTargets := max(caps.MaxRenderTargets, 1)
	groups := (len(io.Outputs) + maxTargets - 1) / maxTargets

	inputs := make([]ProgramInput, len(io.Inputs))
	for i, in := range io.Inputs {
		inputs[i] = ProgramInput{
			Name:    in.Name,
			Binding: SizeBinding + 1 + i,
			Format:  in.Buffer.Format(),
			Wrap:    in.Buffer.Wrap(),
		}
	}

	uniforms := make([]ProgramUniform, len(io.Uniforms))
	for i, u := range io.Uniforms {
		uniforms[i] = ProgramUniform{
			Name:    u.Name,
			Binding: SizeBinding + 1 + len(io.Inputs) + i,
			Kind:    u.Kind,
		}
	}

	descs := make([]*ProgramDescriptor, 0, groups)
	for g := 0; g < groups; g++ {
		start := g * maxTargets
		outputs := make([]ProgramOutput, len(io.Outputs))
		for i, out := range io.Outputs {
			slot := -1
			if i >= start && i < start+maxTargets {
				slot = i - start
			}
			outputs[i] = ProgramOutput{Name: out.Name, Slot: slot, Format: out.Buffer.Format()}
		}

		desc := &ProgramDescriptor{
			Label:    fmt.Sprintf("kernel_step_%d", g),
			Body:     body,
			Inputs:   inputs,
			Outputs:  outputs,
			Uniforms: uniforms,
		}
		desc.Source = SynthesizeProgram(desc)
		descs = append(descs, desc)

		Logger().Debug("gpgpu: step planned", "step", g, "outputs", strings.Join(boundNames(outputs), ","))
	}
	return descs, nil
}

func boundNames(outputs []ProgramOutput) []string {
	var names []string
	for _, o := range outputs {
		if o.Bound() {
			names = append(names, o.Name)
		}
	}
	return names
}

// Steps returns the planned steps in execution order.
func (k *Kernel) Steps() []*Step {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Step(nil), k.steps...)
}

// Rebind replaces the buffer bound to name. The new buffer must have the
// same format, extent and edge policy as the one it replaces, and an
// output can not take a buffer another output already writes.
func (k *Kernel) Rebind(name string, b Buffer) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return ErrReleased
	}
	if b == nil {
		return fmt.Errorf("%w: nil buffer for %q", ErrConfiguration, name)
	}
	for _, set := range []struct {
		bindings []Binding
		output   bool
	}{{k.inputs, false}, {k.outputs, true}} {
		for i := range set.bindings {
			if set.bindings[i].Name != name {
				continue
			}
			if !set.bindings[i].Buffer.base().sameShape(b.base()) {
				return fmt.Errorf("%w: buffer for %q changes shape", ErrConfiguration, name)
			}
			if set.output {
				for _, other := range k.outputs {
					if other.Name != name && other.Buffer.base() == b.base() {
						return fmt.Errorf("%w: outputs %q and %q would share a buffer", ErrConfiguration, other.Name, name)
					}
				}
			}
			set.bindings[i].Buffer = b
			return nil
		}
	}
	return fmt.Errorf("%w: no argument named %q", ErrConfiguration, name)
}

// SetUniforms stores uniform values without running the kernel. Unknown
// names are logged and ignored; a kind mismatch fails and stores nothing.
func (k *Kernel) SetUniforms(u Uniforms) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return ErrReleased
	}
	return k.setUniformsLocked(u)
}

func (k *Kernel) setUniformsLocked(u Uniforms) error {
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind, ok := k.uniformKinds[name]
		if !ok {
			continue
		}
		if got := u[name].Kind(); got != kind {
			return fmt.Errorf("%w: %q is %s, got %s", ErrUniformType, name, kind, got)
		}
	}
	for _, name := range names {
		if _, ok := k.uniformKinds[name]; !ok {
			Logger().Warn("gpgpu: unknown uniform ignored", "name", name)
			continue
		}
		k.uniformValues[name] = u[name]
	}
	return nil
}

// Exec runs every step in order against the current contents of the bound
// buffers. Uniform values are merged into the values of earlier calls.
//
// Exec is not cancellable. When it fails after the first draw, the
// outputs already written are not rolled back and every touched buffer is
// left in an undefined state.
func (k *Kernel) Exec(u Uniforms) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return ErrReleased
	}

	extent := k.outputs[0].Buffer.Extent()
	for _, out := range k.outputs[1:] {
		if out.Buffer.Extent() != extent {
			return fmt.Errorf("%w: %q is %s, %q is %s", ErrInconsistentOutputSize,
				k.outputs[0].Name, extent, out.Name, out.Buffer.Extent())
		}
	}
	if err := k.setUniformsLocked(u); err != nil {
		return err
	}

	// The target is released after the buffers are reconciled.
	target, err := k.dev.AcquireTarget()
	if err != nil {
		return deviceError("acquire target", err)
	}
	defer target.Release()

	touched := k.touched()
	defer func() {
		for _, b := range touched {
			if ferr := b.finalize(); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
	}()

	// Inputs are resolved once so that a later step observes the same
	// values as the first one.
	inputs := make([]Texture, len(k.inputs))
	for i, in := range k.inputs {
		s, err := in.Buffer.readSurface(true)
		if err != nil {
			return fmt.Errorf("input %q: %w", in.Name, err)
		}
		inputs[i] = s.tex
	}

	byName := make(map[string]Buffer, len(k.outputs))
	for _, out := range k.outputs {
		byName[out.Name] = out.Buffer
	}

	for i, step := range k.steps {
		targets := make([]Texture, len(step.outputs))
		for slot, name := range step.outputs {
			s, err := byName[name].writeSurface(true)
			if err != nil {
				return fmt.Errorf("output %q: %w", name, err)
			}
			targets[slot] = s.tex
		}

		values := make([]UniformValue, len(step.uniforms))
		for j, name := range step.uniforms {
			values[j] = k.uniformValues[name]
		}

		pass := &Pass{
			Program:  step.program,
			Extent:   extent,
			Targets:  targets,
			Inputs:   inputs,
			Uniforms: values,
		}
		if err := target.Draw(pass); err != nil {
			return deviceError(fmt.Sprintf("draw step %d", i), err)
		}

		for slot, name := range step.outputs {
			if err := byName[name].afterDraw(target, slot); err != nil {
				return fmt.Errorf("output %q: %w", name, err)
			}
		}
	}
	return nil
}

// touched returns every distinct bound buffer, inputs first.
func (k *Kernel) touched() []Buffer {
	seen := make(map[*layout]bool, len(k.inputs)+len(k.outputs))
	var out []Buffer
	for _, set := range [][]Binding{k.inputs, k.outputs} {
		for _, b := range set {
			if seen[b.Buffer.base()] {
				continue
			}
			seen[b.Buffer.base()] = true
			out = append(out, b.Buffer)
		}
	}
	return out
}

// Delete releases every compiled program. The bound buffers are not
// affected. Calling Delete again is a no-op.
func (k *Kernel) Delete() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, s := range k.steps {
		s.program.Destroy()
	}
	k.steps = nil
	k.inputs = nil
	k.outputs = nil
	k.released = true
}
