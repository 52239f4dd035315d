package soft

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/internal/parallel"
)

// ErrFeedbackLoop is returned when a draw reads a texture it renders into.
var ErrFeedbackLoop = errors.New("soft: texture is both input and render target")

// minBandRows is the smallest number of rows handed to one worker.
const minBandRows = 8

// target is the rendering target container of one Exec call.
type target struct {
	dev      *Device
	last     []*Texture
	released bool
}

// Draw runs the program's routine once per element of the viewport.
func (t *target) Draw(pass *gpgpu.Pass) error {
	if t.released {
		return errors.New("soft: target released")
	}
	p, ok := pass.Program.(*program)
	if !ok || p.dev != t.dev {
		return fmt.Errorf("soft: program %T does not belong to this device", pass.Program)
	}

	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()

	if p.destroyed {
		return errors.New("soft: program destroyed")
	}
	targets, inputs, err := t.bind(p, pass)
	if err != nil {
		return err
	}

	// Rows are independent: each band has its own invocation state and
	// writes a disjoint range of every target.
	err = t.dev.workerPool().Rows(pass.Extent.Height, minBandRows, func(y0, y1 int) {
		inv := newInvocation(p, pass, inputs)
		for y := y0; y < y1; y++ {
			for x := 0; x < pass.Extent.Width; x++ {
				inv.reset(x, y)
				p.routine(inv)
				for slot, name := range inv.bound {
					targets[slot].store(x, y, inv.outputs[name])
				}
			}
		}
	})
	var pe *parallel.PanicError
	if errors.As(err, &pe) {
		return fmt.Errorf("soft: routine failed: %v", pe.Value)
	}
	if err != nil {
		return err
	}

	t.last = targets
	t.dev.draws.Add(1)
	return nil
}

// bind checks the pass against the program layout the way a GPU
// validation layer would.
func (t *target) bind(p *program, pass *gpgpu.Pass) (targets, inputs []*Texture, err error) {
	bound := 0
	for _, o := range p.desc.Outputs {
		if o.Bound() {
			bound++
		}
	}
	if len(pass.Targets) != bound {
		return nil, nil, fmt.Errorf("soft: %d targets for %d bound outputs", len(pass.Targets), bound)
	}
	if len(pass.Inputs) != len(p.desc.Inputs) {
		return nil, nil, fmt.Errorf("soft: %d inputs for %d bindings", len(pass.Inputs), len(p.desc.Inputs))
	}
	if len(pass.Uniforms) != len(p.desc.Uniforms) {
		return nil, nil, fmt.Errorf("soft: %d uniform values for %d bindings", len(pass.Uniforms), len(p.desc.Uniforms))
	}

	for _, tex := range pass.Inputs {
		st, err := t.own(tex)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, st)
	}
	for slot, tex := range pass.Targets {
		st, err := t.own(tex)
		if err != nil {
			return nil, nil, err
		}
		if st.desc.Extent != pass.Extent {
			return nil, nil, fmt.Errorf("soft: target %d is %s, viewport %s", slot, st.desc.Extent, pass.Extent)
		}
		for _, in := range inputs {
			if in == st {
				return nil, nil, fmt.Errorf("%w: %s", ErrFeedbackLoop, st.desc.Label)
			}
		}
		targets = append(targets, st)
	}
	return targets, inputs, nil
}

func (t *target) own(tex gpgpu.Texture) (*Texture, error) {
	st, ok := tex.(*Texture)
	if !ok || st.dev != t.dev {
		return nil, fmt.Errorf("soft: texture %T does not belong to this device", tex)
	}
	if st.destroyed() {
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, st.desc.Label)
	}
	return st, nil
}

// ReadSlot copies the target bound at slot in the last draw into dst.
func (t *target) ReadSlot(slot int, dst []byte) error {
	if slot < 0 || slot >= len(t.last) {
		return fmt.Errorf("soft: no target at slot %d", slot)
	}
	return t.last[slot].Read(dst)
}

// Release drops the references to the last draw's targets.
func (t *target) Release() {
	t.last = nil
	t.released = true
}
