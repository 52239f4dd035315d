//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu"
)

// renderTarget is the rendering target container of one Exec call. Each
// Draw is submitted and waited for before it returns, so the next step
// sees its results.
type renderTarget struct {
	dev      *Device
	last     []*Texture
	released bool
}

// Draw records one render pass over the program's pipeline with every
// target attached and submits it.
func (t *renderTarget) Draw(pass *gpgpu.Pass) error {
	if t.released {
		return errors.New("wgpu: target released")
	}
	p, ok := pass.Program.(*program)
	if !ok || p.dev != t.dev {
		return fmt.Errorf("wgpu: program %T does not belong to this device", pass.Program)
	}

	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if p.destroyed() {
		return errors.New("wgpu: program destroyed")
	}
	targets, inputs, err := t.bind(p, pass)
	if err != nil {
		return err
	}

	res, err := d.passResources(p, pass, inputs)
	if err != nil {
		return err
	}
	defer res.release(d.device)

	err = d.submit(p.desc.Label, func(enc hal.CommandEncoder) error {
		for _, in := range inputs {
			in.transition(enc, gputypes.TextureUsageTextureBinding)
		}
		attachments := make([]hal.RenderPassColorAttachment, len(targets))
		for i, tex := range targets {
			tex.transition(enc, gputypes.TextureUsageRenderAttachment)
			attachments[i] = hal.RenderPassColorAttachment{
				View:    tex.view,
				LoadOp:  gputypes.LoadOpLoad,
				StoreOp: gputypes.StoreOpStore,
			}
		}
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label:            p.desc.Label + "_pass",
			ColorAttachments: attachments,
		})
		rp.SetPipeline(p.objs.pipeline)
		rp.SetBindGroup(0, res.bindGroup, nil)
		rp.Draw(4, 1, 0, 0)
		rp.End()
		return nil
	})
	if err != nil {
		return err
	}
	t.last = targets
	return nil
}

// bind resolves the pass textures and checks them against the program.
// The caller holds t.dev.mu.
func (t *renderTarget) bind(p *program, pass *gpgpu.Pass) (targets, inputs []*Texture, err error) {
	if len(pass.Targets) != p.bound {
		return nil, nil, fmt.Errorf("wgpu: %d targets for %d bound outputs", len(pass.Targets), p.bound)
	}
	if len(pass.Inputs) != len(p.desc.Inputs) {
		return nil, nil, fmt.Errorf("wgpu: %d inputs for %d bindings", len(pass.Inputs), len(p.desc.Inputs))
	}
	if len(pass.Uniforms) != len(p.desc.Uniforms) {
		return nil, nil, fmt.Errorf("wgpu: %d uniform values for %d bindings", len(pass.Uniforms), len(p.desc.Uniforms))
	}

	for _, tex := range pass.Inputs {
		wt, err := t.own(tex)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, wt)
	}
	for slot, tex := range pass.Targets {
		wt, err := t.own(tex)
		if err != nil {
			return nil, nil, err
		}
		if wt.desc.Extent != pass.Extent {
			return nil, nil, fmt.Errorf("wgpu: target %d is %s, viewport %s", slot, wt.desc.Extent, pass.Extent)
		}
		for _, in := range inputs {
			if in == wt {
				return nil, nil, fmt.Errorf("wgpu: texture %s is both input and render target", wt.desc.Label)
			}
		}
		targets = append(targets, wt)
	}
	return targets, inputs, nil
}

func (t *renderTarget) own(tex gpgpu.Texture) (*Texture, error) {
	wt, ok := tex.(*Texture)
	if !ok || wt.dev != t.dev {
		return nil, fmt.Errorf("wgpu: texture %T does not belong to this device", tex)
	}
	if err := wt.usable(); err != nil {
		return nil, err
	}
	return wt, nil
}

// ReadSlot copies the target bound at slot in the last draw into dst.
func (t *renderTarget) ReadSlot(slot int, dst []byte) error {
	if slot < 0 || slot >= len(t.last) {
		return fmt.Errorf("wgpu: no target at slot %d", slot)
	}
	return t.last[slot].Read(dst)
}

// Release drops the references to the last draw's targets.
func (t *renderTarget) Release() {
	t.last = nil
	t.released = true
}

// passResources are the per-draw uniform buffers and bind group.
type passResources struct {
	buffers   []hal.Buffer
	bindGroup hal.BindGroup
}

func (r *passResources) release(device hal.Device) {
	if device == nil {
		return
	}
	if r.bindGroup != nil {
		device.DestroyBindGroup(r.bindGroup)
	}
	for _, b := range r.buffers {
		device.DestroyBuffer(b)
	}
}

// passResources uploads bl_Size and the uniform values and binds them with
// the input views. The caller holds d.mu.
func (d *Device) passResources(p *program, pass *gpgpu.Pass, inputs []*Texture) (*passResources, error) {
	res := &passResources{}
	var entries []gputypes.BindGroupEntry

	addUniform := func(binding int, data []byte) error {
		buf, err := d.uniformBuffer(p.desc.Label, data)
		if err != nil {
			return err
		}
		res.buffers = append(res.buffers, buf)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(binding), //nolint:gosec // bindings are small
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: uint64(len(data)),
			},
		})
		return nil
	}

	if err := addUniform(gpgpu.SizeBinding, gpgpu.EncodeSize(pass.Extent)); err != nil {
		res.release(d.device)
		return nil, err
	}
	for i, in := range p.desc.Inputs {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(in.Binding), //nolint:gosec // bindings are small
			Resource: textureBinding(inputs[i]),
		})
	}
	for i, u := range p.desc.Uniforms {
		if err := addUniform(u.Binding, pass.Uniforms[i].Encode()); err != nil {
			res.release(d.device)
			return nil, err
		}
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.desc.Label + "_bind",
		Layout:  p.objs.bindLayout,
		Entries: entries,
	})
	if err != nil {
		res.release(d.device)
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	res.bindGroup = bg
	return res, nil
}

func (d *Device) uniformBuffer(label string, data []byte) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_uniform",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer: %w", err)
	}
	d.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}
