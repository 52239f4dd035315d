//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/internal/cache"
)

// spirvCacheSize bounds the number of translated programs kept across
// devices.
const spirvCacheSize = 128

// spirvCache maps WGSL source to its SPIR-V words. Kernels recompiled with
// the same layout, and the per-format blit shaders, skip naga.
var spirvCache = cache.New[string, []uint32](spirvCacheSize)

// compileSPIRV translates WGSL to SPIR-V words. Naga diagnostics are
// returned as the error text. The returned slice is shared and must not
// be modified.
func compileSPIRV(source string) ([]uint32, error) {
	return spirvCache.GetOrCreate(source, func() ([]uint32, error) {
		return translateSPIRV(source)
	})
}

func translateSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

// sampleType returns the texture binding type for an input format. Float
// inputs are read with textureLoad only, so 32-bit float formats need not
// be filterable.
func sampleType(s gpgpu.SampleKind) gputypes.TextureSampleType {
	switch s {
	case gpgpu.SampleSint:
		return gputypes.TextureSampleTypeSint
	case gpgpu.SampleUint:
		return gputypes.TextureSampleTypeUint
	default:
		return gputypes.TextureSampleTypeUnfilterableFloat
	}
}

func textureEntry(binding int, s gpgpu.SampleKind) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    uint32(binding), //nolint:gosec // bindings are small
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    sampleType(s),
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

func uniformEntry(binding int) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    uint32(binding), //nolint:gosec // bindings are small
		Visibility: gputypes.ShaderStageFragment,
		Buffer: &gputypes.BufferBindingLayout{
			Type: gputypes.BufferBindingTypeUniform,
		},
	}
}

// pipelineObjects are the HAL objects behind one render pipeline, destroyed
// in reverse creation order.
type pipelineObjects struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

func (o *pipelineObjects) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if o.pipeline != nil {
		device.DestroyRenderPipeline(o.pipeline)
	}
	if o.pipeLayout != nil {
		device.DestroyPipelineLayout(o.pipeLayout)
	}
	if o.bindLayout != nil {
		device.DestroyBindGroupLayout(o.bindLayout)
	}
	if o.module != nil {
		device.DestroyShaderModule(o.module)
	}
	*o = pipelineObjects{}
}

// buildPipeline creates a full-viewport triangle-strip pipeline over
// spirv with one color target per format. The caller holds d.mu.
func (d *Device) buildPipeline(label string, spirv []uint32, vertexEntry, fragmentEntry string,
	entries []gputypes.BindGroupLayoutEntry, formats []gputypes.TextureFormat) (*pipelineObjects, error) {
	o := &pipelineObjects{}
	var err error

	o.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}

	o.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		o.destroy(d.device)
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}

	o.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{o.bindLayout},
	})
	if err != nil {
		o.destroy(d.device)
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	targets := make([]gputypes.ColorTargetState, len(formats))
	for i, f := range formats {
		targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
	}
	o.pipeline, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: o.pipeLayout,
		Vertex: hal.VertexState{
			Module:     o.module,
			EntryPoint: vertexEntry,
		},
		Fragment: &hal.FragmentState{
			Module:     o.module,
			EntryPoint: fragmentEntry,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		o.destroy(d.device)
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	return o, nil
}

// program is one compiled kernel step.
type program struct {
	dev  *Device
	desc gpgpu.ProgramDescriptor
	objs *pipelineObjects

	// bound is the number of color targets, one per bound output.
	bound int
}

// CompileProgram translates the synthesized WGSL with naga and builds the
// render pipeline. Translation failures are returned as
// *gpgpu.ShaderCompileError carrying the naga diagnostic.
func (d *Device) CompileProgram(desc *gpgpu.ProgramDescriptor) (gpgpu.Program, error) {
	spirv, err := compileSPIRV(desc.Source)
	if err != nil {
		return nil, &gpgpu.ShaderCompileError{Diagnostic: err.Error(), Source: desc.Source}
	}

	entries := []gputypes.BindGroupLayoutEntry{uniformEntry(gpgpu.SizeBinding)}
	for _, in := range desc.Inputs {
		entries = append(entries, textureEntry(in.Binding, in.Format.Sample))
	}
	for _, u := range desc.Uniforms {
		entries = append(entries, uniformEntry(u.Binding))
	}

	// Slots are consecutive from 0.
	var formats []gputypes.TextureFormat
	for _, o := range desc.Outputs {
		if !o.Bound() {
			continue
		}
		for len(formats) <= o.Slot {
			formats = append(formats, gputypes.TextureFormatUndefined)
		}
		formats[o.Slot] = o.Format.Storage
	}
	for slot, f := range formats {
		if f == gputypes.TextureFormatUndefined {
			return nil, fmt.Errorf("%w: output slot %d", ErrUnsupportedFormat, slot)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	objs, err := d.buildPipeline(desc.Label, spirv, gpgpu.VertexEntryPoint, gpgpu.FragmentEntryPoint, entries, formats)
	if err != nil {
		return nil, err
	}
	gpgpu.Logger().Debug("wgpu: program compiled", "label", desc.Label, "targets", len(formats))
	return &program{dev: d, desc: *desc, objs: objs, bound: len(formats)}, nil
}

// Destroy releases the pipeline. Calling it again is a no-op.
func (p *program) Destroy() {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.objs.destroy(p.dev.device)
}

func (p *program) destroyed() bool { return p.objs.pipeline == nil }

// blitShader copies the source texel under each fragment. %[1]s is the
// texel scalar type.
const blitShader = `@group(0) @binding(0) var src: texture_2d<%[1]s>;

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    let pos = vec2<f32>(f32(index & 1u), f32(index >> 1u)) * 2.0 - 1.0;
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) position: vec4<f32>) -> @location(0) vec4<%[1]s> {
    return textureLoad(src, vec2<i32>(position.xy), 0);
}
`

// blitPipeline copies one texture format into another texture of the
// same format and extent.
type blitPipeline struct {
	objs *pipelineObjects
}

// blitFor returns the cached blit pipeline for f. The caller holds d.mu.
func (d *Device) blitFor(f gpgpu.FormatDescriptor) (*blitPipeline, error) {
	if b, ok := d.blits[f.Storage]; ok {
		return b, nil
	}
	scalar := "f32"
	switch f.Sample {
	case gpgpu.SampleSint:
		scalar = "i32"
	case gpgpu.SampleUint:
		scalar = "u32"
	}
	spirv, err := compileSPIRV(fmt.Sprintf(blitShader, scalar))
	if err != nil {
		return nil, fmt.Errorf("compile blit shader: %w", err)
	}
	objs, err := d.buildPipeline("blit_"+f.InternalFormat, spirv, "vs_main", "fs_main",
		[]gputypes.BindGroupLayoutEntry{textureEntry(0, f.Sample)},
		[]gputypes.TextureFormat{f.Storage})
	if err != nil {
		return nil, err
	}
	b := &blitPipeline{objs: objs}
	d.blits[f.Storage] = b
	return b, nil
}

// copy renders src into dst and waits. The caller holds d.mu.
func (b *blitPipeline) copy(d *Device, src, dst *Texture) error {
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "blit_bind",
		Layout: b.objs.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: textureBinding(src)},
		},
	})
	if err != nil {
		return fmt.Errorf("create blit bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	return d.submit("blit", func(enc hal.CommandEncoder) error {
		src.transition(enc, gputypes.TextureUsageTextureBinding)
		dst.transition(enc, gputypes.TextureUsageRenderAttachment)
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "blit_pass",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       dst.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{},
			}},
		})
		rp.SetPipeline(b.objs.pipeline)
		rp.SetBindGroup(0, bg, nil)
		rp.Draw(4, 1, 0, 0)
		rp.End()
		return nil
	})
}

func (b *blitPipeline) destroy(device hal.Device) {
	b.objs.destroy(device)
}

func textureBinding(t *Texture) gputypes.TextureViewBinding {
	return gputypes.TextureViewBinding{
		TextureView: t.view.NativeHandle(),
	}
}
