// Package wgpu provides the hardware backend for gpgpu using gogpu/wgpu.
//
// Buffers live in 2-D textures of a non-normalized format and kernels run
// as fragment programs: every step binds its outputs as color attachments,
// its inputs as sampled textures and its uniforms as uniform buffers, and
// draws a 4-vertex triangle strip that covers the viewport.
//
// # Device Selection
//
// New opens the first discrete or integrated adapter of the Vulkan HAL
// backend. NewFromProvider shares a device owned by a host application
// through gpucontext.DeviceProvider, in which case Close leaves the device
// alone.
//
// # Shader Compilation
//
// Synthesized programs are compiled from WGSL to SPIR-V with naga. A naga
// error is reported as *gpgpu.ShaderCompileError carrying the diagnostic
// and the program text. Translations are cached by source, so recompiling
// a kernel with the same layout skips naga.
//
// # Registration
//
// Importing this package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/gpgpu/backend/wgpu"
//
//	dev, err := backend.Open(backend.BackendWGPU)
//
// # Limits
//
// Device capabilities come from the limits the device was opened with:
// MaxColorAttachments bounds the outputs of one step,
// MaxSampledTexturesPerShaderStage the inputs of a kernel and
// MaxTextureDimension2D the extent of a buffer.
package wgpu
