// Package soft provides a CPU reference device for gpgpu.
//
// The device stores textures in host memory and runs a draw by calling a
// Go routine once per output element. It cannot interpret WGSL: each
// kernel body must have a routine registered with Register, keyed by the
// body text. Compiling a body without a routine fails like a shader that
// does not compile.
//
// The device enforces the same rules a GPU validation layer would: a
// texture can not be a render target and an input of the same draw,
// targets must match the viewport, and destroyed textures can not be
// used. This makes it suitable for testing the buffer and kernel logic
// without a GPU.
//
// Rows of a draw are spread over a worker pool (see WithWorkers), so a
// routine may run for several elements at once and must not share
// mutable state between calls.
//
// Importing the package registers the "soft" backend:
//
//	import _ "github.com/gogpu/gpgpu/backend/soft"
package soft
