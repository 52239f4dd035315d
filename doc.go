// Package gpgpu runs general-purpose numeric kernels on the GPU by storing
// arrays in 2-D textures and expressing kernels as fragment programs drawn
// over a full-screen quad.
//
// # Overview
//
// A logically 1-D array of typed numbers is placed into the most square
// texture that holds it. A kernel is a WGSL body that reads its inputs
// through generated accessors and assigns its outputs as ordinary
// variables. Each output element is produced by one fragment.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpgpu"
//	    "github.com/gogpu/gpgpu/backend"
//	    _ "github.com/gogpu/gpgpu/backend/soft"
//	)
//
//	dev, _ := backend.OpenDefault()
//	defer dev.Close()
//
//	src, _ := gpgpu.NewHostBuffer(dev, []float32{1, 2, 3, 4})
//	k, _ := gpgpu.NewKernel(dev, gpgpu.KernelIO{
//	    Inputs:  []gpgpu.Binding{gpgpu.Bind("src", src)},
//	    Outputs: []gpgpu.Binding{gpgpu.Bind("dst", src)},
//	}, `fn main() { dst = bl_fetch_src(bl_Id()) * 2.0; }`)
//	defer k.Delete()
//
//	_ = k.Exec(nil) // src.Data() is now {2, 4, 6, 8}
//
// # Buffers
//
// HostBuffer keeps its data in host memory and creates device surfaces
// only for the duration of an Exec call. DeviceBuffer keeps its data on
// the device until Delete and transfers to the host only on request.
//
// A buffer may be bound as an input and an output of the same kernel. Each
// buffer renders into a writable surface that is never its readable one,
// and the writable surface becomes readable once Exec finishes.
//
// # Kernel Language
//
// Every program starts with a fixed preamble (see Preamble) that provides:
//   - bl_Size: the output extent
//   - bl_Id(): the linear index of the current element
//   - bl_fetch_<input>(id) and bl_at_<input>(coord) accessors per input
//
// The body must define fn main(). Names starting with bl_ are reserved.
//
// # Multi-pass Kernels
//
// When a kernel declares more outputs than the device can render at once,
// it is split into steps that each write a group of outputs. Every step
// runs the whole body; an output not written by a step is a zero-valued
// private variable there, so NewKernel rejects bodies that read such an
// output before assigning it.
package gpgpu

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
