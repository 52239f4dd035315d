// Package backend selects the device that buffers and kernels run on.
//
// # Backend Registration
//
// Backends register a device factory from init() functions, so importing
// a backend package is enough to make it selectable:
//
//	import (
//		_ "github.com/gogpu/gpgpu/backend/soft"
//		_ "github.com/gogpu/gpgpu/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use OpenDefault to get the best available device, or Open to request a
// specific backend by name:
//
//	dev, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	// Or request a specific backend
//	dev, err := backend.Open(backend.BackendSoft)
//
// # Available Backends
//
//   - "wgpu": hardware device via gogpu/wgpu (Vulkan)
//   - "soft": CPU reference device that runs kernels with registered Go
//     routines; always available
package backend
