package backend

import (
	"errors"

	"github.com/gogpu/gpgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device on this machine.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendWGPU is the name of the hardware backend on gogpu/wgpu.
	BackendWGPU = "wgpu"
	// BackendSoft is the name of the CPU reference backend.
	BackendSoft = "soft"
)

// Factory opens a device. It returns an error wrapping
// ErrBackendNotAvailable when the backend cannot run here.
type Factory func() (gpgpu.Device, error)
