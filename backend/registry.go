package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gpgpu"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Hardware before the CPU reference device.
	backendPriority = []string{BackendWGPU, BackendSoft}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device from the named backend.
func Open(name string) (gpgpu.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}

	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	gpgpu.Logger().Info("backend: device opened", "backend", name, "renderer", dev.Capabilities().Renderer)
	return dev, nil
}

// OpenDefault opens the best available backend. Backends are tried in
// priority order (wgpu, soft), then any other registered backend in name
// order. The errors of every failed attempt are joined.
func OpenDefault() (gpgpu.Device, error) {
	tried := make(map[string]bool)
	var errs []error

	attempt := func(name string) gpgpu.Device {
		tried[name] = true
		dev, err := Open(name)
		if err != nil {
			gpgpu.Logger().Warn("backend: unavailable, trying next", "backend", name, "error", err)
			errs = append(errs, err)
			return nil
		}
		return dev
	}

	for _, name := range backendPriority {
		if IsRegistered(name) {
			if dev := attempt(name); dev != nil {
				return dev, nil
			}
		}
	}
	for _, name := range Available() {
		if !tried[name] {
			if dev := attempt(name); dev != nil {
				return dev, nil
			}
		}
	}

	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// MustOpenDefault returns the default device or panics.
func MustOpenDefault() gpgpu.Device {
	dev, err := OpenDefault()
	if err != nil {
		panic(fmt.Sprintf("backend: no device available: %v", err))
	}
	return dev
}
