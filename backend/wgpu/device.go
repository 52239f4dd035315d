//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Errors returned by the wgpu backend.
var (
	// ErrNoAdapter is returned when the HAL backend exposes no adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")

	// ErrClosed is returned when using a device after Close.
	ErrClosed = errors.New("wgpu: device closed")

	// ErrUnsupportedFormat is returned for a format without a renderable
	// texture format.
	ErrUnsupportedFormat = errors.New("wgpu: unsupported texture format")
)

// fenceTimeout bounds every synchronous wait for the GPU.
const fenceTimeout = 5 * time.Second

func init() {
	backend.Register(backend.BackendWGPU, func() (gpgpu.Device, error) {
		return New()
	})
}

// GPUInfo describes the adapter behind a device.
type GPUInfo struct {
	// Name is the adapter name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// DeviceType is the kind of adapter (discrete, integrated, ...).
	DeviceType gputypes.DeviceType
	// Backend is the graphics API in use.
	Backend gputypes.Backend
}

// String returns a human-readable description of the GPU.
func (g GPUInfo) String() string {
	return fmt.Sprintf("%s (%v, %v)", g.Name, g.DeviceType, g.Backend)
}

// Device runs gpgpu kernels on a HAL device. All methods are safe for
// concurrent use; GPU work is serialized.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	caps     gpgpu.Capabilities

	// blits holds one copy pipeline per texture format, used by Duplicate.
	blits map[gputypes.TextureFormat]*blitPipeline

	externalDevice bool // true when using a shared device (don't destroy on Close)
	closed         bool
}

var _ gpgpu.Device = (*Device)(nil)

// New opens a device on the first discrete or integrated Vulkan adapter,
// falling back to the first adapter of any kind.
func New() (*Device, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", backend.ErrBackendNotAvailable)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", backend.ErrBackendNotAvailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, ErrNoAdapter)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %w", backend.ErrBackendNotAvailable, err)
	}

	info := GPUInfo{
		Name:       selected.Info.Name,
		DeviceType: selected.Info.DeviceType,
		Backend:    gputypes.BackendVulkan,
	}
	d := NewFromHal(openDev.Device, openDev.Queue, limits, info)
	d.instance = instance
	d.externalDevice = false
	gpgpu.Logger().Info("wgpu: device opened", "gpu", info.String())
	return d, nil
}

// NewFromHal wraps a HAL device and queue opened with limits. The device
// is not destroyed by Close.
func NewFromHal(device hal.Device, queue hal.Queue, limits gputypes.Limits, info GPUInfo) *Device {
	return &Device{
		device:         device,
		queue:          queue,
		caps:           capabilitiesFromLimits(limits, info),
		blits:          make(map[gputypes.TextureFormat]*blitPipeline),
		externalDevice: true,
	}
}

// NewFromProvider shares the GPU device of a host application. The
// provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue; the device is assumed to use default limits.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	gpgpu.Logger().Info("wgpu: using shared GPU device")
	return NewFromHal(device, queue, gputypes.DefaultLimits(), GPUInfo{Name: "shared device"}), nil
}

func capabilitiesFromLimits(l gputypes.Limits, info GPUInfo) gpgpu.Capabilities {
	return gpgpu.Capabilities{
		MaxRenderTargets: int(l.MaxColorAttachments),
		MaxInputs:        int(l.MaxSampledTexturesPerShaderStage),
		MaxExtent:        int(l.MaxTextureDimension2D),
		ShadingLanguage:  "WGSL",
		Renderer:         info.Name,
		Vendor:           "gogpu/wgpu",
	}
}

// Capabilities returns the device limits.
func (d *Device) Capabilities() gpgpu.Capabilities { return d.caps }

// AcquireTarget returns a rendering target container.
func (d *Device) AcquireTarget() (gpgpu.RenderTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return &renderTarget{dev: d}, nil
}

// Close destroys the cached pipelines and, unless the device is shared,
// the device itself. Textures and programs must be destroyed first.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	for format, b := range d.blits {
		b.destroy(d.device)
		delete(d.blits, format)
	}
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}

// submit records commands into a new encoder, submits them and waits for
// the GPU. The caller holds d.mu.
func (d *Device) submit(label string, record func(enc hal.CommandEncoder) error) error {
	fence, cmdBuf, err := d.submitAsync(label, record)
	if err != nil {
		return err
	}
	defer d.device.FreeCommandBuffer(cmdBuf)
	defer d.device.DestroyFence(fence)
	return d.wait(fence)
}

// submitAsync records and submits commands without waiting. The caller
// owns the returned fence and command buffer. The caller holds d.mu.
func (d *Device) submitAsync(label string, record func(enc hal.CommandEncoder) error) (hal.Fence, hal.CommandBuffer, error) {
	if d.closed {
		return nil, nil, ErrClosed
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return nil, nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, nil, fmt.Errorf("begin encoding: %w", err)
	}
	if err := record(encoder); err != nil {
		encoder.DiscardEncoding()
		return nil, nil, err
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, nil, fmt.Errorf("end encoding: %w", err)
	}

	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return nil, nil, fmt.Errorf("create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmdBuf)
		return nil, nil, fmt.Errorf("submit: %w", err)
	}
	return fence, cmdBuf, nil
}

func (d *Device) wait(fence hal.Fence) error {
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wait for GPU: timed out after %s", fenceTimeout)
	}
	return nil
}
