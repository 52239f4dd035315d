package soft

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend"
	"github.com/gogpu/gpgpu/internal/parallel"
	"github.com/gogpu/naga"
)

// Default limits. They match the minimum guarantees of WebGPU so that
// kernels planned against the soft device also fit real hardware.
const (
	DefaultMaxRenderTargets = 8
	DefaultMaxInputs        = 16
	DefaultMaxExtent        = 8192
)

// init registers the soft backend on package import.
func init() {
	backend.Register(backend.BackendSoft, func() (gpgpu.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*Device)

// WithMaxRenderTargets sets the number of outputs one draw can write.
func WithMaxRenderTargets(n int) Option {
	return func(d *Device) { d.caps.MaxRenderTargets = n }
}

// WithMaxInputs sets the number of inputs one program can read.
func WithMaxInputs(n int) Option {
	return func(d *Device) { d.caps.MaxInputs = n }
}

// WithMaxExtent sets the largest texture width or height.
func WithMaxExtent(n int) Option {
	return func(d *Device) { d.caps.MaxExtent = n }
}

// WithWorkers sets the number of goroutines a draw is spread over. Zero
// or less means GOMAXPROCS; 1 runs every draw on the calling goroutine.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// WithValidation makes CompileProgram translate every synthesized program
// with naga before looking up its routine, so that programs the GPU would
// reject fail here too.
func WithValidation(on bool) Option {
	return func(d *Device) { d.validate = on }
}

// Device is the CPU reference device. All methods are safe for concurrent
// use; draws are serialized.
type Device struct {
	mu       sync.Mutex
	caps     gpgpu.Capabilities
	validate bool

	workers int
	pool    *parallel.WorkerPool

	textures atomic.Int64
	programs atomic.Int64
	draws    atomic.Int64
}

var _ gpgpu.Device = (*Device)(nil)

// New returns a soft device.
func New(opts ...Option) *Device {
	d := &Device{
		caps: gpgpu.Capabilities{
			MaxRenderTargets: DefaultMaxRenderTargets,
			MaxInputs:        DefaultMaxInputs,
			MaxExtent:        DefaultMaxExtent,
			ShadingLanguage:  "WGSL (CPU reference)",
			Renderer:         "gpgpu soft",
			Vendor:           "gogpu",
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capabilities returns the device limits.
func (d *Device) Capabilities() gpgpu.Capabilities { return d.caps }

// Stats is a snapshot of live device objects.
type Stats struct {
	Textures int
	Programs int
	Draws    int
}

// Stats returns the number of live textures and programs and the total
// number of draws issued.
func (d *Device) Stats() Stats {
	return Stats{
		Textures: int(d.textures.Load()),
		Programs: int(d.programs.Load()),
		Draws:    int(d.draws.Load()),
	}
}

// CreateTexture allocates a texture in host memory.
func (d *Device) CreateTexture(desc *gpgpu.TextureDescriptor, data []byte) (gpgpu.Texture, error) {
	e := desc.Extent
	if e.Width < 1 || e.Height < 1 || e.Width > d.caps.MaxExtent || e.Height > d.caps.MaxExtent {
		return nil, fmt.Errorf("soft: texture extent %s outside 1..%d", e, d.caps.MaxExtent)
	}
	buf := make([]byte, desc.Size())
	if data != nil {
		if len(data) != len(buf) {
			return nil, fmt.Errorf("soft: %d bytes for texture of %d", len(data), len(buf))
		}
		copy(buf, data)
	}
	return d.newTexture(*desc, buf), nil
}

func (d *Device) newTexture(desc gpgpu.TextureDescriptor, data []byte) *Texture {
	d.textures.Add(1)
	return &Texture{dev: d, desc: desc, data: data}
}

// program is a compiled step: the routine and the binding layout.
type program struct {
	dev       *Device
	desc      gpgpu.ProgramDescriptor
	routine   Routine
	destroyed bool
}

func (p *program) Destroy() {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.dev.programs.Add(-1)
}

// CompileProgram looks up the routine registered for the body.
func (d *Device) CompileProgram(desc *gpgpu.ProgramDescriptor) (gpgpu.Program, error) {
	if d.validate {
		if _, err := naga.Compile(desc.Source); err != nil {
			return nil, &gpgpu.ShaderCompileError{Diagnostic: err.Error(), Source: desc.Source}
		}
	}
	if !strings.Contains(desc.Body, "fn main") {
		return nil, &gpgpu.ShaderCompileError{Diagnostic: "body does not define fn main()", Source: desc.Source}
	}
	r, ok := lookupRoutine(desc.Body)
	if !ok {
		return nil, &gpgpu.ShaderCompileError{Diagnostic: "soft: no routine registered for kernel body", Source: desc.Source}
	}
	d.programs.Add(1)
	return &program{dev: d, desc: *desc, routine: r}, nil
}

// AcquireTarget returns a rendering target container.
func (d *Device) AcquireTarget() (gpgpu.RenderTarget, error) {
	return &target{dev: d}, nil
}

// workerPool returns the pool draws run on, starting it on first use.
// The caller holds d.mu.
func (d *Device) workerPool() *parallel.WorkerPool {
	if d.pool == nil {
		d.pool = parallel.NewWorkerPool(d.workers)
	}
	return d.pool
}

// Close stops the draw workers; later draws run on the calling
// goroutine. Textures and programs are garbage collected.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Close()
	}
}
