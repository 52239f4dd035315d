package gpgpu

import (
	"errors"
	"sync"
)

// fakeDevice records calls for tests inside the package, where the soft
// device cannot be imported. Draws write nothing.
type fakeDevice struct {
	mu   sync.Mutex
	caps Capabilities

	live       int
	programs   []*fakeProgram
	compiled   []*ProgramDescriptor
	failStep   int
	failCreate bool
	draws      []*Pass

	// liveAtRelease is the live texture count when each target was released.
	liveAtRelease []int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: Capabilities{
			MaxRenderTargets: 4,
			MaxInputs:        8,
			MaxExtent:        64,
			ShadingLanguage:  "WGSL",
			Renderer:         "fake",
		},
		failStep: -1,
	}
}

func (d *fakeDevice) Capabilities() Capabilities { return d.caps }

func (d *fakeDevice) CreateTexture(desc *TextureDescriptor, data []byte) (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCreate {
		return nil, errors.New("out of memory")
	}
	d.live++
	t := &fakeTexture{dev: d, desc: *desc, data: make([]byte, desc.Size())}
	copy(t.data, data)
	return t, nil
}

func (d *fakeDevice) CompileProgram(desc *ProgramDescriptor) (Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.compiled) == d.failStep {
		d.compiled = append(d.compiled, desc)
		return nil, &ShaderCompileError{Diagnostic: "unexpected token"}
	}
	d.compiled = append(d.compiled, desc)
	p := &fakeProgram{}
	d.programs = append(d.programs, p)
	return p, nil
}

func (d *fakeDevice) AcquireTarget() (RenderTarget, error) { return &fakeTarget{dev: d}, nil }

func (d *fakeDevice) Close() {}

func (d *fakeDevice) liveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

type fakeTexture struct {
	dev       *fakeDevice
	desc      TextureDescriptor
	data      []byte
	destroyed bool
}

func (t *fakeTexture) Descriptor() *TextureDescriptor { return &t.desc }
func (t *fakeTexture) Upload(data []byte) error       { copy(t.data, data); return nil }
func (t *fakeTexture) Read(dst []byte) error          { copy(dst, t.data); return nil }

func (t *fakeTexture) Duplicate() (Texture, error) {
	return t.dev.CreateTexture(&t.desc, t.data)
}

func (t *fakeTexture) Destroy() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if !t.destroyed {
		t.destroyed = true
		t.dev.live--
	}
}

type fakeProgram struct{ destroyed bool }

func (p *fakeProgram) Destroy() { p.destroyed = true }

type fakeTarget struct {
	dev  *fakeDevice
	last []Texture
}

func (t *fakeTarget) Draw(pass *Pass) error {
	t.dev.mu.Lock()
	t.dev.draws = append(t.dev.draws, pass)
	t.dev.mu.Unlock()
	t.last = pass.Targets
	return nil
}

func (t *fakeTarget) ReadSlot(slot int, dst []byte) error { return t.last[slot].Read(dst) }

func (t *fakeTarget) Release() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	t.dev.liveAtRelease = append(t.dev.liveAtRelease, t.dev.live)
}
