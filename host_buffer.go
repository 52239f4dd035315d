package gpgpu

import "fmt"

// HostBuffer keeps its canonical data in host memory. Device surfaces are
// created lazily when a kernel first touches the buffer and destroyed when
// that kernel's Exec returns, after the results have been copied back
// into Data.
type HostBuffer[T Number] struct {
	layout

	data     []T
	readable *surface
	writable *surface
	released bool
}

var _ Buffer = (*HostBuffer[float32])(nil)

// NewHostBuffer wraps data in a HostBuffer. The buffer takes ownership of
// data: kernels write their results into the same slice.
func NewHostBuffer[T Number](dev Device, data []T, opts ...BufferOption) (*HostBuffer[T], error) {
	l, err := newLayout[T](dev, len(data), opts)
	if err != nil {
		return nil, err
	}
	return &HostBuffer[T]{layout: l, data: data}, nil
}

// AllocHostBuffer returns a zeroed HostBuffer holding n scalars.
func AllocHostBuffer[T Number](dev Device, n int, opts ...BufferOption) (*HostBuffer[T], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: alloc count %d", ErrConfiguration, n)
	}
	return NewHostBuffer(dev, make([]T, n), opts...)
}

// Data returns the host data. It is nil after Delete.
func (b *HostBuffer[T]) Data() []T { return b.data }

// Copy returns a new HostBuffer with a copy of the host data and the same
// vector width and edge policy.
func (b *HostBuffer[T]) Copy() (*HostBuffer[T], error) {
	if b.released {
		return nil, ErrReleased
	}
	data := make([]T, len(b.data))
	copy(data, b.data)
	return NewHostBuffer(b.dev, data,
		WithVector(b.format.Vector), WithWrapST(b.wrap.S, b.wrap.T))
}

// Delete drops the host data and destroys any device surfaces.
func (b *HostBuffer[T]) Delete() {
	b.release()
	b.data = nil
	b.released = true
}

func (b *HostBuffer[T]) release() {
	b.readable.destroy()
	b.readable = nil
	b.writable.destroy()
	b.writable = nil
}

func (b *HostBuffer[T]) readSurface(force bool) (*surface, error) {
	if b.released {
		return nil, ErrReleased
	}
	if b.readable == nil && force {
		s, err := newSurface(b.dev, b.textureDescriptor("readable"), hostView(&b.layout, b.data))
		if err != nil {
			return nil, err
		}
		b.readable = s
	}
	return b.readable, nil
}

func (b *HostBuffer[T]) writeSurface(force bool) (*surface, error) {
	if b.released {
		return nil, ErrReleased
	}
	if b.writable == nil && force {
		s, err := newSurface(b.dev, b.textureDescriptor("writable"), hostView(&b.layout, b.data))
		if err != nil {
			return nil, err
		}
		b.writable = s
	}
	return b.writable, nil
}

// afterDraw copies the rendered target back into host memory so that the
// host data reflects the pass before the next step runs.
func (b *HostBuffer[T]) afterDraw(t RenderTarget, slot int) error {
	return readInto(&b.layout, b.data, func(dst []byte) error {
		return deviceError("read target "+b.label, t.ReadSlot(slot, dst))
	})
}

// finalize destroys both surfaces; host memory is canonical at rest.
func (b *HostBuffer[T]) finalize() error {
	b.release()
	return nil
}
