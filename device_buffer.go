package gpgpu

import (
	"context"
	"fmt"
	"sync"
)

// DeviceBuffer keeps its canonical data in a persistent device surface.
// The surface is allocated at construction and survives across kernel
// invocations until Delete. Host memory is touched only by the explicit
// transfer methods.
type DeviceBuffer[T Number] struct {
	layout

	readable *surface
	writable *surface
	released bool
}

var _ Buffer = (*DeviceBuffer[float32])(nil)

// NewDeviceBuffer allocates a device surface and uploads data into it.
// data is not retained.
func NewDeviceBuffer[T Number](dev Device, data []T, opts ...BufferOption) (*DeviceBuffer[T], error) {
	l, err := newLayout[T](dev, len(data), opts)
	if err != nil {
		return nil, err
	}
	return newDeviceBuffer[T](l, hostView(&l, data))
}

// AllocDeviceBuffer allocates a zeroed device surface holding n scalars.
func AllocDeviceBuffer[T Number](dev Device, n int, opts ...BufferOption) (*DeviceBuffer[T], error) {
	l, err := newLayout[T](dev, n, opts)
	if err != nil {
		return nil, err
	}
	return newDeviceBuffer[T](l, nil)
}

func newDeviceBuffer[T Number](l layout, data []byte) (*DeviceBuffer[T], error) {
	b := &DeviceBuffer[T]{layout: l}
	s, err := newSurface(l.dev, b.textureDescriptor("readable"), data)
	if err != nil {
		return nil, err
	}
	b.readable = s
	return b, nil
}

// ToDevice replaces the device contents with data, which must hold
// exactly Len scalars.
func (b *DeviceBuffer[T]) ToDevice(data []T) error {
	if b.released {
		return ErrReleased
	}
	if len(data) != b.length {
		return fmt.Errorf("%w: got %d scalars, buffer holds %d", ErrDataSize, len(data), b.length)
	}
	return b.readable.upload(hostView(&b.layout, data))
}

// ToHost copies the device contents into dst and returns it. A nil dst
// is allocated; otherwise it must hold exactly Len scalars.
func (b *DeviceBuffer[T]) ToHost(dst []T) ([]T, error) {
	dst, err := b.prepareHost(dst)
	if err != nil {
		return nil, err
	}
	if err := readInto(&b.layout, dst, b.readable.read); err != nil {
		return nil, err
	}
	return dst, nil
}

// ToHostAsync starts copying the device contents into dst without
// blocking. The data must not be used until Readback.Wait returns.
func (b *DeviceBuffer[T]) ToHostAsync(dst []T) (*Readback[T], error) {
	dst, err := b.prepareHost(dst)
	if err != nil {
		return nil, err
	}

	raw := asBytes(dst)
	staging := raw
	if len(raw) != b.size() {
		staging = make([]byte, b.size())
	}
	wait, err := b.readable.readAsync(staging)
	if err != nil {
		return nil, err
	}
	return &Readback[T]{
		data: dst,
		wait: wait,
		finish: func() {
			if len(raw) != len(staging) {
				copy(raw, staging)
			}
		},
	}, nil
}

func (b *DeviceBuffer[T]) prepareHost(dst []T) ([]T, error) {
	if b.released {
		return nil, ErrReleased
	}
	if dst == nil {
		return make([]T, b.length), nil
	}
	if len(dst) != b.length {
		return nil, fmt.Errorf("%w: got %d scalars, buffer holds %d", ErrDataSize, len(dst), b.length)
	}
	return dst, nil
}

// Copy returns a new DeviceBuffer holding a device-side copy of the
// current contents.
func (b *DeviceBuffer[T]) Copy() (*DeviceBuffer[T], error) {
	if b.released {
		return nil, ErrReleased
	}
	dup, err := b.readable.duplicate()
	if err != nil {
		return nil, err
	}
	l := b.layout
	l.label = fmt.Sprintf("buffer_%d", bufferSeq.Add(1))
	dup.desc.Label = l.label + "_readable"
	return &DeviceBuffer[T]{layout: l, readable: dup}, nil
}

// Delete destroys the device surfaces.
func (b *DeviceBuffer[T]) Delete() {
	b.readable.destroy()
	b.readable = nil
	b.writable.destroy()
	b.writable = nil
	b.released = true
}

func (b *DeviceBuffer[T]) readSurface(bool) (*surface, error) {
	if b.released {
		return nil, ErrReleased
	}
	return b.readable, nil
}

// writeSurface starts from a copy of the committed value so that texels a
// pass leaves untouched keep their contents.
func (b *DeviceBuffer[T]) writeSurface(force bool) (*surface, error) {
	if b.released {
		return nil, ErrReleased
	}
	if b.writable == nil && force {
		s, err := b.readable.duplicate()
		if err != nil {
			return nil, err
		}
		s.desc.Label = b.label + "_writable"
		b.writable = s
	}
	return b.writable, nil
}

func (b *DeviceBuffer[T]) afterDraw(RenderTarget, int) error { return nil }

// finalize promotes the writable surface to readable.
func (b *DeviceBuffer[T]) finalize() error {
	if b.writable == nil {
		return nil
	}
	old := b.readable
	b.readable, b.writable = b.writable, nil
	old.destroy()
	return nil
}

// Readback is an in-flight asynchronous device-to-host copy.
type Readback[T Number] struct {
	data   []T
	wait   func(context.Context) error
	finish func()

	once sync.Once
	err  error
}

// Wait blocks until the copy completes or ctx is done and returns the
// host data. The outcome of the first Wait is final: later calls return
// the same data or error without waiting again.
func (r *Readback[T]) Wait(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.once.Do(func() {
		r.err = r.wait(ctx)
		if r.err == nil {
			r.finish()
		}
	})
	if r.err != nil {
		return nil, r.err
	}
	return r.data, nil
}
