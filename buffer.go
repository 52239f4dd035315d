package gpgpu

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Buffer is a named kernel argument. HostBuffer and DeviceBuffer are the
// only implementations; the kernel drives both through this interface and
// never inspects the concrete kind.
type Buffer interface {
	// Format returns the storage and shader descriptors of the buffer.
	Format() FormatDescriptor
	// Extent returns the 2-D placement of the buffer's texels.
	Extent() Extent
	// Wrap returns the edge policy applied to out-of-range addressing.
	Wrap() Wrap
	// Len returns the number of scalars the caller stored.
	Len() int
	// Delete releases every device surface of the buffer.
	Delete()

	base() *layout
	// readSurface returns the surface holding the committed value,
	// creating it when force is set.
	readSurface(force bool) (*surface, error)
	// writeSurface returns the surface a pass renders into. It is never
	// the readable surface.
	writeSurface(force bool) (*surface, error)
	// afterDraw runs once the target at slot holds this buffer's output.
	afterDraw(t RenderTarget, slot int) error
	// finalize reconciles the readable and writable surfaces after Exec.
	finalize() error
}

var bufferSeq atomic.Uint64

// layout is the shape shared by both buffer kinds.
type layout struct {
	dev    Device
	format FormatDescriptor
	extent Extent
	wrap   Wrap
	length int
	label  string
}

func newLayout[T Number](dev Device, length int, opts []BufferOption) (layout, error) {
	if dev == nil {
		return layout{}, fmt.Errorf("%w: nil device", ErrConfiguration)
	}
	if length < 1 {
		return layout{}, fmt.Errorf("%w: buffer needs data or a positive alloc count, got %d", ErrConfiguration, length)
	}

	o := defaultBufferOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.label == "" {
		o.label = fmt.Sprintf("buffer_%d", bufferSeq.Add(1))
	}

	vector, promoted, err := NormalizeVector(o.vector)
	if err != nil {
		return layout{}, err
	}
	if promoted {
		Logger().Warn("gpgpu: vector width 3 is not supported, using 4", "buffer", o.label)
	}

	format, err := DeriveFormat(ElementTypeOf[T](), vector)
	if err != nil {
		return layout{}, err
	}

	texels := (length + vector - 1) / vector
	extent, err := PlanExtent(texels, dev.Capabilities().MaxExtent)
	if err != nil {
		return layout{}, err
	}

	return layout{
		dev:    dev,
		format: format,
		extent: extent,
		wrap:   o.wrap,
		length: length,
		label:  o.label,
	}, nil
}

func (l *layout) Format() FormatDescriptor { return l.format }
func (l *layout) Extent() Extent           { return l.extent }
func (l *layout) Wrap() Wrap               { return l.wrap }
func (l *layout) Len() int                 { return l.length }
func (l *layout) base() *layout            { return l }

// size returns the byte size of the device representation.
func (l *layout) size() int {
	return l.extent.Texels() * l.format.TexelBytes()
}

func (l *layout) textureDescriptor(role string) TextureDescriptor {
	return TextureDescriptor{
		Label:  l.label + "_" + role,
		Format: l.format,
		Extent: l.extent,
		Wrap:   l.wrap,
	}
}

// sameShape reports whether two buffers can be swapped for each other in
// a kernel binding.
func (l *layout) sameShape(o *layout) bool {
	return l.format == o.format && l.extent == o.extent && l.wrap == o.wrap
}

// asBytes views s as raw bytes without copying.
func asBytes[T Number](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// hostView returns data in the device byte layout. Data that fills the
// last texel is viewed in place; shorter data is padded through a
// staging slice.
func hostView[T Number](l *layout, data []T) []byte {
	b := asBytes(data)
	if len(b) == l.size() {
		return b
	}
	staging := make([]byte, l.size())
	copy(staging, b)
	return staging
}

// readInto fills data from a device read, staging through a padded slice
// when data does not cover the whole texture.
func readInto[T Number](l *layout, data []T, read func(dst []byte) error) error {
	b := asBytes(data)
	if len(b) == l.size() {
		return read(b)
	}
	staging := make([]byte, l.size())
	if err := read(staging); err != nil {
		return err
	}
	copy(b, staging)
	return nil
}
