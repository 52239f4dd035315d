package soft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gpgpu"
)

// ErrDestroyed is returned when a destroyed texture is used.
var ErrDestroyed = errors.New("soft: texture destroyed")

// Vec holds the four channels of a texel. Integer channels are stored
// exactly; every 32-bit integer fits in a float64.
type Vec [4]float64

// Texture is a host-memory texture.
type Texture struct {
	dev  *Device
	desc gpgpu.TextureDescriptor
	data []byte
}

var (
	_ gpgpu.Texture     = (*Texture)(nil)
	_ gpgpu.AsyncReader = (*Texture)(nil)
)

// Descriptor returns the descriptor the texture was created with.
func (t *Texture) Descriptor() *gpgpu.TextureDescriptor { return &t.desc }

// Upload replaces the contents.
func (t *Texture) Upload(data []byte) error {
	if t.data == nil {
		return ErrDestroyed
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("soft: upload of %d bytes into %d", len(data), len(t.data))
	}
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	copy(t.data, data)
	return nil
}

// Read copies the contents into dst.
func (t *Texture) Read(dst []byte) error {
	if t.data == nil {
		return ErrDestroyed
	}
	if len(dst) != len(t.data) {
		return fmt.Errorf("soft: read of %d bytes into %d", len(t.data), len(dst))
	}
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	copy(dst, t.data)
	return nil
}

// ReadAsync copies the contents on a separate goroutine. The copy works
// on a snapshot taken before ReadAsync returns, so later writes to the
// texture do not affect dst.
func (t *Texture) ReadAsync(dst []byte) (func(context.Context) error, error) {
	if t.data == nil {
		return nil, ErrDestroyed
	}
	if len(dst) != len(t.data) {
		return nil, fmt.Errorf("soft: read of %d bytes into %d", len(t.data), len(dst))
	}
	t.dev.mu.Lock()
	snapshot := append([]byte(nil), t.data...)
	t.dev.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		copy(dst, snapshot)
	}()
	return func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

// Duplicate returns a copy of the texture.
func (t *Texture) Duplicate() (gpgpu.Texture, error) {
	if t.data == nil {
		return nil, ErrDestroyed
	}
	t.dev.mu.Lock()
	data := append([]byte(nil), t.data...)
	t.dev.mu.Unlock()
	return t.dev.newTexture(t.desc, data), nil
}

// Destroy releases the texture. Calling it again is a no-op.
func (t *Texture) Destroy() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if t.data == nil {
		return
	}
	t.data = nil
	t.dev.textures.Add(-1)
}

func (t *Texture) destroyed() bool { return t.data == nil }

// load returns the texel at (x, y), which must be in range.
func (t *Texture) load(x, y int) Vec {
	f := t.desc.Format
	off := (y*t.desc.Extent.Width + x) * f.TexelBytes()
	var v Vec
	for c := 0; c < f.Vector; c++ {
		v[c] = decodeChannel(f.Type, t.data[off+c*f.Bytes:])
	}
	return v
}

// store writes the first Vector channels of v at (x, y).
func (t *Texture) store(x, y int, v Vec) {
	f := t.desc.Format
	off := (y*t.desc.Extent.Width + x) * f.TexelBytes()
	for c := 0; c < f.Vector; c++ {
		encodeChannel(f.Type, t.data[off+c*f.Bytes:], v[c])
	}
}

func decodeChannel(t gpgpu.ElementType, b []byte) float64 {
	switch t {
	case gpgpu.Int8:
		return float64(int8(b[0]))
	case gpgpu.Uint8:
		return float64(b[0])
	case gpgpu.Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case gpgpu.Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case gpgpu.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case gpgpu.Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	default:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
}

// encodeChannel converts v the way a render target of type t stores a
// shader result: floats are rounded to float32, integers truncated toward
// zero and then to the channel width.
func encodeChannel(t gpgpu.ElementType, b []byte, v float64) {
	if t == gpgpu.Float32 {
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	n := int64(v)
	switch t.Bytes() {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(n)) //nolint:gosec // truncation is the storage semantics
	default:
		binary.LittleEndian.PutUint32(b, uint32(n)) //nolint:gosec // truncation is the storage semantics
	}
}
