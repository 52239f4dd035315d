//go:build !nogpu

package wgpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu"
)

// ErrTextureDestroyed is returned when a destroyed texture is used.
var ErrTextureDestroyed = errors.New("wgpu: texture destroyed")

// copyPitchAlignment is the row alignment of texture-to-buffer copies.
// WebGPU (and DX12) requires BytesPerRow aligned to 256 bytes.
const copyPitchAlignment = 256

// textureUsage is the usage every kernel texture is created with: sampled
// as an input, rendered into as an output, and copied in both directions.
const textureUsage = gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst

// Texture is a device texture with its default view.
type Texture struct {
	dev  *Device
	desc gpgpu.TextureDescriptor

	tex  hal.Texture
	view hal.TextureView

	// usage is the state the texture was last used in. Commands that use
	// it differently record a transition first.
	usage gputypes.TextureUsage
}

var (
	_ gpgpu.Texture     = (*Texture)(nil)
	_ gpgpu.AsyncReader = (*Texture)(nil)
)

// CreateTexture allocates a texture. A nil data slice uploads zeroes so
// that the contents are defined.
func (d *Device) CreateTexture(desc *gpgpu.TextureDescriptor, data []byte) (gpgpu.Texture, error) {
	if desc.Format.Storage == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, desc.Format.InternalFormat)
	}
	if data != nil && len(data) != desc.Size() {
		return nil, fmt.Errorf("wgpu: %d bytes of data for a %d-byte texture", len(data), desc.Size())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.newTexture(*desc)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make([]byte, desc.Size())
	}
	t.write(data)
	return t, nil
}

// newTexture creates the HAL texture and view. The caller holds d.mu.
func (d *Device) newTexture(desc gpgpu.TextureDescriptor) (*Texture, error) {
	if d.closed {
		return nil, ErrClosed
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Extent.Width),  //nolint:gosec // extents are bounded by MaxExtent
			Height:             uint32(desc.Extent.Height), //nolint:gosec // extents are bounded by MaxExtent
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format.Storage,
		Usage:         textureUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format.Storage,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view %s: %w", desc.Label, err)
	}
	return &Texture{dev: d, desc: desc, tex: tex, view: view, usage: gputypes.TextureUsageCopyDst}, nil
}

// Descriptor returns the descriptor the texture was created with.
func (t *Texture) Descriptor() *gpgpu.TextureDescriptor { return &t.desc }

// Upload replaces the contents.
func (t *Texture) Upload(data []byte) error {
	if len(data) != t.desc.Size() {
		return fmt.Errorf("wgpu: upload of %d bytes into %d", len(data), t.desc.Size())
	}
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	t.write(data)
	return nil
}

// write uploads data through the queue. The caller holds t.dev.mu.
func (t *Texture) write(data []byte) {
	e := t.desc.Extent
	t.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(e.Width * t.desc.Format.TexelBytes()), //nolint:gosec // bounded by MaxExtent
			RowsPerImage: uint32(e.Height),                             //nolint:gosec // bounded by MaxExtent
		},
		&hal.Extent3D{
			Width:              uint32(e.Width),  //nolint:gosec // bounded by MaxExtent
			Height:             uint32(e.Height), //nolint:gosec // bounded by MaxExtent
			DepthOrArrayLayers: 1,
		},
	)
	t.usage = gputypes.TextureUsageCopyDst
}

// Read copies the contents into dst.
func (t *Texture) Read(dst []byte) error {
	if len(dst) != t.desc.Size() {
		return fmt.Errorf("wgpu: read of %d bytes into %d", t.desc.Size(), len(dst))
	}
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}

	rb, err := t.copyOut()
	if err != nil {
		return err
	}
	defer rb.release()
	if err := t.dev.submit("readback", rb.record); err != nil {
		return err
	}
	return rb.finish(dst)
}

// ReadAsync submits the copy and returns at once. The GPU snapshot is
// taken in submission order, so later draws into the texture do not
// affect dst.
func (t *Texture) ReadAsync(dst []byte) (func(context.Context) error, error) {
	if len(dst) != t.desc.Size() {
		return nil, fmt.Errorf("wgpu: read of %d bytes into %d", t.desc.Size(), len(dst))
	}
	d := t.dev
	d.mu.Lock()
	if err := t.usable(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	rb, err := t.copyOut()
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	fence, cmdBuf, err := d.submitAsync("readback_async", rb.record)
	if err != nil {
		rb.release()
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	var readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		readErr = d.wait(fence)

		d.mu.Lock()
		defer d.mu.Unlock()
		if readErr == nil {
			readErr = rb.finish(dst)
		}
		if d.device != nil {
			d.device.DestroyFence(fence)
			d.device.FreeCommandBuffer(cmdBuf)
		}
		rb.release()
	}()

	return func(ctx context.Context) error {
		select {
		case <-done:
			return readErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

// Duplicate copies the texture into a new one with a blit pass.
func (t *Texture) Duplicate() (gpgpu.Texture, error) {
	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := t.usable(); err != nil {
		return nil, err
	}
	blit, err := d.blitFor(t.desc.Format)
	if err != nil {
		return nil, err
	}
	dup, err := d.newTexture(t.desc)
	if err != nil {
		return nil, err
	}
	if err := blit.copy(d, t, dup); err != nil {
		dup.destroy()
		return nil, err
	}
	return dup, nil
}

// Destroy releases the texture. Calling it again is a no-op.
func (t *Texture) Destroy() {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	t.destroy()
}

func (t *Texture) destroy() {
	if t.tex == nil {
		return
	}
	if t.dev.device != nil {
		t.dev.device.DestroyTextureView(t.view)
		t.dev.device.DestroyTexture(t.tex)
	}
	t.tex, t.view = nil, nil
}

// usable reports why the texture cannot be used. The caller holds t.dev.mu.
func (t *Texture) usable() error {
	if t.dev.closed {
		return ErrClosed
	}
	if t.tex == nil {
		return fmt.Errorf("%w: %s", ErrTextureDestroyed, t.desc.Label)
	}
	return nil
}

// transition records a barrier moving the texture into usage.
func (t *Texture) transition(enc hal.CommandEncoder, usage gputypes.TextureUsage) {
	if t.usage == usage {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: t.usage,
			NewUsage: usage,
		},
	}})
	t.usage = usage
}

// readback is a texture-to-buffer copy in flight.
type readback struct {
	tex        *Texture
	staging    hal.Buffer
	rowBytes   int
	alignedRow int
}

// copyOut creates the staging buffer for a readback of t. The caller
// holds t.dev.mu.
func (t *Texture) copyOut() (*readback, error) {
	rowBytes := t.desc.Extent.Width * t.desc.Format.TexelBytes()
	alignedRow := (rowBytes + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := t.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: t.desc.Label + "_staging",
		Size:  uint64(alignedRow) * uint64(t.desc.Extent.Height), //nolint:gosec // bounded by MaxExtent
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	return &readback{tex: t, staging: staging, rowBytes: rowBytes, alignedRow: alignedRow}, nil
}

func (rb *readback) record(enc hal.CommandEncoder) error {
	t := rb.tex
	e := t.desc.Extent
	t.transition(enc, gputypes.TextureUsageCopySrc)
	enc.CopyTextureToBuffer(t.tex, rb.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(rb.alignedRow), //nolint:gosec // bounded by MaxExtent
			RowsPerImage: uint32(e.Height),      //nolint:gosec // bounded by MaxExtent
		},
		TextureBase: hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              uint32(e.Width),  //nolint:gosec // bounded by MaxExtent
			Height:             uint32(e.Height), //nolint:gosec // bounded by MaxExtent
			DepthOrArrayLayers: 1,
		},
	}})
	return nil
}

// finish reads the staging buffer into dst, stripping the row padding.
func (rb *readback) finish(dst []byte) error {
	h := rb.tex.desc.Extent.Height
	if rb.alignedRow == rb.rowBytes {
		if err := rb.tex.dev.queue.ReadBuffer(rb.staging, 0, dst); err != nil {
			return fmt.Errorf("readback: %w", err)
		}
		return nil
	}
	padded := make([]byte, rb.alignedRow*h)
	if err := rb.tex.dev.queue.ReadBuffer(rb.staging, 0, padded); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	for row := 0; row < h; row++ {
		copy(dst[row*rb.rowBytes:(row+1)*rb.rowBytes], padded[row*rb.alignedRow:])
	}
	return nil
}

func (rb *readback) release() {
	if rb.staging != nil && rb.tex.dev.device != nil {
		rb.tex.dev.device.DestroyBuffer(rb.staging)
	}
	rb.staging = nil
}
