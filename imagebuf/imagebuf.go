// Package imagebuf moves images in and out of RGBA8 kernel buffers.
//
// A buffer holds one image pixel per element as a vector of four uint8
// channels in R, G, B, A order, row after row. Kernels see the pixels as
// vec4<u32> through bl_fetch_<name>. The buffer's own texture shape is
// chosen by the planner, so kernels that need the image geometry take the
// width as a uniform.
package imagebuf

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gpgpu"
)

// Channels is the vector width of an image buffer.
const Channels = 4

// RGBA converts img to an *image.RGBA with origin (0, 0). Images that
// already are an origin-anchored *image.RGBA are returned as is.
func RGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Scale resamples img to w x h pixels with Catmull-Rom interpolation.
func Scale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Pixels returns the tightly packed RGBA bytes of img.
func Pixels(img image.Image) []uint8 {
	rgba := RGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	if rgba.Stride == w*Channels {
		return rgba.Pix[:w*h*Channels]
	}
	pix := make([]uint8, 0, w*h*Channels)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		pix = append(pix, row[:w*Channels]...)
	}
	return pix
}

// FromImage returns a host buffer holding the pixels of img.
func FromImage(dev gpgpu.Device, img image.Image, opts ...gpgpu.BufferOption) (*gpgpu.HostBuffer[uint8], error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", gpgpu.ErrConfiguration)
	}
	opts = append([]gpgpu.BufferOption{gpgpu.WithVector(Channels)}, opts...)
	return gpgpu.NewHostBuffer(dev, Pixels(img), opts...)
}

// FromImageDevice returns a device buffer holding the pixels of img.
func FromImageDevice(dev gpgpu.Device, img image.Image, opts ...gpgpu.BufferOption) (*gpgpu.DeviceBuffer[uint8], error) {
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", gpgpu.ErrConfiguration)
	}
	opts = append([]gpgpu.BufferOption{gpgpu.WithVector(Channels)}, opts...)
	return gpgpu.NewDeviceBuffer(dev, Pixels(img), opts...)
}

// Alloc returns a zeroed host buffer for a w x h image.
func Alloc(dev gpgpu.Device, w, h int, opts ...gpgpu.BufferOption) (*gpgpu.HostBuffer[uint8], error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", gpgpu.ErrConfiguration, w, h)
	}
	opts = append([]gpgpu.BufferOption{gpgpu.WithVector(Channels)}, opts...)
	return gpgpu.AllocHostBuffer[uint8](dev, w*h*Channels, opts...)
}

// ToImage copies w x h pixels of RGBA data into a new image.
func ToImage(data []uint8, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", gpgpu.ErrConfiguration, w, h)
	}
	if len(data) < w*h*Channels {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%d image", gpgpu.ErrDataSize, len(data), w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data[:w*h*Channels])
	return img, nil
}
