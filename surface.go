package gpgpu

import (
	"context"
	"fmt"
)

// surface owns exactly one device texture. A buffer holds at most two of
// them: the readable one with the committed value and the writable one a
// pass renders into.
type surface struct {
	tex  Texture
	desc TextureDescriptor
}

func newSurface(dev Device, desc TextureDescriptor, data []byte) (*surface, error) {
	if data != nil && len(data) != desc.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %s %s", ErrDataSize, len(data), desc.Extent, desc.Format.InternalFormat)
	}
	tex, err := dev.CreateTexture(&desc, data)
	if err != nil {
		return nil, deviceError("create texture "+desc.Label, err)
	}
	Logger().Debug("gpgpu: surface created",
		"label", desc.Label, "format", desc.Format.InternalFormat, "extent", desc.Extent.String())
	return &surface{tex: tex, desc: desc}, nil
}

// destroy releases the texture. Calling it again is a no-op.
func (s *surface) destroy() {
	if s == nil || s.tex == nil {
		return
	}
	s.tex.Destroy()
	s.tex = nil
	Logger().Debug("gpgpu: surface destroyed", "label", s.desc.Label)
}

// duplicate copies the contents into a new surface on the device.
func (s *surface) duplicate() (*surface, error) {
	if s.tex == nil {
		return nil, ErrReleased
	}
	tex, err := s.tex.Duplicate()
	if err != nil {
		return nil, deviceError("duplicate texture "+s.desc.Label, err)
	}
	return &surface{tex: tex, desc: s.desc}, nil
}

func (s *surface) upload(data []byte) error {
	if s.tex == nil {
		return ErrReleased
	}
	if len(data) != s.desc.Size() {
		return fmt.Errorf("%w: %d bytes for %d", ErrDataSize, len(data), s.desc.Size())
	}
	return deviceError("upload "+s.desc.Label, s.tex.Upload(data))
}

func (s *surface) read(dst []byte) error {
	if s.tex == nil {
		return ErrReleased
	}
	if len(dst) != s.desc.Size() {
		return fmt.Errorf("%w: %d bytes for %d", ErrDataSize, len(dst), s.desc.Size())
	}
	return deviceError("read "+s.desc.Label, s.tex.Read(dst))
}

// readAsync starts a read and returns the function that waits for it.
// Textures without AsyncReader are read synchronously.
func (s *surface) readAsync(dst []byte) (func(context.Context) error, error) {
	if s.tex == nil {
		return nil, ErrReleased
	}
	if len(dst) != s.desc.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %d", ErrDataSize, len(dst), s.desc.Size())
	}
	ar, ok := s.tex.(AsyncReader)
	if !ok {
		err := s.read(dst)
		return func(context.Context) error { return err }, nil
	}
	wait, err := ar.ReadAsync(dst)
	if err != nil {
		return nil, deviceError("read async "+s.desc.Label, err)
	}
	return func(ctx context.Context) error {
		return deviceError("read async "+s.desc.Label, wait(ctx))
	}, nil
}
