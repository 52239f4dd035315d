package gpgpu

import (
	"context"
	"fmt"
)

// Capabilities is the read-only capability record of a Device. It is
// queried once when the device is opened and never changes afterwards.
type Capabilities struct {
	// MaxRenderTargets is the number of color targets one draw can write.
	MaxRenderTargets int
	// MaxInputs is the number of textures one program can read.
	MaxInputs int
	// MaxExtent is the largest supported width or height of a texture.
	MaxExtent int
	// ShadingLanguage identifies the kernel language version.
	ShadingLanguage string
	// Renderer and Vendor identify the adapter.
	Renderer string
	Vendor   string
}

// String returns a one-line summary.
func (c Capabilities) String() string {
	return fmt.Sprintf("%s (%s): targets=%d inputs=%d extent=%d lang=%s",
		c.Renderer, c.Vendor, c.MaxRenderTargets, c.MaxInputs, c.MaxExtent, c.ShadingLanguage)
}

// Device is the graphics boundary. Backends in backend/ implement it; the
// buffers and kernels of this package drive it from a single goroutine.
//
// Implementations must keep every returned Texture independent: two
// textures never share storage.
type Device interface {
	// Capabilities returns the device limits.
	Capabilities() Capabilities

	// CreateTexture allocates a texture. A nil data slice leaves the
	// contents zeroed; otherwise len(data) must equal the texture size.
	CreateTexture(desc *TextureDescriptor, data []byte) (Texture, error)

	// CompileProgram compiles a synthesized kernel program. Compilation
	// failures are returned as *ShaderCompileError.
	CompileProgram(desc *ProgramDescriptor) (Program, error)

	// AcquireTarget returns a rendering target container that stays valid
	// until Release.
	AcquireTarget() (RenderTarget, error)

	// Close releases device-level resources.
	Close()
}

// TextureDescriptor describes a device texture.
type TextureDescriptor struct {
	Label  string
	Format FormatDescriptor
	Extent Extent
	Wrap   Wrap
}

// Size returns the byte size of the texture contents.
func (d *TextureDescriptor) Size() int {
	return d.Extent.Texels() * d.Format.TexelBytes()
}

// Texture is a device-resident 2-D pixel store with nearest-neighbour
// addressing.
type Texture interface {
	// Descriptor returns the descriptor the texture was created with.
	Descriptor() *TextureDescriptor

	// Upload replaces the contents. len(data) must equal the texture size.
	Upload(data []byte) error

	// Read copies the contents into dst, which must match the texture size.
	Read(dst []byte) error

	// Duplicate returns a new texture with identical descriptor and
	// contents, copied on the device.
	Duplicate() (Texture, error)

	// Destroy releases the texture.
	Destroy()
}

// AsyncReader is implemented by textures that can copy their contents to
// the host without blocking the caller. The returned wait function blocks
// until dst holds the contents or ctx is done.
type AsyncReader interface {
	ReadAsync(dst []byte) (wait func(ctx context.Context) error, err error)
}

// Program is a compiled kernel step.
type Program interface {
	Destroy()
}

// ProgramDescriptor is the input of the compile service.
type ProgramDescriptor struct {
	Label string
	// Source is the complete synthesized WGSL module.
	Source string
	// Body is the caller-supplied kernel body, verbatim.
	Body string

	Inputs   []ProgramInput
	Outputs  []ProgramOutput
	Uniforms []ProgramUniform
}

// ProgramInput is one texture binding of a program. Inputs are listed in
// texture unit order.
type ProgramInput struct {
	Name    string
	Binding int
	Format  FormatDescriptor
	Wrap    Wrap
}

// ProgramOutput is one output variable of a program. Slot is the render
// target index, or -1 when the output is declared but not written by
// this program.
type ProgramOutput struct {
	Name   string
	Slot   int
	Format FormatDescriptor
}

// Bound reports whether the output is written to a render target.
func (o ProgramOutput) Bound() bool { return o.Slot >= 0 }

// ProgramUniform is one caller-declared uniform binding.
type ProgramUniform struct {
	Name    string
	Binding int
	Kind    UniformKind
}

// SizeBinding is the binding index of the built-in bl_Size uniform.
const SizeBinding = 0

// RenderTarget is the rendering target container of one Exec call.
type RenderTarget interface {
	// Draw runs one full-viewport pass.
	Draw(pass *Pass) error

	// ReadSlot copies the contents of the target bound at slot in the
	// last pass into dst.
	ReadSlot(slot int, dst []byte) error

	// Release frees the container. The textures it rendered into are
	// owned by their buffers and stay alive.
	Release()
}

// Pass is one draw of a program over the output extent.
type Pass struct {
	Program Program
	// Extent is the viewport and the value of bl_Size.
	Extent Extent
	// Targets are the textures written, in slot order.
	Targets []Texture
	// Inputs are the textures read, in texture unit order.
	Inputs []Texture
	// Uniforms are the current values of the program's uniforms, in the
	// order of ProgramDescriptor.Uniforms.
	Uniforms []UniformValue
}
