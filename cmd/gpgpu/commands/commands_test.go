package commands

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpgpu"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestShaderSample(t *testing.T) {
	out, err := execute(t, "shader", "--kernel", "saxpy")
	require.NoError(t, err)

	assert.Contains(t, out, "fn bl_fetch_x(id: u32) -> f32")
	assert.Contains(t, out, "fn bl_fetch_y(id: u32) -> f32")
	assert.Contains(t, out, "var<uniform> a: f32;")
	assert.Contains(t, out, "@location(0)")
}

func TestShaderBodyFileNeedsOutputs(t *testing.T) {
	_, err := execute(t, "shader", "--body-file", filepath.Join(t.TempDir(), "missing.wgsl"))
	assert.Error(t, err)
}

func TestShaderUnknownKernel(t *testing.T) {
	_, err := execute(t, "shader", "--kernel", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRunScaleOnSoft(t *testing.T) {
	out, err := execute(t, "run", "--backend", "soft", "--kernel", "scale", "--size", "4", "--factor", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "device: gpgpu soft")
	assert.Contains(t, out, "dst: [0 3 6 9]")
}

func TestRunInvertImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	outPath := filepath.Join(dir, "out.png")

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, writePNG(in, img))

	out, err := execute(t, "run", "--backend", "soft", "--kernel", "invert", "--image", in, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "saved to")

	got, err := readPNG(outPath)
	require.NoError(t, err)
	r, g, b, _ := got.At(1, 1).RGBA()
	assert.Equal(t, []uint32{245, 235, 225}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestRunInvertNeedsImage(t *testing.T) {
	_, err := execute(t, "run", "--backend", "soft", "--kernel", "invert")
	assert.Error(t, err)
}

func TestInfoListsSoft(t *testing.T) {
	out, err := execute(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "soft:")
	assert.True(t, strings.Contains(out, "Max render targets"))
}

func TestParseElementType(t *testing.T) {
	tests := []struct {
		in   string
		want gpgpu.ElementType
	}{
		{"float32", gpgpu.Float32},
		{"UINT8", gpgpu.Uint8},
		{"int16", gpgpu.Int16},
	}
	for _, tt := range tests {
		got, err := parseElementType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := parseElementType("float64")
	assert.ErrorIs(t, err, gpgpu.ErrConfiguration)
}
