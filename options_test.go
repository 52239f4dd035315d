package gpgpu

import (
	"errors"
	"testing"
)

// TestDefaultBufferOptions tests that buffers default to scalar elements
// clamped at both edges.
func TestDefaultBufferOptions(t *testing.T) {
	o := defaultBufferOptions()
	if o.vector != 1 {
		t.Errorf("vector = %d, want 1", o.vector)
	}
	if o.wrap != (Wrap{S: WrapClamp, T: WrapClamp}) {
		t.Errorf("wrap = %v, want clamp/clamp", o.wrap)
	}
	if o.label != "" {
		t.Errorf("label = %q, want empty", o.label)
	}
}

// TestBufferOptions tests that each option sets its field and that later
// options override earlier ones.
func TestBufferOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []BufferOption
		want bufferOptions
	}{
		{
			name: "vector",
			opts: []BufferOption{WithVector(4)},
			want: bufferOptions{vector: 4, wrap: Wrap{S: WrapClamp, T: WrapClamp}},
		},
		{
			name: "wrap both axes",
			opts: []BufferOption{WithWrap(WrapRepeat)},
			want: bufferOptions{vector: 1, wrap: Wrap{S: WrapRepeat, T: WrapRepeat}},
		},
		{
			name: "wrap per axis",
			opts: []BufferOption{WithWrapST(WrapMirror, WrapClamp)},
			want: bufferOptions{vector: 1, wrap: Wrap{S: WrapMirror, T: WrapClamp}},
		},
		{
			name: "last wins",
			opts: []BufferOption{WithWrap(WrapRepeat), WithWrapST(WrapClamp, WrapMirror), WithLabel("a"), WithLabel("b")},
			want: bufferOptions{vector: 1, wrap: Wrap{S: WrapClamp, T: WrapMirror}, label: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultBufferOptions()
			for _, opt := range tt.opts {
				opt(&o)
			}
			if o != tt.want {
				t.Errorf("options = %+v, want %+v", o, tt.want)
			}
		})
	}
}

// TestBufferOptionsApplied tests that buffers report the configured wrap
// and reject invalid vector widths.
func TestBufferOptionsApplied(t *testing.T) {
	dev := newFakeDevice()

	b, err := AllocHostBuffer[float32](dev, 8, WithWrapST(WrapRepeat, WrapMirror))
	if err != nil {
		t.Fatalf("AllocHostBuffer() error = %v", err)
	}
	defer b.Delete()
	if b.Wrap() != (Wrap{S: WrapRepeat, T: WrapMirror}) {
		t.Errorf("Wrap() = %v, want repeat/mirror", b.Wrap())
	}

	_, err = AllocHostBuffer[float32](dev, 8, WithVector(5))
	if !errors.Is(err, ErrInvalidVector) {
		t.Errorf("WithVector(5) error = %v, want ErrInvalidVector", err)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("WithVector(5) error = %v, want ErrConfiguration category", err)
	}
}
