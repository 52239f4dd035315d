package gpgpu

// BufferOption configures a HostBuffer or DeviceBuffer during creation.
//
// Example:
//
//	// Two interleaved channels per element, repeating at the edges.
//	buf, err := gpgpu.NewHostBuffer(dev, data,
//	    gpgpu.WithVector(2), gpgpu.WithWrap(gpgpu.WrapRepeat))
type BufferOption func(*bufferOptions)

// bufferOptions holds optional configuration for buffer creation.
type bufferOptions struct {
	vector int
	wrap   Wrap
	label  string
}

// defaultBufferOptions returns scalar elements clamped at both edges.
func defaultBufferOptions() bufferOptions {
	return bufferOptions{
		vector: 1,
		wrap:   Wrap{S: WrapClamp, T: WrapClamp},
	}
}

// WithVector sets the number of interleaved channels per element.
// Width 3 is promoted to 4; any other width outside {1, 2, 4} fails
// buffer creation with ErrInvalidVector.
func WithVector(w int) BufferOption {
	return func(o *bufferOptions) {
		o.vector = w
	}
}

// WithWrap sets the same edge policy for both axes.
func WithWrap(m WrapMode) BufferOption {
	return func(o *bufferOptions) {
		o.wrap = Wrap{S: m, T: m}
	}
}

// WithWrapST sets independent edge policies for the S and T axes.
func WithWrapST(s, t WrapMode) BufferOption {
	return func(o *bufferOptions) {
		o.wrap = Wrap{S: s, T: t}
	}
}

// WithLabel names the buffer in device debug labels and logs.
func WithLabel(label string) BufferOption {
	return func(o *bufferOptions) {
		o.label = label
	}
}
