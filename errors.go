package gpgpu

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by this package matches exactly
// one of them with errors.Is.
var (
	// ErrConfiguration is returned for bad construction or exec arguments.
	ErrConfiguration = errors.New("gpgpu: configuration error")

	// ErrSizeExceeded is returned when an extent exceeds the device limit.
	ErrSizeExceeded = errors.New("gpgpu: size exceeds device limit")

	// ErrShaderCompile is returned when the compile service rejects a
	// synthesized program. The concrete error is *ShaderCompileError.
	ErrShaderCompile = errors.New("gpgpu: shader compile error")

	// ErrInconsistentOutputSize is returned by Exec when outputs disagree
	// on their extent.
	ErrInconsistentOutputSize = errors.New("gpgpu: outputs require consistent sizes")

	// ErrDeviceResource is returned for allocation, upload, draw or
	// readback failures at the device boundary.
	ErrDeviceResource = errors.New("gpgpu: device resource error")

	// ErrReleased is returned when using a deleted buffer or kernel.
	ErrReleased = errors.New("gpgpu: resource has been released")
)

// Configuration error kinds. Each unwraps to ErrConfiguration.
var (
	ErrNoOutputs             = &kindError{msg: "at least 1 output is required", parent: ErrConfiguration}
	ErrNameConflict          = &kindError{msg: "conflicting variable name", parent: ErrConfiguration}
	ErrTooManyInputs         = &kindError{msg: "maximum number of inputs exceeded", parent: ErrConfiguration}
	ErrInvalidName           = &kindError{msg: "invalid variable name", parent: ErrConfiguration}
	ErrInvalidVector         = &kindError{msg: "unsupported vector width", parent: ErrConfiguration}
	ErrDataSize              = &kindError{msg: "data size does not match extent", parent: ErrConfiguration}
	ErrUniformType           = &kindError{msg: "uniform value kind mismatch", parent: ErrConfiguration}
	ErrOutputReadBeforeWrite = &kindError{msg: "output read before the body writes it", parent: ErrConfiguration}
)

// kindError is a sentinel that belongs to a broader category.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return "gpgpu: " + e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// ShaderCompileError carries the compile service diagnostic for one step.
type ShaderCompileError struct {
	// Step is the index of the step whose program failed.
	Step int
	// Diagnostic is the compiler output.
	Diagnostic string
	// Source is the synthesized program text.
	Source string
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("gpgpu: unable to compile step %d: %s", e.Step, strings.TrimSpace(e.Diagnostic))
}

// Unwrap makes errors.Is(err, ErrShaderCompile) hold.
func (e *ShaderCompileError) Unwrap() error { return ErrShaderCompile }

// deviceError wraps a device failure into the ErrDeviceResource category
// unless it already carries a category of its own.
func deviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrDeviceResource, ErrShaderCompile, ErrConfiguration, ErrSizeExceeded, ErrReleased} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceResource, op, err)
}
