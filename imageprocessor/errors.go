package imageprocessor

import (
	"errors"
	"fmt"
)

// Error kinds reported by the image processing components. Use errors.Is
// against these to classify a failure.
var (
	ErrDecode            = errors.New("decode error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidChannel    = errors.New("invalid channel count")
	ErrIO                = errors.New("io error")
)

// ImageError is the concrete error returned by this package
type ImageError struct {
	Kind   error  // one of the Err* sentinels
	Op     string // operation that failed, e.g. "load", "compare"
	Path   string // file involved, if any
	Detail string
	Cause  error
}

func (e *ImageError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *ImageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newDecodeError(op, path, detail string, cause error) *ImageError {
	return &ImageError{Kind: ErrDecode, Op: op, Path: path, Detail: detail, Cause: cause}
}

func newDimensionError(op, detail string) *ImageError {
	return &ImageError{Kind: ErrDimensionMismatch, Op: op, Detail: detail}
}

func newChannelError(op string, want, got int) *ImageError {
	return &ImageError{
		Kind:   ErrInvalidChannel,
		Op:     op,
		Detail: fmt.Sprintf("expected %d channel(s), got %d", want, got),
	}
}

func newIOError(op, path string, cause error) *ImageError {
	return &ImageError{Kind: ErrIO, Op: op, Path: path, Cause: cause}
}
