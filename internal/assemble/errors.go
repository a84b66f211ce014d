package assemble

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

// ErrInvalidStyle is wrapped when the style fails validation.
var ErrInvalidStyle = style.ErrInvalid

// SourceDecodeError means the input bytes are not a readable PDF.
type SourceDecodeError struct {
	Reason string
	Err    error
}

func (e *SourceDecodeError) Error() string {
	return fmt.Sprintf("source decode: %s: %v", e.Reason, e.Err)
}

func (e *SourceDecodeError) Unwrap() error { return e.Err }

// EmptyDocumentError means the requested range selects zero pages.
type EmptyDocumentError struct {
	Reason string
	Err    error
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("empty document: %s", e.Reason)
}

func (e *EmptyDocumentError) Unwrap() error { return e.Err }

// ProcessingTimeoutError means the document deadline elapsed. Stage names the
// step that was running.
type ProcessingTimeoutError struct {
	Stage string
	Err   error
}

func (e *ProcessingTimeoutError) Error() string {
	return fmt.Sprintf("processing timeout during %s: %v", e.Stage, e.Err)
}

func (e *ProcessingTimeoutError) Unwrap() error { return e.Err }

// EncodingError means the output PDF could not be produced.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// IsTerminal reports whether retrying the same request can never succeed.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var decodeErr *SourceDecodeError
	if errors.As(err, &decodeErr) {
		return true
	}
	var emptyErr *EmptyDocumentError
	if errors.As(err, &emptyErr) {
		return true
	}
	return errors.Is(err, ErrInvalidStyle)
}

// IsRetryableWithSmallerRange reports whether the request may succeed when
// fewer pages are selected.
func IsRetryableWithSmallerRange(err error) bool {
	var timeoutErr *ProcessingTimeoutError
	return errors.As(err, &timeoutErr)
}

// classify maps a failure from stage into the public error kinds. parent is the
// caller's context, used to tell cancellation apart from the document deadline.
func classify(parent context.Context, stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProcessingTimeoutError{Stage: stage, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case errors.Is(err, raster.ErrNoPages):
		return &EmptyDocumentError{Reason: "source has no pages", Err: err}
	case errors.Is(err, raster.ErrNotPDF):
		return &SourceDecodeError{Reason: "not a pdf", Err: err}
	case errors.Is(err, raster.ErrEncrypted):
		return &SourceDecodeError{Reason: "password protected", Err: err}
	case errors.Is(err, raster.ErrMalformed):
		return &SourceDecodeError{Reason: "malformed pdf", Err: err}
	case errors.Is(err, raster.ErrRender):
		return &SourceDecodeError{Reason: "page render failed", Err: err}
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// resultLabel is the metrics label for the outcome of one call.
func resultLabel(err error) string {
	var (
		decodeErr  *SourceDecodeError
		emptyErr   *EmptyDocumentError
		timeoutErr *ProcessingTimeoutError
		encodeErr  *EncodingError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &emptyErr):
		return "empty"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &encodeErr):
		return "encode_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrInvalidStyle):
		return "invalid_style"
	default:
		return "error"
	}
}
