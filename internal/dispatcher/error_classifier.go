package dispatcher

import (
	"context"
	"errors"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/storage"
)

// Failure kinds recorded in job status metadata.
const (
	KindDecode       = "decode"
	KindEmpty        = "empty"
	KindTimeout      = "timeout"
	KindEncoding     = "encoding"
	KindInvalidStyle = "invalid_style"
	KindMissingInput = "missing_input"
	KindCancelled    = "cancelled"
	KindInternal     = "internal"
)

// Failure is the user-facing description of a failed job.
type Failure struct {
	Kind    string
	Message string
	// RetryHint suggests how the user may resubmit, if at all.
	RetryHint string
}

// classify maps an error from job processing to a Failure.
func classify(err error) Failure {
	var (
		decodeErr  *assemble.SourceDecodeError
		emptyErr   *assemble.EmptyDocumentError
		timeoutErr *assemble.ProcessingTimeoutError
		encodeErr  *assemble.EncodingError
	)
	switch {
	case errors.As(err, &decodeErr):
		return Failure{Kind: KindDecode, Message: "The file could not be read as a PDF (" + decodeErr.Reason + ")."}
	case errors.As(err, &emptyErr):
		return Failure{Kind: KindEmpty, Message: "The document has no pages to process."}
	case errors.As(err, &timeoutErr):
		return Failure{
			Kind:      KindTimeout,
			Message:   "Processing took too long. Try a preview of the first pages instead.",
			RetryHint: "preview",
		}
	case errors.As(err, &encodeErr):
		return Failure{Kind: KindEncoding, Message: "The enhanced document could not be written."}
	case errors.Is(err, assemble.ErrInvalidStyle):
		return Failure{Kind: KindInvalidStyle, Message: "The style settings are invalid."}
	case errors.Is(err, storage.ErrNotFound):
		return Failure{Kind: KindMissingInput, Message: "The uploaded file is no longer available."}
	case errors.Is(err, context.Canceled):
		return Failure{Kind: KindCancelled, Message: "Processing was cancelled."}
	default:
		return Failure{Kind: KindInternal, Message: "Processing failed."}
	}
}

// isTerminal reports whether resubmitting the same job cannot help.
func isTerminal(err error) bool {
	return assemble.IsTerminal(err) || errors.Is(err, storage.ErrNotFound)
}
