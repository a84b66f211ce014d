package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writePDF(w http.ResponseWriter, filename string, body io.Reader) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, body); err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("response write failed")
	}
}

// statusFor maps processing and request errors to HTTP status codes.
func statusFor(err error) int {
	var (
		reqErr     *requestError
		decodeErr  *assemble.SourceDecodeError
		emptyErr   *assemble.EmptyDocumentError
		timeoutErr *assemble.ProcessingTimeoutError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.code
	case errors.Is(err, raster.ErrNotPDF):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, style.ErrInvalid):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr), errors.As(err, &emptyErr),
		errors.Is(err, raster.ErrMalformed), errors.Is(err, raster.ErrEncrypted):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusGatewayTimeout:
		msg = "processing took too long; try a preview of fewer pages"
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg("request failed")
		msg = "processing failed"
	}
	http.Error(w, msg, code)
}
