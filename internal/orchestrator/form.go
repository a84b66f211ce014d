package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

// requestError carries the HTTP status for a rejected request.
type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string { return e.msg }

type upload struct {
	name string
	data []byte
}

// readUpload reads the "file" part of a multipart request, bounded by
// MaxUploadBytes, and rejects anything that is not a PDF.
func (o *Orchestrator) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, o.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return upload{}, &requestError{http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit)}
		}
		return upload{}, &requestError{http.StatusBadRequest, "invalid multipart form"}
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return upload{}, &requestError{http.StatusBadRequest, "missing file"}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return upload{}, &requestError{http.StatusBadRequest, "read upload failed"}
	}
	if err := raster.Sniff(data); err != nil {
		return upload{}, err
	}
	return upload{name: displayName(hdr.Filename), data: data}, nil
}

// parseStyle reads the style form fields on top of style.Default.
func parseStyle(r *http.Request) (style.Config, error) {
	st := style.Default()
	if v := r.FormValue("thickness"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return st, fmt.Errorf("%w: thickness %q", style.ErrInvalid, v)
		}
		st.Thickness = n
	}
	if v := r.FormValue("ink_color"); v != "" {
		c, err := style.ParseColor(v)
		if err != nil {
			return st, err
		}
		st.Ink = c
	}
	if v := r.FormValue("bg_color"); v != "" {
		c, err := style.ParseColor(v)
		if err != nil {
			return st, err
		}
		st.Background = c
	}
	if v := r.FormValue("remove_bg"); v != "" {
		b, err := parseFormBool(v)
		if err != nil {
			return st, fmt.Errorf("%w: remove_bg %q", style.ErrInvalid, v)
		}
		st.RemoveBackground = b
	}
	if v := r.FormValue("contrast"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return st, fmt.Errorf("%w: contrast %q", style.ErrInvalid, v)
		}
		st.ContrastGain = f
	}
	if v := r.FormValue("threshold"); v != "" {
		p, err := style.ParseThresholdPolicy(v)
		if err != nil {
			return st, err
		}
		st.Threshold = p
	}
	return st, st.Validate()
}

// parseFormBool also accepts the "on" sent by HTML checkboxes.
func parseFormBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// parsePageLimit accepts a positive count, or "" / "all" for every page.
func parsePageLimit(v string) (int, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == "all" {
		return assemble.AllPages, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &requestError{http.StatusBadRequest, fmt.Sprintf("page_limit must be a positive number, got %q", v)}
	}
	return n, nil
}

func displayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}
