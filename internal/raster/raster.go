// Package raster turns PDF bytes into page bitmaps.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultDPI is the rasterization resolution used for enhancement.
const DefaultDPI = 300

var (
	ErrNotPDF    = errors.New("not a PDF document")
	ErrEncrypted = errors.New("document is password protected")
	ErrMalformed = errors.New("document cannot be parsed")
	ErrNoPages   = errors.New("document has no pages")
	ErrRender    = errors.New("page render failed")
)

// Rasterizer opens PDF bytes for page rendering.
type Rasterizer interface {
	Open(ctx context.Context, src []byte) (Document, error)
}

// Document is an opened PDF. Implementations are not safe for concurrent use;
// callers render pages from a single goroutine.
type Document interface {
	NumPage() int
	// Render returns page index (0-based) as a bitmap.
	Render(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// Sniff returns ErrNotPDF unless src starts like a PDF file.
func Sniff(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: empty input", ErrNotPDF)
	}
	mt := mimetype.Detect(src)
	if !mt.Is("application/pdf") {
		return fmt.Errorf("%w: detected %s", ErrNotPDF, mt.String())
	}
	return nil
}

// PageCount reports the number of pages without rendering anything.
func PageCount(src []byte) (int, error) {
	if err := Sniff(src); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(src), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return n, nil
}
