package raster

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	DPI float64
}

// NewFitzRasterizer returns a rasterizer at dpi, or DefaultDPI when dpi <= 0.
func NewFitzRasterizer(dpi int) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{DPI: float64(dpi)}
}

func (r *FitzRasterizer) Open(ctx context.Context, src []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Sniff(src); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := doc.NumPage()
	if n <= 0 {
		doc.Close()
		return nil, ErrNoPages
	}

	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	log.Debug().Int("pages", n).Float64("dpi", dpi).Int("bytes", len(src)).Msg("opened pdf")
	return &fitzDocument{doc: doc, dpi: dpi, pages: n}, nil
}

type fitzDocument struct {
	doc   *fitz.Document
	dpi   float64
	pages int
}

func (d *fitzDocument) NumPage() int { return d.pages }

func (d *fitzDocument) Render(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: page %d out of range (document has %d pages)", ErrRender, index+1, d.pages)
	}
	img, err := d.doc.ImageDPI(index, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, index+1, err)
	}
	b := img.Bounds()
	log.Debug().Int("page", index+1).Int("width", b.Dx()).Int("height", b.Dy()).Msg("rendered page")
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
