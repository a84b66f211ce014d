package assemble

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/inkboost/internal/raster"
)

// Encoder serializes enhanced pages, in slice order, into one document.
type Encoder interface {
	Encode(w io.Writer, pages []image.Image) error
}

// PDFEncoder writes one PDF page per image. Pages are stored as PNG so the
// two-color output survives without compression artifacts.
type PDFEncoder struct {
	// DPI sets the physical page size: a page is its pixel size divided by
	// DPI, in inches. Zero maps one pixel to one point.
	DPI int
	// Compression is passed to the PNG encoder.
	Compression png.CompressionLevel
}

// PageSize returns the page dimensions in points for an image of b.
func (e PDFEncoder) PageSize(b image.Rectangle) types.Dim {
	dpi := e.DPI
	if dpi <= 0 {
		dpi = 72
	}
	return types.Dim{
		Width:  float64(b.Dx()) * 72 / float64(dpi),
		Height: float64(b.Dy()) * 72 / float64(dpi),
	}
}

func (e PDFEncoder) Encode(w io.Writer, pages []image.Image) error {
	if len(pages) == 0 {
		return raster.ErrNoPages
	}
	enc := png.Encoder{CompressionLevel: e.Compression}

	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.IMPORTIMAGES
	first := e.PageSize(pages[0].Bounds())
	ctx, err := pdfcpu.CreateContextWithXRefTable(conf, &first)
	if err != nil {
		return fmt.Errorf("pdf context: %w", err)
	}
	root, err := ctx.Pages()
	if err != nil {
		return fmt.Errorf("pdf page tree: %w", err)
	}
	tree, err := ctx.DereferenceDict(*root)
	if err != nil {
		return fmt.Errorf("pdf page tree: %w", err)
	}

	for i, p := range pages {
		var buf bytes.Buffer
		if err := enc.Encode(&buf, p); err != nil {
			return fmt.Errorf("page %d: png encode: %w", i+1, err)
		}
		// The page is exactly the image at DPI, so the image fills it 1:1.
		dim := e.PageSize(p.Bounds())
		imp := pdfcpu.DefaultImportConfig()
		imp.PageDim = &dim
		imp.UserDim = true
		imp.Pos = types.Center
		imp.ScaleAbs = true
		imp.Scale = 1
		imp.DPI = e.DPI
		if imp.DPI <= 0 {
			imp.DPI = 72
		}

		ref, err := pdfcpu.NewPageForImage(ctx.XRefTable, &buf, root, imp)
		if err != nil {
			return fmt.Errorf("page %d: pdf import: %w", i+1, err)
		}
		if err := ctx.SetValid(*ref); err != nil {
			return fmt.Errorf("page %d: pdf import: %w", i+1, err)
		}
		if err := model.AppendPageTree(ref, 1, tree); err != nil {
			return fmt.Errorf("page %d: pdf page tree: %w", i+1, err)
		}
		ctx.PageCount++
	}

	if err := api.Write(ctx, w, conf); err != nil {
		return fmt.Errorf("pdf write: %w", err)
	}
	return nil
}
