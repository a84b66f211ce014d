package statuscheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/raster"
)

// Pinger models the minimal capability we need for status checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the dependencies the service uses.
type Checker struct {
	redis      Pinger
	storage    Pinger
	rasterizer raster.Rasterizer

	probeOnce sync.Once
	probe     []byte
	probeErr  error
}

// Options configures the Checker. A nil Redis means the queue is disabled.
type Options struct {
	Redis      Pinger
	Storage    Pinger
	Rasterizer raster.Rasterizer
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	Storage Status `json:"storage"`
	MuPDF   Status `json:"mupdf"`
}

// Ready reports whether every subsystem is usable.
func (s Summary) Ready() bool { return s.Redis.OK && s.Storage.OK && s.MuPDF.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	r := opts.Rasterizer
	if r == nil {
		r = raster.NewFitzRasterizer(72)
	}
	return &Checker{redis: opts.Redis, storage: opts.Storage, rasterizer: r}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.checkRedis(ctx),
		Storage: c.checkStorage(ctx),
		MuPDF:   c.checkMuPDF(ctx),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkStorage(ctx context.Context) Status {
	if c.storage == nil {
		return Status{OK: false, Message: "Storage not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.storage.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

// checkMuPDF renders a one-page document produced by the PDF encoder, which
// exercises both the writer and the renderer.
func (c *Checker) checkMuPDF(ctx context.Context) Status {
	c.probeOnce.Do(func() {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		img.SetGray(4, 4, color.Gray{Y: 0})
		var buf bytes.Buffer
		c.probeErr = assemble.PDFEncoder{}.Encode(&buf, []image.Image{img})
		c.probe = buf.Bytes()
	})
	if c.probeErr != nil {
		return Status{OK: false, Message: "encoder: " + trimError(c.probeErr)}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	doc, err := c.rasterizer.Open(ctx, c.probe)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer doc.Close()
	img, err := doc.Render(ctx, 0)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if img.Bounds().Empty() {
		return Status{OK: false, Message: "empty render"}
	}
	return Status{OK: true, Message: fmt.Sprintf("Rendered %dx%d probe", img.Bounds().Dx(), img.Bounds().Dy())}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
