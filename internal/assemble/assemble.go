// Package assemble turns a source PDF into its enhanced counterpart: pages are
// rasterized, re-inked by the enhance package and written back in source order.
package assemble

import (
	"bytes"
	"context"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/inkboost/internal/enhance"
	"github.com/local/inkboost/internal/metrics"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

// AllPages selects every page of the source.
const AllPages = -1

// DefaultTimeout bounds one Assemble call when Config.Timeout is unset.
const DefaultTimeout = 5 * time.Minute

const (
	ModePreview = "preview"
	ModeFull    = "full"
)

// ModeFor returns the metrics mode label for a page limit.
func ModeFor(limit int) string {
	if limit == AllPages {
		return ModeFull
	}
	return ModePreview
}

// Config tunes an Assembler.
type Config struct {
	// Workers is the number of pages enhanced concurrently. Defaults to GOMAXPROCS.
	Workers int
	// Timeout is the deadline for the whole call, applied on top of the
	// caller's context.
	Timeout time.Duration
	// OnPage, when set, is called after each enhanced page with the number of
	// pages done so far. Calls are serialized.
	OnPage func(done, total int)
}

// Assembler is safe for concurrent use; calls share no mutable state.
type Assembler struct {
	r   raster.Rasterizer
	enc Encoder
	cfg Config
}

// New builds an Assembler.
func New(r raster.Rasterizer, enc Encoder, cfg Config) *Assembler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Assembler{r: r, enc: enc, cfg: cfg}
}

// WithProgress returns a copy of a that reports progress to fn instead.
func (a *Assembler) WithProgress(fn func(done, total int)) *Assembler {
	cp := *a
	cp.cfg.OnPage = fn
	return &cp
}

type rendered struct {
	index int
	img   image.Image
}

// Assemble enhances the first limit pages of src (every page for AllPages)
// and returns the new PDF positioned at its start. Any failure aborts the
// whole document.
func (a *Assembler) Assemble(ctx context.Context, src []byte, st style.Config, limit int) (*bytes.Reader, error) {
	start := time.Now()
	mode := ModeFor(limit)

	out, pages, err := a.assemble(ctx, src, st, limit)

	dur := time.Since(start)
	metrics.ObserveDocument(mode, resultLabel(err), dur)
	if err != nil {
		log.Warn().Err(err).Str("mode", mode).Dur("duration", dur).Msg("document assembly failed")
		return nil, err
	}
	log.Info().Str("mode", mode).Int("pages", pages).Int("bytes", out.Len()).Dur("duration", dur).Msg("document assembled")
	return out, nil
}

func (a *Assembler) assemble(parent context.Context, src []byte, st style.Config, limit int) (*bytes.Reader, int, error) {
	if err := st.Validate(); err != nil {
		return nil, 0, err
	}
	if limit == 0 || limit < AllPages {
		return nil, 0, &EmptyDocumentError{Reason: "page limit selects no pages"}
	}

	ctx, cancel := context.WithTimeout(parent, a.cfg.Timeout)
	defer cancel()

	doc, err := a.r.Open(ctx, src)
	if err != nil {
		return nil, 0, classify(parent, "rasterize", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if limit != AllPages && limit < total {
		total = limit
	}
	if total <= 0 {
		return nil, 0, &EmptyDocumentError{Reason: "source has no pages", Err: raster.ErrNoPages}
	}

	pages, err := a.enhancePages(ctx, doc, st, total)
	if err != nil {
		return nil, 0, classify(parent, "enhance", err)
	}

	var buf bytes.Buffer
	if err := a.enc.Encode(&buf, pages); err != nil {
		return nil, 0, &EncodingError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, classify(parent, "encode", err)
	}
	return bytes.NewReader(buf.Bytes()), total, nil
}

// enhancePages renders pages on one goroutine, since a Document must not be
// shared, and fans enhancement out to the worker pool. Results land at their
// page index so completion order does not matter.
func (a *Assembler) enhancePages(ctx context.Context, doc raster.Document, st style.Config, total int) ([]image.Image, error) {
	pages := make([]image.Image, total)
	work := make(chan rendered)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for i := 0; i < total; i++ {
			img, err := doc.Render(gctx, i)
			if err != nil {
				return err
			}
			select {
			case work <- rendered{index: i, img: img}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var (
		mu   sync.Mutex
		done int
	)
	workers := a.cfg.Workers
	if workers > total {
		workers = total
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for job := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				t0 := time.Now()
				pages[job.index] = enhance.Enhance(job.img, st)
				metrics.ObservePage(time.Since(t0))

				mu.Lock()
				done++
				if a.cfg.OnPage != nil {
					a.cfg.OnPage(done, total)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
