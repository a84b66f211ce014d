package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

type enhanceOptions struct {
	output         string
	thickness      int
	ink            string
	bg             string
	keepBackground bool
	contrast       float64
	threshold      string
	preview        int
	dpi            int
	workers        int
	timeout        time.Duration
	quiet          bool
}

func newEnhanceCmd() *cobra.Command {
	def := style.Default()
	opts := &enhanceOptions{}
	cmd := &cobra.Command{
		Use:   "enhance <input.pdf>",
		Short: "Enhance the handwriting of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output path (default enhanced_<input> next to the input)")
	f.IntVar(&opts.thickness, "thickness", def.Thickness, "stroke thickening kernel size")
	f.StringVar(&opts.ink, "ink", "black", "ink color: palette name or #rrggbb")
	f.StringVar(&opts.bg, "bg", "white", "background color: palette name or #rrggbb")
	f.BoolVar(&opts.keepBackground, "keep-background", false, "keep the page background instead of replacing it")
	f.Float64Var(&opts.contrast, "contrast", def.ContrastGain, "contrast gain applied before thresholding")
	f.StringVar(&opts.threshold, "threshold", string(def.Threshold), "threshold policy: fixed or otsu")
	f.IntVar(&opts.preview, "preview", 0, "only enhance the first N pages (0 for all)")
	f.IntVar(&opts.dpi, "dpi", raster.DefaultDPI, "render and output resolution")
	f.IntVar(&opts.workers, "workers", 0, "pages enhanced in parallel (default GOMAXPROCS)")
	f.DurationVar(&opts.timeout, "timeout", assemble.DefaultTimeout, "deadline for the whole document")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "no progress bar")
	return cmd
}

func (o *enhanceOptions) style() (style.Config, error) {
	st := style.Default()
	st.Thickness = o.thickness
	st.ContrastGain = o.contrast
	st.RemoveBackground = !o.keepBackground
	var err error
	if st.Ink, err = style.ParseColor(o.ink); err != nil {
		return st, err
	}
	if st.Background, err = style.ParseColor(o.bg); err != nil {
		return st, err
	}
	if st.Threshold, err = style.ParseThresholdPolicy(o.threshold); err != nil {
		return st, err
	}
	return st, st.Validate()
}

func (o *enhanceOptions) limit() (int, error) {
	switch {
	case o.preview == 0:
		return assemble.AllPages, nil
	case o.preview < 0:
		return 0, fmt.Errorf("--preview must not be negative")
	}
	return o.preview, nil
}

func outputPath(input, output string) string {
	if output != "" {
		return output
	}
	return filepath.Join(filepath.Dir(input), "enhanced_"+filepath.Base(input))
}

func runEnhance(ctx context.Context, stdout, stderr io.Writer, input string, opts *enhanceOptions) error {
	st, err := opts.style()
	if err != nil {
		return err
	}
	limit, err := opts.limit()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// Without a page count the bar spins until the first page reports one.
	total := -1
	if n, err := raster.PageCount(src); err == nil {
		total = n
		if limit != assemble.AllPages && limit < n {
			total = limit
		}
	}

	cfg := assemble.Config{Workers: opts.workers, Timeout: opts.timeout}
	var bar *progressbar.ProgressBar
	if !opts.quiet {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("enhancing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("pages"),
			progressbar.OptionOnCompletion(func() { fmt.Fprint(stderr, "\n") }),
		)
		sized := total >= 0
		cfg.OnPage = func(done, n int) {
			if !sized {
				bar.ChangeMax(n)
				sized = true
			}
			_ = bar.Set(done)
		}
	}

	asm := assemble.New(raster.NewFitzRasterizer(opts.dpi), assemble.PDFEncoder{DPI: opts.dpi}, cfg)
	start := time.Now()
	out, err := asm.Assemble(ctx, src, st, limit)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if assemble.IsRetryableWithSmallerRange(err) {
			return fmt.Errorf("%w (try --preview with fewer pages or a longer --timeout)", err)
		}
		return err
	}

	dst := outputPath(input, opts.output)
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	written, err := io.Copy(f, out)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes) in %s\n", dst, written, time.Since(start).Round(time.Millisecond))
	return nil
}
