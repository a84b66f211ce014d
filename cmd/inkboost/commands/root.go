// Package commands implements the inkboost command line.
package commands

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	logpkg "github.com/local/inkboost/internal/logger"
)

type rootOptions struct {
	verbose bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "inkboost",
		Short: "Make handwritten PDF notes crisp and readable",
		Long: `inkboost re-inks scanned or photographed handwriting: every page is
rasterized, thickened, recolored and written back into a new PDF.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newEnhanceCmd(), newPagesCmd())
	return root
}

// Execute runs the command line with os.Args. Ctrl-C cancels the document.
func Execute() error {
	defer logpkg.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// initLogging keeps the console quiet so the progress bar stays readable.
func initLogging(w io.Writer, verbose bool) error {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logpkg.Init(logpkg.Options{Level: level, Pretty: true, Console: w, Service: "inkboost-cli"})
}
