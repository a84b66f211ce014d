package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/local/inkboost/internal/raster"
)

func newPagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages <input.pdf>",
		Short: "Print the page count of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			n, err := raster.PageCount(src)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
