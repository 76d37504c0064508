package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <debate-id>",
		Short: "Export a past debate as Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := export.Markdown
			switch format {
			case "md", "markdown":
			case "json":
				render = export.JSON
			default:
				return fmt.Errorf("unsupported format %q (want md or json)", format)
			}

			d, err := a.findDebate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return render(w, d)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format (md, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
