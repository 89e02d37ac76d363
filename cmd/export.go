package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/org-harvester/internal/output"
)

// newExportCmd creates the 'export-csv' subcommand. It needs no config.
func newExportCmd() *cobra.Command {
	var input, out string
	cmd := &cobra.Command{
		Use:   "export-csv",
		Short: "Convert an NDJSON output file to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := output.ExportCSV(input, out)
			if err != nil {
				return fmt.Errorf("export csv: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "NDJSON input path")
	cmd.Flags().StringVarP(&out, "output", "o", "", "CSV output path")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
