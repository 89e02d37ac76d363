package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/org-harvester/internal/app"
)

// newEnrichCmd creates the 'enrich' subcommand, which runs careers discovery
// over an existing NDJSON file.
func newEnrichCmd() *cobra.Command {
	var opts app.EnrichOptions
	cmd := &cobra.Command{
		Use:         "enrich",
		Short:       "Discover careers pages for records in an NDJSON file",
		Annotations: map[string]string{needsAppAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Enrich(cmd.Context(), opts)
			fmt.Fprintf(cmd.OutOrStdout(), "read %d, resolved %d, found %d, wrote %d to %s (next index %d)\n",
				summary.Read, summary.Resolved, summary.Found, summary.Written, opts.Output, summary.NextIndex)
			if err != nil {
				return fmt.Errorf("enrich: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "NDJSON input path")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "NDJSON output path")
	cmd.Flags().IntVar(&opts.Start, "start", 0, "zero-based index of the first record to process")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "records to process (0 = all)")
	cmd.Flags().BoolVar(&opts.OnlyMissing, "only-missing", false, "keep careers URLs that are already set")
	cmd.Flags().BoolVar(&opts.OnlyWithCareers, "only-with-careers", false, "write only records that have a careers URL")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "start from the progress file and append to the output")
	cmd.Flags().StringVar(&opts.ProgressFile, "progress-file", "", "JSON file tracking the next input index")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
