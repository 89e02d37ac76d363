package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/app"
)

// newRunCmd creates the 'run' subcommand, which harvests every configured
// source into one NDJSON file and prints a per-source summary.
func newRunCmd() *cobra.Command {
	var (
		opts        app.HarvestOptions
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:         "run",
		Short:       "Harvest all configured sources",
		Annotations: map[string]string{needsAppAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.ServeMetrics(cmd.Context(), metricsAddr)

			summary, err := appInstance.Harvest(cmd.Context(), opts)
			if printErr := summary.WriteText(cmd.OutOrStdout()); printErr != nil {
				appInstance.GetLogger().Warn("failed to print summary", zap.Error(printErr))
			}
			if err != nil {
				return fmt.Errorf("run %s: %w", appInstance.RunID(), err)
			}
			if summary.Failed() {
				return &exitError{code: ExitFailure, err: errSourcesFailed}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "NDJSON output path (appended to)")
	cmd.Flags().BoolVar(&opts.NoEnrich, "no-enrich", false, "skip careers page discovery")
	cmd.Flags().IntVar(&opts.MaxRecords, "max", 0, "stop after this many records (0 uses pipeline.max_records)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
