package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
	"github.com/JakeFAU/org-harvester/internal/output"
)

// EnrichOptions drive a careers pass over an existing NDJSON file.
type EnrichOptions struct {
	Input  string
	Output string
	// Start skips records before this zero-based index.
	Start int
	// Max bounds the records read after Start; zero means all.
	Max int
	// OnlyMissing keeps careers URLs that are already set.
	OnlyMissing bool
	// OnlyWithCareers drops records that end without a careers URL.
	OnlyWithCareers bool
	// Resume starts from the progress file and appends to Output.
	Resume       bool
	ProgressFile string
}

// EnrichSummary reports one enrichment pass.
type EnrichSummary struct {
	Read      int
	Resolved  int
	Found     int
	Written   int
	NextIndex int
}

// Enrich resolves careers pages for records in opts.Input and writes them to
// opts.Output. Progress is saved after every consumed record when a progress
// file is set, so an interrupted pass resumes where it stopped.
func (a *App) Enrich(ctx context.Context, opts EnrichOptions) (EnrichSummary, error) {
	start := opts.Start
	if opts.Resume {
		if opts.ProgressFile == "" {
			return EnrichSummary{}, &harvest.ConfigError{Field: "progress-file", Err: errors.New("required with --resume")}
		}
		progress, err := output.LoadProgress(opts.ProgressFile)
		if err != nil {
			return EnrichSummary{}, err
		}
		start = progress.NextIndex
	}

	writer, err := output.Open(opts.Output, output.Options{Fsync: a.cfg.Pipeline.Fsync, Truncate: !opts.Resume})
	if err != nil {
		return EnrichSummary{}, err
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			a.logger.Warn("failed to close output", zap.String("path", writer.Path()), zap.Error(cerr))
		}
	}()

	logger := a.logger.Named("enrich").With(zap.String("input", opts.Input), zap.Int("start", start))
	logger.Info("enrichment started", zap.Bool("resume", opts.Resume), zap.Int("max", opts.Max))

	summary := EnrichSummary{NextIndex: start}
	index := -1
	for record, err := range output.ReadJSONL(opts.Input) {
		if err != nil {
			return summary, fmt.Errorf("read input: %w", err)
		}
		index++
		if index < start {
			continue
		}
		if opts.Max > 0 && summary.Read >= opts.Max {
			break
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Read++

		record = a.enrichRecord(ctx, record, opts.OnlyMissing, &summary)
		if ctx.Err() != nil {
			// The probe was cut short; leave this record for the next pass.
			return summary, ctx.Err()
		}
		if record.CareersURL != nil {
			summary.Found++
		}
		if !opts.OnlyWithCareers || record.CareersURL != nil {
			if err := writer.Write(record); err != nil {
				return summary, err
			}
			summary.Written++
		}

		summary.NextIndex = index + 1
		if opts.ProgressFile != "" {
			if err := output.SaveProgress(opts.ProgressFile, output.Progress{NextIndex: summary.NextIndex}); err != nil {
				return summary, err
			}
		}
	}

	logger.Info("enrichment finished",
		zap.Int("read", summary.Read),
		zap.Int("resolved", summary.Resolved),
		zap.Int("found", summary.Found),
		zap.Int("written", summary.Written),
		zap.Int("next_index", summary.NextIndex),
	)
	return summary, nil
}

func (a *App) enrichRecord(
	ctx context.Context,
	record harvest.NormalizedRecord,
	onlyMissing bool,
	summary *EnrichSummary,
) harvest.NormalizedRecord {
	if record.Website == "" {
		record.CareersURL = nil
		return record
	}
	if onlyMissing && record.CareersURL != nil && *record.CareersURL != "" {
		metrics.ObserveEnrichment("skipped")
		return record
	}
	record.CareersURL = nil
	summary.Resolved++
	return a.resolver.Resolve(ctx, record)
}
