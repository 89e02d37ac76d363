// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/clock/system"
	"github.com/JakeFAU/org-harvester/internal/config"
	"github.com/JakeFAU/org-harvester/internal/enrich"
	collyfetcher "github.com/JakeFAU/org-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/id/uuid"
	"github.com/JakeFAU/org-harvester/internal/logging"
	"github.com/JakeFAU/org-harvester/internal/metrics"
	"github.com/JakeFAU/org-harvester/internal/normalize"
	"github.com/JakeFAU/org-harvester/internal/output"
	"github.com/JakeFAU/org-harvester/internal/pagination"
	"github.com/JakeFAU/org-harvester/internal/pipeline"
	"github.com/JakeFAU/org-harvester/internal/politeness"
	"github.com/JakeFAU/org-harvester/internal/source"
)

// App holds the shared, long-lived services for one harvester process. It is
// built once per command and closed when the command finishes.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	runID      string
	gate       *politeness.Gate
	sources    *source.Registry
	normalizer *normalize.Normalizer
	resolver   *enrich.Resolver
	ownsLogger bool
}

// Config returns the validated configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// GetLogger returns the run-scoped logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// RunID identifies this process in logs and summaries.
func (a *App) RunID() string {
	return a.runID
}

// Gate exposes the politeness gate shared by every fetch.
func (a *App) Gate() *politeness.Gate {
	return a.gate
}

// NewApp wires every service from cfg. A nil logger is built from
// cfg.Logging and synced on Close.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	ownsLogger := false
	if logger == nil {
		built, err := logging.NewWithOptions(logging.Options{
			Development: cfg.Logging.Development,
			File:        cfg.Logging.File,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		logger = built
		ownsLogger = true
	}

	runID, err := uuid.NewUUIDGenerator().NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	clock := system.New()
	gate := politeness.NewGate(politeness.Config{
		UserAgent:            cfg.UserAgent,
		DefaultInterval:      cfg.Politeness.MinInterval,
		MaxCrawlDelay:        cfg.Politeness.MaxCrawlDelay,
		MaxRequestsPerSecond: cfg.Politeness.MaxRequestsPerSecond,
		StrictRobots:         cfg.Politeness.StrictRobots,
		RobotsTimeout:        cfg.Politeness.RobotsTimeout,
	}, politeness.NewRegistry(), nil, clock, logger.Named("gate"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	client := politeness.NewClient(gate, fetcher, cfg.HTTP.RequestTimeout, logger.Named("http"))
	crawler := pagination.New(client, logger.Named("pagination"))

	return &App{
		cfg:        cfg,
		logger:     logger,
		runID:      runID,
		gate:       gate,
		sources:    source.NewDefaultRegistry(client, crawler, logger.Named("source")),
		normalizer: normalize.New(clock),
		resolver: enrich.NewResolver(client, enrich.Config{
			ProbeTimeout: cfg.Enrich.ProbeTimeout,
			MaxProbes:    cfg.Enrich.MaxProbes,
			MaxAnchors:   cfg.Enrich.MaxAnchors,
		}, logger.Named("enrich")),
		ownsLogger: ownsLogger,
	}, nil
}

// HarvestOptions are per-invocation overrides for Harvest.
type HarvestOptions struct {
	Output string
	// NoEnrich disables careers enrichment for every source.
	NoEnrich bool
	// MaxRecords overrides pipeline.max_records when positive.
	MaxRecords int
}

// Harvest runs every configured source into the NDJSON file at opts.Output.
// The returned error covers setup and sink failures; per-source failures are
// in the summary.
func (a *App) Harvest(ctx context.Context, opts HarvestOptions) (pipeline.Summary, error) {
	writer, err := output.Open(opts.Output, output.Options{Fsync: a.cfg.Pipeline.Fsync})
	if err != nil {
		return pipeline.Summary{RunID: a.runID}, err
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			a.logger.Warn("failed to close output", zap.String("path", writer.Path()), zap.Error(cerr))
		}
	}()

	maxRecords := a.cfg.Pipeline.MaxRecords
	if opts.MaxRecords > 0 {
		maxRecords = opts.MaxRecords
	}
	var enricher harvest.Enricher
	if a.cfg.Enrich.Enabled && !opts.NoEnrich {
		enricher = a.resolver
	}
	orchestrator := pipeline.New(a.sources, a.normalizer, enricher, writer, pipeline.Config{
		Concurrency: a.cfg.Pipeline.Concurrency,
		MaxRecords:  maxRecords,
		Dedupe:      a.cfg.Pipeline.Dedupe,
		Enrich:      enricher != nil,
	}, a.logger.Named("pipeline"))

	a.logger.Info("harvest started",
		zap.Int("sources", len(a.cfg.Sources)),
		zap.String("output", writer.Path()),
		zap.Bool("enrich", enricher != nil),
		zap.Int("max_records", maxRecords),
	)
	summary, err := orchestrator.Run(ctx, a.cfg.Sources)
	summary.RunID = a.runID
	a.logger.Info("harvest finished",
		zap.Int("emitted", summary.Emitted()),
		zap.Int("rejected", summary.Rejected()),
		zap.Bool("failed", summary.Failed()),
		zap.Duration("duration", summary.Duration),
	)
	if err != nil {
		return summary, fmt.Errorf("harvest: %w", err)
	}
	return summary, nil
}

// ServeMetrics exposes /metrics and /healthz on addr until ctx is done.
// Failures are logged; the run continues without metrics.
func (a *App) ServeMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, a.logger.Named("metrics")); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close flushes the logger when the App built it.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if !a.ownsLogger {
		return
	}
	// Syncing stderr fails on some terminals.
	_ = a.logger.Sync()
}
