// Package pipeline drives every configured source through adapter,
// normalizer, optional enrichment and sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
)

// Record outcomes reported to metrics.
const (
	outcomeEmitted  = "emitted"
	outcomeRejected = "rejected"
	outcomeWarning  = "warning"
)

// AdapterLookup resolves the adapter for a source type.
type AdapterLookup interface {
	Adapter(kind harvest.SourceType) (harvest.Adapter, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Concurrency caps how many sources run at once.
	Concurrency int
	// MaxRecords caps records written across the run; zero means unlimited.
	MaxRecords int
	// Dedupe drops records whose (name, website) pair was already written.
	Dedupe bool
	// Enrich is the run-wide careers enrichment default.
	Enrich bool
}

// Orchestrator runs sources concurrently and writes to a single sink.
type Orchestrator struct {
	adapters   AdapterLookup
	normalizer harvest.Normalizer
	enricher   harvest.Enricher
	sink       harvest.Sink
	cfg        Config
	logger     *zap.Logger

	sinkMu sync.Mutex
}

// New constructs an Orchestrator. A nil enricher disables enrichment.
func New(
	adapters AdapterLookup,
	normalizer harvest.Normalizer,
	enricher harvest.Enricher,
	sink harvest.Sink,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		adapters:   adapters,
		normalizer: normalizer,
		enricher:   enricher,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
	}
}

// runState is shared by every source of one run.
type runState struct {
	seen    seenTracker
	written atomic.Int64
	cancel  context.CancelCauseFunc
}

// Run processes sources and returns a summary in configuration order. Source
// failures are reported in the summary; the returned error is set only when
// the sink fails, which aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context, sources []harvest.SourceConfig) (Summary, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	state := &runState{cancel: cancel}
	results := make([]SourceSummary, len(sources))

	// Sources are isolated, so the group never cancels on error.
	var group errgroup.Group
	group.SetLimit(o.cfg.Concurrency)
	for i := range sources {
		src := sources[i]
		if runCtx.Err() != nil {
			skipped := SourceSummary{Source: src.Name, Type: src.Type}
			skipped.fail(context.Cause(runCtx))
			results[i] = skipped
			continue
		}
		group.Go(func() error {
			results[i] = o.runSource(runCtx, state, src)
			return nil
		})
	}
	_ = group.Wait()

	summary := Summary{Sources: results, Duration: time.Since(start)}
	var sinkErr *sinkError
	if cause := context.Cause(runCtx); errors.As(cause, &sinkErr) {
		return summary, sinkErr.err
	}
	return summary, nil
}

// sinkError marks a cancellation caused by a failed sink write.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }

func (o *Orchestrator) runSource(ctx context.Context, state *runState, src harvest.SourceConfig) SourceSummary {
	start := time.Now()
	logger := o.logger.With(zap.String("source", src.Name), zap.String("type", string(src.Type)))
	summary := SourceSummary{Source: src.Name, Type: src.Type, Status: StatusSucceeded}
	defer func() {
		summary.Duration = time.Since(start)
		metrics.ObserveSource(summary.Status)
		fields := []zap.Field{
			zap.String("status", summary.Status),
			zap.Int("emitted", summary.Emitted),
			zap.Int("rejected", summary.Rejected),
			zap.Int("warnings", summary.Warnings),
			zap.Int("enriched", summary.Enriched),
			zap.Duration("duration", summary.Duration),
		}
		if summary.Err != nil {
			logger.Error("source finished", append(fields, zap.Error(summary.Err))...)
			return
		}
		logger.Info("source finished", fields...)
	}()

	adapter, err := o.adapters.Adapter(src.Type)
	if err != nil {
		summary.fail(err)
		return summary
	}

	enrich := o.enricher != nil && src.EnrichEnabled(o.cfg.Enrich)
	logger.Info("source started", zap.String("location", src.Location()), zap.Bool("enrich", enrich))

	// After cancellation the adapter may still yield records it already
	// holds; those are written without enrichment. A failed sink stops at once.
	draining := false
	for raw, err := range adapter.Records(ctx, src) {
		if ctx.Err() != nil {
			cause := context.Cause(ctx)
			var sinkErr *sinkError
			if err != nil || errors.As(cause, &sinkErr) {
				summary.fail(cause)
				return summary
			}
			if !draining {
				draining = true
				logger.Info("run canceled, flushing buffered records")
			}
		}
		if err != nil {
			if harvest.IsFatal(err) {
				summary.fail(err)
				return summary
			}
			summary.Warnings++
			metrics.ObserveRecord(src.Name, outcomeWarning)
			logger.Warn("source warning", zap.String("kind", harvest.Kind(err)), zap.Error(err))
			continue
		}

		record, err := o.normalizer.Normalize(raw)
		if err != nil {
			summary.Rejected++
			metrics.ObserveRecord(src.Name, outcomeRejected)
			logger.Debug("record rejected", zap.Error(err))
			continue
		}
		if o.cfg.Dedupe && !state.seen.MarkIfNew(record) {
			summary.Rejected++
			metrics.ObserveRecord(src.Name, outcomeRejected)
			logger.Debug("record rejected", zap.String("reason", "duplicate"), zap.String("name", record.Name))
			continue
		}
		if !o.reserve(state) {
			summary.Truncated = true
			logger.Info("record limit reached", zap.Int("max_records", o.cfg.MaxRecords))
			return summary
		}

		if enrich && !draining {
			record = o.enricher.Resolve(ctx, record)
			if record.CareersURL != nil {
				summary.Enriched++
			}
		}

		if err := o.write(record); err != nil {
			err = fmt.Errorf("write record: %w", err)
			state.cancel(&sinkError{err: err})
			summary.fail(err)
			return summary
		}
		summary.Emitted++
		metrics.ObserveRecord(src.Name, outcomeEmitted)
	}

	if ctx.Err() != nil {
		summary.fail(context.Cause(ctx))
	}
	return summary
}

// reserve claims one slot under the run-wide record cap.
func (o *Orchestrator) reserve(state *runState) bool {
	if o.cfg.MaxRecords <= 0 {
		return true
	}
	if state.written.Add(1) > int64(o.cfg.MaxRecords) {
		state.written.Add(-1)
		return false
	}
	return true
}

func (o *Orchestrator) write(record harvest.NormalizedRecord) error {
	o.sinkMu.Lock()
	defer o.sinkMu.Unlock()
	return o.sink.Write(record)
}

func (s *SourceSummary) fail(err error) {
	s.Err = err
	var sinkErr *sinkError
	switch {
	case errors.As(err, &sinkErr):
		s.Status = StatusFailed
	case harvest.IsCanceled(err):
		s.Status = StatusCanceled
	default:
		s.Status = StatusFailed
	}
}
