package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// Source statuses reported in summaries and metrics.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// SourceSummary is the outcome of one source run.
type SourceSummary struct {
	Source   string
	Type     harvest.SourceType
	Emitted  int
	Rejected int
	Warnings int
	Enriched int
	// Truncated is set when the run-wide record cap stopped this source.
	Truncated bool
	Status    string
	Err       error
	Duration  time.Duration
}

// Failed reports whether the source ended on a fatal error or cancellation.
func (s SourceSummary) Failed() bool {
	return s.Status != StatusSucceeded
}

// Summary aggregates a run, with sources in configuration order.
type Summary struct {
	RunID    string
	Sources  []SourceSummary
	Duration time.Duration
}

// Emitted returns the records written across all sources.
func (s Summary) Emitted() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Emitted
	}
	return total
}

// Rejected returns the records dropped by normalization or dedupe.
func (s Summary) Rejected() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Rejected
	}
	return total
}

// Failed reports whether any source failed.
func (s Summary) Failed() bool {
	for _, src := range s.Sources {
		if src.Failed() {
			return true
		}
	}
	return false
}

// WriteText prints a per-source table followed by totals.
func (s Summary) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTYPE\tSTATUS\tEMITTED\tREJECTED\tWARNINGS\tENRICHED\tERROR")
	for _, src := range s.Sources {
		errText := "-"
		if src.Err != nil {
			errText = fmt.Sprintf("%s: %v", harvest.Kind(src.Err), src.Err)
		}
		status := src.Status
		if src.Truncated {
			status += " (limit)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			src.Source, src.Type, status, src.Emitted, src.Rejected, src.Warnings, src.Enriched, errText)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%d\t\t\t\n", s.Emitted(), s.Rejected())
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
