package harvest

import (
	"context"
	"errors"
	"fmt"
)

// ConfigError aborts a run before any fetch happens.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SourceFetchError is scoped to one source: the source stops, the run continues.
type SourceFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *SourceFetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ParseError is scoped to one record or page unless Fatal is set, in which
// case the whole source document could not be interpreted.
type ParseError struct {
	Location string
	Fatal    bool
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Location, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PolicyDeniedError means the politeness gate refused a fetch. It is never
// retried against the same path.
type PolicyDeniedError struct {
	Host   string
	Path   string
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied %s%s: %s", e.Host, e.Path, e.Reason)
}

// PartialResultError reports that a multi-page crawl stopped early. Records
// yielded before it are valid output.
type PartialResultError struct {
	PagesVisited int
	ItemsEmitted int
	Err          error
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("crawl stopped after %d page(s), %d item(s): %v", e.PagesVisited, e.ItemsEmitted, e.Err)
}

func (e *PartialResultError) Unwrap() error { return e.Err }

// RejectedError is returned by the normalizer for records lacking identity fields.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "record rejected: " + e.Reason
}

// EnrichmentTimeoutError marks one probe that ran out of time. The resolver
// absorbs it; it never reaches the orchestrator.
type EnrichmentTimeoutError struct {
	URL string
	Err error
}

func (e *EnrichmentTimeoutError) Error() string {
	return fmt.Sprintf("enrichment probe %s timed out: %v", e.URL, e.Err)
}

func (e *EnrichmentTimeoutError) Unwrap() error { return e.Err }

// IsFatal reports whether an error yielded by an adapter ends that source.
// Record-level parse errors and partial crawl results are warnings.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var partial *PartialResultError
	if errors.As(err, &partial) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Fatal
	}
	return true
}

// IsPolicyDenied reports whether err carries a gate denial.
func IsPolicyDenied(err error) bool {
	var denied *PolicyDeniedError
	return errors.As(err, &denied)
}

// IsCanceled reports whether err stems from run cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Kind returns a short label for metrics and summaries.
func Kind(err error) string {
	var (
		cfgErr     *ConfigError
		parseErr   *ParseError
		denied     *PolicyDeniedError
		partial    *PartialResultError
		rejected   *RejectedError
		enrichTime *EnrichmentTimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &partial):
		return "partial_result"
	case errors.As(err, &denied):
		return "policy_denied"
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &enrichTime):
		return "enrichment_timeout"
	case IsCanceled(err):
		return "canceled"
	default:
		return "source_fetch"
	}
}
