// Package enrich discovers careers pages for harvested organizations.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
)

const (
	defaultProbeTimeout = 8 * time.Second
	defaultMaxProbes    = 8
	defaultMaxAnchors   = 2
)

// Config bounds the work done per record.
type Config struct {
	// ProbeTimeout bounds each probe, including its wait at the gate.
	ProbeTimeout time.Duration
	// MaxProbes caps the fetches per record, the homepage included.
	MaxProbes int
	// MaxAnchors caps the homepage links tried before the fixed paths.
	MaxAnchors int
}

// Resolver implements harvest.Enricher.
type Resolver struct {
	getter harvest.Getter
	cfg    Config
	logger *zap.Logger
}

// NewResolver creates a Resolver that fetches through getter.
func NewResolver(getter harvest.Getter, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = defaultMaxProbes
	}
	if cfg.MaxAnchors <= 0 {
		cfg.MaxAnchors = defaultMaxAnchors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{getter: getter, cfg: cfg, logger: logger}
}

// Resolve returns record with CareersURL set when a careers page is found.
// A record that already has one is returned as is. Failures of any kind
// leave the record unchanged.
func (r *Resolver) Resolve(ctx context.Context, record harvest.NormalizedRecord) harvest.NormalizedRecord {
	if record.CareersURL != nil {
		metrics.ObserveEnrichment("skipped")
		return record
	}
	if record.Website == "" {
		metrics.ObserveEnrichment("not_found")
		return record
	}

	found, ok := r.discover(ctx, record.Website)
	if !ok {
		if ctx.Err() != nil {
			metrics.ObserveEnrichment("canceled")
		} else {
			metrics.ObserveEnrichment("not_found")
		}
		return record
	}
	metrics.ObserveEnrichment("found")
	r.logger.Debug("careers page found",
		zap.String("name", record.Name),
		zap.String("careers_url", found),
	)
	return record.WithCareersURL(found)
}

func (r *Resolver) discover(ctx context.Context, home string) (string, bool) {
	probes := 0
	var candidates []string

	probes++
	if resp, err := r.probe(ctx, home); err == nil {
		base := home
		if resp.FinalURL != "" {
			base = resp.FinalURL
		}
		candidates = anchorCandidates(base, resp.Body, r.cfg.MaxAnchors)
	} else {
		r.logProbeFailure(home, err)
	}

	seen := make(map[string]struct{}, len(candidates)+len(fixedPaths))
	for _, c := range candidates {
		seen[c] = struct{}{}
	}
	for _, path := range fixedPaths {
		u := probeURL(home, path)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u)
	}

	for _, candidate := range candidates {
		if probes >= r.cfg.MaxProbes || ctx.Err() != nil {
			return "", false
		}
		probes++
		resp, err := r.probe(ctx, candidate)
		if err != nil {
			r.logProbeFailure(candidate, err)
			continue
		}
		if looksLikeCareers(resp.Body) {
			if resp.FinalURL != "" {
				return resp.FinalURL, true
			}
			return candidate, true
		}
	}
	return "", false
}

// probe fetches one URL under its own timeout and requires an HTML body.
func (r *Resolver) probe(ctx context.Context, target string) (harvest.FetchResponse, error) {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	resp, err := r.getter.Get(probeCtx, harvest.GetRequest{URL: target, Timeout: r.cfg.ProbeTimeout})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return harvest.FetchResponse{}, &harvest.EnrichmentTimeoutError{URL: target, Err: err}
		}
		return harvest.FetchResponse{}, err
	}
	switch ct := resp.ContentType(); ct {
	case "", "text/html", "application/xhtml+xml":
		return resp, nil
	default:
		return harvest.FetchResponse{}, fmt.Errorf("probe %s: content type %q is not html", target, ct)
	}
}

func (r *Resolver) logProbeFailure(target string, err error) {
	r.logger.Debug("careers probe failed",
		zap.String("url", target),
		zap.String("kind", harvest.Kind(err)),
		zap.Error(err),
	)
}
