package politeness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
)

const (
	defaultMinInterval   = time.Second
	defaultMaxCrawlDelay = 30 * time.Second
	defaultRobotsTimeout = 10 * time.Second
	maxRobotsBytes       = 512 << 10
)

// Config controls gate behavior.
type Config struct {
	UserAgent string
	// DefaultInterval applies when a request does not carry its own interval.
	DefaultInterval time.Duration
	// MaxCrawlDelay caps the Crawl-delay a robots.txt may impose.
	MaxCrawlDelay time.Duration
	// MaxRequestsPerSecond caps the process-wide request rate; zero disables it.
	MaxRequestsPerSecond float64
	// StrictRobots denies a host whose robots.txt cannot be fetched.
	StrictRobots  bool
	RobotsTimeout time.Duration
}

// Gate implements harvest.Gate.
type Gate struct {
	cfg      Config
	registry *Registry
	client   *http.Client
	clock    harvest.Clock
	limiter  *rate.Limiter
	logger   *zap.Logger
	robotsSF singleflight.Group
}

// NewGate builds a Gate over registry. A nil client gets a pooled client
// whose transport retries transient robots.txt failures.
func NewGate(cfg Config, registry *Registry, client *http.Client, clock harvest.Clock, logger *zap.Logger) *Gate {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = defaultMinInterval
	}
	if cfg.MaxCrawlDelay <= 0 {
		cfg.MaxCrawlDelay = defaultMaxCrawlDelay
	}
	if cfg.RobotsTimeout <= 0 {
		cfg.RobotsTimeout = defaultRobotsTimeout
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if client == nil {
		client = &http.Client{Transport: newRetryTransport(nil)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.MaxRequestsPerSecond)
	if cfg.MaxRequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Gate{
		cfg:      cfg,
		registry: registry,
		client:   client,
		clock:    clock,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Registry exposes the per-host state the gate owns.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Acquire blocks until rawURL may be fetched. It returns a
// *harvest.PolicyDeniedError when robots.txt forbids the path, and the
// context error when ctx ends while waiting.
func (g *Gate) Acquire(ctx context.Context, rawURL string, minInterval time.Duration) (harvest.Permit, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return harvest.Permit{}, &harvest.SourceFetchError{URL: rawURL, Err: err}
	}
	budget := g.registry.Budget(u.Host)
	host := budget.Host()

	rules, err := g.robots(ctx, u, budget)
	if err != nil {
		return harvest.Permit{}, err
	}

	path := requestPath(u)
	if !rules.allows(path, g.cfg.UserAgent) {
		metrics.ObservePolicyDenied(host)
		g.logger.Debug("fetch denied by robots policy",
			zap.String("host", host),
			zap.String("path", path),
		)
		return harvest.Permit{}, &harvest.PolicyDeniedError{Host: host, Path: path, Reason: rules.denyReason()}
	}

	granted, waited, err := g.waitForSlot(ctx, budget, g.effectiveInterval(minInterval, rules))
	if err != nil {
		return harvest.Permit{}, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return harvest.Permit{}, fmt.Errorf("global rate limit %s: %w", host, err)
	}
	return harvest.Permit{Host: host, Path: path, GrantedAt: granted, Waited: waited}, nil
}

func (g *Gate) effectiveInterval(requested time.Duration, rules *robotsRules) time.Duration {
	interval := requested
	if interval <= 0 {
		interval = g.cfg.DefaultInterval
	}
	delay := rules.crawlDelay(g.cfg.UserAgent)
	if delay > g.cfg.MaxCrawlDelay {
		delay = g.cfg.MaxCrawlDelay
	}
	if delay > interval {
		interval = delay
	}
	return interval
}

func (g *Gate) waitForSlot(ctx context.Context, budget *RateBudget, interval time.Duration) (time.Time, time.Duration, error) {
	now := g.now()
	slot := budget.reserve(now, interval)
	delay := slot.Sub(now)
	if err := sleepWithContext(ctx, delay); err != nil {
		return time.Time{}, 0, fmt.Errorf("politeness wait %s: %w", budget.Host(), err)
	}
	if delay > 0 {
		metrics.ObserveRateLimitDelay(budget.Host(), delay)
	}
	return slot, delay, nil
}

// robots returns the cached rules for the budget's host, fetching them once.
// Concurrent first callers share a single fetch. A fetch aborted by another
// caller's cancellation is retried with this caller's context.
func (g *Gate) robots(ctx context.Context, u *url.URL, budget *RateBudget) (*robotsRules, error) {
	for {
		if rules, ok := budget.robotsRules(); ok {
			return rules, nil
		}
		v, err, _ := g.robotsSF.Do(budget.Host(), func() (any, error) {
			if rules, ok := budget.robotsRules(); ok {
				return rules, nil
			}
			rules, err := g.fetchRobots(ctx, u, budget)
			if err != nil {
				return nil, err
			}
			budget.setRobots(rules)
			return rules, nil
		})
		if err == nil {
			rules, ok := v.(*robotsRules)
			if !ok {
				return nil, fmt.Errorf("robots cache type mismatch: %T", v)
			}
			return rules, nil
		}
		if ctx.Err() != nil || !(harvest.IsCanceled(err) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, err
		}
	}
}

// fetchRobots retrieves and interprets robots.txt. It only returns an error
// when ctx ended; every other outcome becomes cacheable rules.
func (g *Gate) fetchRobots(ctx context.Context, u *url.URL, budget *RateBudget) (*robotsRules, error) {
	// The robots request counts against the host budget like any other.
	if _, _, err := g.waitForSlot(ctx, budget, g.cfg.DefaultInterval); err != nil {
		return nil, err
	}

	target := robotsURL(u)
	status, body, err := g.getRobots(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch robots %s: %w", target, ctx.Err())
		}
		metrics.ObserveRobotsFetchFailure()
		if g.cfg.StrictRobots {
			g.logger.Warn("robots fetch failed; denying host",
				zap.String("host", budget.Host()),
				zap.Error(err),
			)
			return denyAllRules("robots.txt unavailable"), nil
		}
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", budget.Host()),
			zap.Error(err),
		)
		return allowAllRules("robots.txt unavailable"), nil
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return denyAllRules(fmt.Sprintf("robots.txt returned %d", status)), nil
	}
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		g.logger.Warn("robots parse failed; allowing access",
			zap.String("host", budget.Host()),
			zap.Int("status", status),
			zap.Error(err),
		)
		return allowAllRules("robots.txt unparseable"), nil
	}
	if status >= http.StatusInternalServerError {
		return &robotsRules{data: data, denyAll: true, reason: fmt.Sprintf("robots.txt returned %d", status)}, nil
	}
	return &robotsRules{data: data}, nil
}

func (g *Gate) getRobots(ctx context.Context, target string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RobotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read robots body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (g *Gate) now() time.Time {
	if g.clock == nil {
		return time.Now()
	}
	return g.clock.Now()
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}
