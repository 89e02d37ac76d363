package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxRedirects          = 5
)

var errTooManyRedirects = errors.New("too many redirects")

// Client implements harvest.Getter: every GET passes the gate first.
type Client struct {
	gate    harvest.Gate
	fetcher harvest.Fetcher
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient wires a gate in front of fetcher. timeout bounds each fetch once
// its permit is granted.
func NewClient(gate harvest.Gate, fetcher harvest.Fetcher, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gate: gate, fetcher: fetcher, timeout: timeout, logger: logger}
}

// Get acquires a permit and fetches the URL, following up to maxRedirects
// redirects itself so that every hop is gated. A status of 400 or above is
// returned as a *harvest.SourceFetchError alongside the response.
func (c *Client) Get(ctx context.Context, request harvest.GetRequest) (harvest.FetchResponse, error) {
	target := request.URL
	for hop := 0; ; hop++ {
		resp, err := c.fetchOnce(ctx, target, request)
		if err != nil {
			return resp, err
		}
		resp.URL = request.URL
		resp.FinalURL = target

		location := ""
		if isRedirect(resp.StatusCode) && resp.Headers != nil {
			location = resp.Headers.Get("Location")
		}
		if location == "" {
			if resp.StatusCode >= 400 {
				return resp, &harvest.SourceFetchError{URL: target, StatusCode: resp.StatusCode}
			}
			return resp, nil
		}
		if hop >= maxRedirects {
			return resp, &harvest.SourceFetchError{URL: target, StatusCode: resp.StatusCode, Err: errTooManyRedirects}
		}
		next, err := resolveLocation(target, location)
		if err != nil {
			return resp, &harvest.SourceFetchError{URL: target, StatusCode: resp.StatusCode, Err: err}
		}
		c.logger.Debug("following redirect", zap.String("from", target), zap.String("to", next))
		target = next
	}
}

func (c *Client) fetchOnce(ctx context.Context, target string, request harvest.GetRequest) (harvest.FetchResponse, error) {
	if _, err := c.gate.Acquire(ctx, target, request.MinInterval); err != nil {
		return harvest.FetchResponse{}, err
	}

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.fetcher.Fetch(fetchCtx, harvest.FetchRequest{URL: target})
	if err != nil {
		metrics.ObserveFetch(target, "error", time.Since(start))
		c.logger.Debug("fetch failed", zap.String("url", target), zap.Error(err))
		return harvest.FetchResponse{}, &harvest.SourceFetchError{URL: target, Err: err}
	}
	metrics.ObserveFetch(target, strconv.Itoa(resp.StatusCode), resp.Duration)
	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// resolveLocation resolves a Location header against the URL that sent it.
func resolveLocation(from, location string) (string, error) {
	base, err := url.Parse(from)
	if err != nil {
		return "", fmt.Errorf("parse redirect source: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("parse redirect location: %w", err)
	}
	next := base.ResolveReference(ref)
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", fmt.Errorf("redirect to unsupported scheme %q", next.Scheme)
	}
	next.Fragment = ""
	return next.String(), nil
}
