// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterRecordsTotal           *prometheus.CounterVec
	harvesterSourcesTotal           *prometheus.CounterVec
	harvesterFetchesTotal           *prometheus.CounterVec
	harvesterFetchDurationSeconds   *prometheus.HistogramVec
	harvesterPolicyDenialsTotal     *prometheus.CounterVec
	harvesterRobotsFetchFailures    prometheus.Counter
	harvesterEnrichmentTotal        *prometheus.CounterVec
	harvesterRateLimitDelaysSeconds *prometheus.HistogramVec
	harvesterPagesCrawledTotal      *prometheus.CounterVec
	httpRequestsTotal               *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Records seen by the pipeline, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		harvesterSourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_sources_total",
				Help: "Completed source runs, labeled by status.",
			},
			[]string{"status"},
		)

		harvesterFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Gated HTTP fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		harvesterFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		harvesterPolicyDenialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_policy_denials_total",
				Help: "Fetches refused by the politeness gate, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterRobotsFetchFailures = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_robots_fetch_failures_total",
				Help: "robots.txt fetches that failed at the transport level.",
			},
		)

		harvesterEnrichmentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_enrichment_total",
				Help: "Enrichment attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvesterRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		harvesterPagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_crawled_total",
				Help: "Directory pages crawled, labeled by source.",
			},
			[]string{"source"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one record outcome (emitted, rejected, warning) for a source.
func ObserveRecord(source, outcome string) {
	Init()
	harvesterRecordsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSource counts a finished source run.
func ObserveSource(status string) {
	Init()
	harvesterSourcesTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one fetch result.
func ObserveFetch(site, status string, duration time.Duration) {
	Init()
	sanitized := SanitizeSite(site)
	harvesterFetchesTotal.WithLabelValues(sanitized, status).Inc()
	if duration > 0 {
		harvesterFetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
	}
}

// ObservePolicyDenied counts a gate refusal.
func ObservePolicyDenied(site string) {
	Init()
	harvesterPolicyDenialsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveRobotsFetchFailure counts a robots.txt transport failure.
func ObserveRobotsFetchFailure() {
	Init()
	harvesterRobotsFetchFailures.Inc()
}

// ObserveEnrichment counts an enrichment outcome (found, not_found, skipped).
func ObserveEnrichment(outcome string) {
	Init()
	harvesterEnrichmentTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObservePageCrawled counts one directory page fetched for a source.
func ObservePageCrawled(source string) {
	Init()
	harvesterPagesCrawledTotal.WithLabelValues(source).Inc()
}
