// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlRecordsTotal          *prometheus.CounterVec
	crawlEarlyStopsTotal       *prometheus.CounterVec
	crawlIgnoredErrorsTotal    *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	fetchRateLimitDelaySeconds prometheus.Histogram
	datasetSavesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_crawl_pages_total",
				Help: "Listing pages processed, labeled by entity and outcome.",
			},
			[]string{"entity", "outcome"},
		)

		crawlRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_crawl_records_total",
				Help: "Records inserted into datasets, labeled by dataset.",
			},
			[]string{"dataset"},
		)

		crawlEarlyStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_crawl_early_stops_total",
				Help: "Bursts stopped on an already stored id, labeled by entity.",
			},
			[]string{"entity"},
		)

		crawlIgnoredErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_crawl_ignored_errors_total",
				Help: "Step failures skipped in ignore-errors mode, labeled by entity.",
			},
			[]string{"entity"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_fetches_total",
				Help: "Documents fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_fetch_retries_total",
				Help: "Fetch attempts retried after a transient failure, labeled by site.",
			},
			[]string{"site"},
		)

		fetchRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fightstats_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on the request limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)

		datasetSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fightstats_dataset_saves_total",
				Help: "Dataset saves, labeled by dataset, mode and result.",
			},
			[]string{"dataset", "mode", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObservePage counts one processed listing page.
func ObservePage(entity, outcome string) {
	Init()
	crawlPagesTotal.WithLabelValues(entity, outcome).Inc()
}

// ObserveRecords counts records inserted into a dataset.
func ObserveRecords(dataset string, n int) {
	Init()
	if n > 0 {
		crawlRecordsTotal.WithLabelValues(dataset).Add(float64(n))
	}
}

// ObserveEarlyStop counts a burst stopped by the early-stopping predicate.
func ObserveEarlyStop(entity string) {
	Init()
	crawlEarlyStopsTotal.WithLabelValues(entity).Inc()
}

// ObserveIgnoredError counts a step failure skipped in ignore-errors mode.
func ObserveIgnoredError(entity string) {
	Init()
	crawlIgnoredErrorsTotal.WithLabelValues(entity).Inc()
}

// ObserveFetch counts a finished fetch.
func ObserveFetch(rawURL string, status int) {
	Init()
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	fetchesTotal.WithLabelValues(SanitizeSite(rawURL), code).Inc()
}

// ObserveRetry counts a retried fetch attempt.
func ObserveRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitDelay records the duration of a limiter wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	fetchRateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveSave counts a dataset save.
func ObserveSave(dataset string, direct bool, err error) {
	Init()
	mode := "progress"
	if direct {
		mode = "direct"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	datasetSavesTotal.WithLabelValues(dataset, mode, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
