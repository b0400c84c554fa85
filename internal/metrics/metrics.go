// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	browserRetriesTotal        *prometheus.CounterVec
	recordsAcceptedTotal       *prometheus.CounterVec
	recordsSkippedTotal        *prometheus.CounterVec
	politenessDelaySeconds     prometheus.Histogram
	runDurationSeconds         *prometheus.HistogramVec
	lastSuccessTimestamp       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_fetches_total",
				Help: "Total number of fetches, labeled by site, mode and outcome.",
			},
			[]string{"site", "mode", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_fetch_bytes_total",
				Help: "Total number of payload bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		browserRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_browser_retries_total",
				Help: "Total number of scripted-browser retries, labeled by site.",
			},
			[]string{"site"},
		)

		recordsAcceptedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_records_accepted_total",
				Help: "Records accepted into the delta, labeled by source and kind (new or changed).",
			},
			[]string{"source", "kind"},
		)

		recordsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_records_skipped_total",
				Help: "Records dropped before novelty checks because they had no identity.",
			},
			[]string{"source"},
		)

		politenessDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "noticewatch_politeness_delay_seconds",
				Help:    "Histogram of politeness pauses between fetches.",
				Buckets: []float64{0.5, 1, 2, 3, 4, 5, 6, 10},
			},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noticewatch_run_duration_seconds",
				Help:    "Histogram of pipeline run durations, labeled by status.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		)

		lastSuccessTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "noticewatch_last_success_timestamp_seconds",
				Help: "Unix time of the last run that finished without error.",
			},
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch outcome.
func ObserveFetch(rawURL, mode, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, mode, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveBrowserRetry counts one scripted-browser retry.
func ObserveBrowserRetry(rawURL string) {
	Init()
	browserRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveAccepted adds accepted record counts for a source.
func ObserveAccepted(source string, added, changed int) {
	Init()
	if added > 0 {
		recordsAcceptedTotal.WithLabelValues(source, "new").Add(float64(added))
	}
	if changed > 0 {
		recordsAcceptedTotal.WithLabelValues(source, "changed").Add(float64(changed))
	}
}

// ObserveSkipped counts records dropped for lacking an identity.
func ObserveSkipped(source string, n int) {
	Init()
	if n > 0 {
		recordsSkippedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObservePoliteness records one politeness pause.
func ObservePoliteness(delay time.Duration) {
	Init()
	politenessDelaySeconds.Observe(delay.Seconds())
}

// ObserveRun records a finished run.
func ObserveRun(status string, duration time.Duration, finished time.Time) {
	Init()
	runDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if status == "success" {
		lastSuccessTimestamp.Set(float64(finished.Unix()))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Push sends the default registry to a Prometheus Pushgateway. Used by one-shot runs
// that exit before a scrape could happen.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	Init()
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
