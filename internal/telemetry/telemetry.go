// Package telemetry exposes Prometheus collectors for the harvester.
package telemetry

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
	harvesterPagesTotal            *prometheus.CounterVec
	harvesterCacheLookupsTotal     *prometheus.CounterVec
	harvesterActiveWorkers         prometheus.Gauge
	harvesterExtractionSeconds     *prometheus.HistogramVec
	harvesterRateLimitDelaySeconds *prometheus.HistogramVec
	harvesterRetriesTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of pages processed, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		harvesterCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_cache_lookups_total",
				Help: "Total number of cache lookups, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently extracting a page.",
			},
		)

		harvesterExtractionSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_extraction_duration_seconds",
				Help:    "Histogram of end-to-end extraction latencies, labeled by method.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		)

		harvesterRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		harvesterRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_retries_total",
				Help: "Total number of retry attempts, labeled by host.",
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObservePage increments the page counter for the given method and status.
func ObservePage(method, status string) {
	if harvesterPagesTotal == nil {
		return
	}
	harvesterPagesTotal.WithLabelValues(method, status).Inc()
}

// ObserveCacheLookup increments the cache lookup counter.
func ObserveCacheLookup(tier, result string) {
	if harvesterCacheLookupsTotal == nil {
		return
	}
	harvesterCacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if harvesterActiveWorkers == nil {
		return
	}
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if harvesterActiveWorkers == nil {
		return
	}
	harvesterActiveWorkers.Dec()
}

// ObserveExtraction records the duration of one full extraction.
func ObserveExtraction(method string, duration time.Duration) {
	if harvesterExtractionSeconds == nil {
		return
	}
	harvesterExtractionSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if harvesterRateLimitDelaySeconds == nil {
		return
	}
	harvesterRateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for the given host.
func ObserveRetry(host string) {
	if harvesterRetriesTotal == nil {
		return
	}
	harvesterRetriesTotal.WithLabelValues(host).Inc()
}
