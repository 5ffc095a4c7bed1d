// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	talksTotal                 *prometheus.CounterVec
	speakersTotal              *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	sequenceReservationsTotal  *prometheus.CounterVec
	sequenceCacheHitsTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeRuns                 prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_pages_total",
				Help: "Total number of pages fetched, labeled by source and page kind.",
			},
			[]string{"source", "kind"},
		)

		talksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_talks_total",
				Help: "Talks processed, labeled by source and outcome (created/updated/skipped).",
			},
			[]string{"source", "outcome"},
		)

		speakersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_speakers_total",
				Help: "Speakers resolved, labeled by source and outcome (created/updated/reused).",
			},
			[]string{"source", "outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_runs_total",
				Help: "Crawl runs completed, labeled by source and terminal reason.",
			},
			[]string{"source", "reason"},
		)

		sequenceReservationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_sequence_reservations_total",
				Help: "Atomic counter round-trips issued by the identity allocator.",
			},
			[]string{"sequence"},
		)

		sequenceCacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_sequence_cache_hits_total",
				Help: "Identities served from the local reservation cache.",
			},
			[]string{"sequence"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talkcrawler_api_requests_total",
				Help: "Run API requests by method, route pattern, and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "talkcrawler_api_request_duration_seconds",
				Help:    "Run API latency by method and route pattern.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "talkcrawler_active_runs",
				Help: "Number of crawl runs currently executing.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "talkcrawler_rate_limit_delay_seconds",
				Help:    "Time a fetch waited for its host's rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for a fetched page.
func ObservePage(source, kind string) {
	pagesTotal.WithLabelValues(source, kind).Inc()
}

// ObserveTalk records the outcome of processing one talk.
func ObserveTalk(source, outcome string) {
	talksTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSpeaker records the outcome of resolving one speaker.
func ObserveSpeaker(source, outcome string) {
	speakersTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun increments the run counter for the terminal reason.
func ObserveRun(source, reason string) {
	runsTotal.WithLabelValues(source, reason).Inc()
}

// ObserveSequenceReservation counts one round-trip to the central counter.
func ObserveSequenceReservation(sequence string) {
	sequenceReservationsTotal.WithLabelValues(sequence).Inc()
}

// ObserveSequenceCacheHit counts one identity served without a round-trip.
func ObserveSequenceCacheHit(sequence string) {
	sequenceCacheHitsTotal.WithLabelValues(sequence).Inc()
}

// ObserveHTTPRequest records one run API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited for its host's limiter.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	activeRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	activeRuns.Dec()
}
