// Package metrics exposes Prometheus collectors for the bookmark service.
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
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineStepSeconds        *prometheus.HistogramVec
	pipelineStepDegradedTotal  *prometheus.CounterVec
	pipelineActiveRuns         prometheus.Gauge
	storeFallbacksTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perch_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineStepSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perch_pipeline_step_seconds",
				Help:    "Histogram of pipeline step durations, labeled by step.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		)

		pipelineStepDegradedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perch_pipeline_step_degraded_total",
				Help: "Total number of steps that failed and fell back to defaults, labeled by step.",
			},
			[]string{"step"},
		)

		pipelineActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "perch_pipeline_active_runs",
				Help: "Number of pipeline runs currently in flight.",
			},
		)

		storeFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perch_store_fallbacks_total",
				Help: "Total number of primary-store failures that fell back to the mirror, labeled by operation.",
			},
			[]string{"operation"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the pipeline run counter for the given outcome.
func ObserveRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStep records the duration of one pipeline step.
func ObserveStep(step string, duration time.Duration) {
	pipelineStepSeconds.WithLabelValues(step).Observe(duration.Seconds())
}

// ObserveStepDegraded counts a step that failed and substituted defaults.
func ObserveStepDegraded(step string) {
	pipelineStepDegradedTotal.WithLabelValues(step).Inc()
}

// IncActiveRuns increments the in-flight run gauge.
func IncActiveRuns() {
	pipelineActiveRuns.Inc()
}

// DecActiveRuns decrements the in-flight run gauge.
func DecActiveRuns() {
	pipelineActiveRuns.Dec()
}

// ObserveStoreFallback counts a primary-store failure served by the mirror.
func ObserveStoreFallback(operation string) {
	storeFallbacksTotal.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
