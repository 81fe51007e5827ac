// Package monitoring provides Prometheus metrics and OpenTelemetry tracing
// for the analysis pipeline.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

// MetricsCollector records pipeline and HTTP metrics. It implements the
// analysis service's Metrics interface.
type MetricsCollector struct {
	logger *zap.Logger

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	analysisTotal     *prometheus.CounterVec
	analysisDegraded  prometheus.Counter
	modelCallDuration *prometheus.HistogramVec
	modelCallErrors   *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// NewMetricsCollector registers the collectors on the default registry.
func NewMetricsCollector(logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),

		analysisTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_results_total",
				Help: "Analysis results by producing tier",
			},
			[]string{"source"},
		),
		analysisDegraded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analysis_degraded_total",
				Help: "Analysis results produced by a degraded tier",
			},
		),
		modelCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_call_duration_seconds",
				Help:    "External model call duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"operation"},
		),
		modelCallErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_call_errors_total",
				Help: "External model call failures by classified cause",
			},
			[]string{"operation", "class"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analysis_cache_lookups_total",
				Help: "Analysis cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveAnalysis counts a produced result per tier.
func (m *MetricsCollector) ObserveAnalysis(source inbound.ResultSource, degraded bool) {
	m.analysisTotal.WithLabelValues(string(source)).Inc()
	if degraded {
		m.analysisDegraded.Inc()
	}
}

// ObserveModelCall records a model call's duration and, on failure, its
// classified cause. A non-positive duration counts only the error class:
// refusals are detected after the call, when no latency sample is left to
// take.
func (m *MetricsCollector) ObserveModelCall(operation string, duration time.Duration, errClass outbound.ModelErrorClass) {
	if duration > 0 {
		m.modelCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
	if errClass != "" {
		m.modelCallErrors.WithLabelValues(operation, string(errClass)).Inc()
	}
}

// ObserveCacheLookup counts an analysis cache hit or miss.
func (m *MetricsCollector) ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// HTTPMiddleware instruments request counts and latency per route.
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		status := strconv.Itoa(recorder.status)
		m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
