package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recording helper is safe to
// call on a nil *Metrics so packages can run uninstrumented in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionResolutionsTotal      *prometheus.CounterVec
	SessionResolutionDuration    prometheus.Histogram
	SessionRetriesTotal          prometheus.Counter
	SessionStaleDiscardedTotal   prometheus.Counter
	SessionStateTransitionsTotal *prometheus.CounterVec

	// Tenancy metrics
	TenantGuardRejectionsTotal *prometheus.CounterVec

	// Document store metrics
	DocstoreOperationsTotal   *prometheus.CounterVec
	DocstoreOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SessionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_session_resolutions_total",
				Help: "Total number of tenant context resolutions by outcome",
			},
			[]string{"outcome"},
		),
		SessionResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "labkit_session_resolution_duration_seconds",
				Help:    "Tenant context resolution duration in seconds, including retry backoff",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SessionRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "labkit_session_user_fetch_retries_total",
				Help: "Total number of user record fetch retries",
			},
		),
		SessionStaleDiscardedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "labkit_session_stale_results_discarded_total",
				Help: "Total number of resolution results discarded because a newer identity event arrived",
			},
		),
		SessionStateTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_session_state_transitions_total",
				Help: "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),

		TenantGuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_tenant_guard_rejections_total",
				Help: "Total number of data operations rejected by the tenant isolation guard",
			},
			[]string{"operation", "reason"},
		),

		DocstoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_docstore_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		DocstoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labkit_docstore_operation_duration_seconds",
				Help:    "Document store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_cache_hits_total",
				Help: "Total number of document cache hits",
			},
			[]string{"level"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labkit_cache_misses_total",
				Help: "Total number of document cache misses",
			},
			[]string{"level"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionResolutionsTotal,
		m.SessionResolutionDuration,
		m.SessionRetriesTotal,
		m.SessionStaleDiscardedTotal,
		m.SessionStateTransitionsTotal,
		m.TenantGuardRejectionsTotal,
		m.DocstoreOperationsTotal,
		m.DocstoreOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// RecordResolution records a finished tenant context resolution
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionResolutionsTotal.WithLabelValues(outcome).Inc()
	m.SessionResolutionDuration.Observe(duration.Seconds())
}

// RecordRetry records one user record fetch retry
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.SessionRetriesTotal.Inc()
}

// RecordStaleDiscard records a resolution result dropped for recency
func (m *Metrics) RecordStaleDiscard() {
	if m == nil {
		return
	}
	m.SessionStaleDiscardedTotal.Inc()
}

// RecordTransition records a session state change
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.SessionStateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordGuardRejection records a tenant guard refusal
func (m *Metrics) RecordGuardRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.TenantGuardRejectionsTotal.WithLabelValues(operation, reason).Inc()
}

// RecordDocstoreOp records a document store call and its latency
func (m *Metrics) RecordDocstoreOp(operation, backend string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DocstoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.DocstoreOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit at the given level (l1, l2)
func (m *Metrics) RecordCacheHit(level string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(level).Inc()
}

// RecordCacheMiss records a cache miss at the given level (l1, l2)
func (m *Metrics) RecordCacheMiss(level string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(level).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and latency. routeName maps
// a request to a low-cardinality path label; nil uses the raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, routeName func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if routeName != nil {
				if name := routeName(r); name != "" {
					path = name
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
