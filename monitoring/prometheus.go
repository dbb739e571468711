package monitoring

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
	// Decision Metrics (C9, C15)
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_decisions_total",
			Help: "Total index decisions by verdict and mode",
		},
		[]string{"verdict", "mode"},
	)

	decisionConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexpilot_decision_confidence",
			Help:    "Fused decision confidence score",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"table"},
	)

	decisionsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_decisions_skipped_total",
			Help: "Total candidates skipped by reason",
		},
		[]string{"reason"},
	)

	// Index Lifecycle Metrics (C15, C13)
	indexesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_indexes_created_total",
			Help: "Total indexes created by table and kind",
		},
		[]string{"table", "kind"},
	)

	indexesRolledBackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_indexes_rolled_back_total",
			Help: "Total indexes rolled back by reason",
		},
		[]string{"reason"},
	)

	indexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexpilot_index_build_duration_milliseconds",
			Help:    "CREATE INDEX CONCURRENTLY wall-clock duration",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000},
		},
		[]string{"table"},
	)

	// Circuit Breaker Metrics (C13)
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexpilot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"resource"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_circuit_breaker_trips_total",
			Help: "Total circuit breaker trips to open",
		},
		[]string{"resource"},
	)

	// Canary Metrics (C13)
	canarySuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexpilot_canary_success_rate",
			Help: "Current canary success rate for an index",
		},
		[]string{"index_name"},
	)

	canaryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_canary_transitions_total",
			Help: "Total canary status transitions",
		},
		[]string{"new_status"},
	)

	// EXPLAIN Coverage Metrics (C17)
	explainCoverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexpilot_explain_coverage_ratio",
			Help: "Ratio of decisions that used a real EXPLAIN plan",
		},
	)

	explainFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexpilot_explain_fallback_total",
			Help: "Total decisions that fell back to row-count estimates",
		},
	)

	// Stats Buffer Metrics (C2)
	statsBufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexpilot_stats_buffer_depth",
			Help: "Current number of buffered query observations",
		},
	)

	statsFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_stats_flush_total",
			Help: "Total stats-buffer flush attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Database Metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexpilot_db_query_duration_milliseconds",
			Help:    "Database query duration in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"operation", "table"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexpilot_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// API Request Metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexpilot_api_requests_total",
			Help: "Total API requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexpilot_api_request_duration_milliseconds",
			Help:    "API request duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"endpoint", "method"},
	)

	// Runtime Metrics
	memoryUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexpilot_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexpilot_goroutines_count",
			Help: "Current number of goroutines",
		},
	)
)

// MetricsCollector handles metrics collection and exposure.
type MetricsCollector struct {
	registry *prometheus.Registry
	mu       sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		registry: prometheus.DefaultRegisterer.(*prometheus.Registry),
	}
}

// Handler returns the HTTP handler for /metrics.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision records a fused decision's verdict, confidence, and mode.
func RecordDecision(table, verdict, mode string, confidence float64) {
	decisionsTotal.WithLabelValues(verdict, mode).Inc()
	decisionConfidence.WithLabelValues(table).Observe(confidence)
}

// RecordSkipped records a candidate skipped before fusion.
func RecordSkipped(reason string) {
	decisionsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordIndexCreated records a successful CREATE INDEX CONCURRENTLY.
func RecordIndexCreated(table, kind string, durationMs float64) {
	indexesCreatedTotal.WithLabelValues(table, kind).Inc()
	indexBuildDuration.WithLabelValues(table).Observe(durationMs)
}

// RecordRollback records an automatic rollback.
func RecordRollback(reason string) {
	indexesRolledBackTotal.WithLabelValues(reason).Inc()
}

// SetCircuitBreakerState reports a breaker's current numeric state.
func SetCircuitBreakerState(resource string, state int) {
	circuitBreakerState.WithLabelValues(resource).Set(float64(state))
}

// RecordCircuitBreakerTrip records a transition into the open state.
func RecordCircuitBreakerTrip(resource string) {
	circuitBreakerTrips.WithLabelValues(resource).Inc()
}

// SetCanarySuccessRate reports an index's current canary success rate.
func SetCanarySuccessRate(indexName string, rate float64) {
	canarySuccessRate.WithLabelValues(indexName).Set(rate)
}

// RecordCanaryTransition records a canary status change.
func RecordCanaryTransition(newStatus string) {
	canaryTransitionsTotal.WithLabelValues(newStatus).Inc()
}

// SetExplainCoverage reports the current EXPLAIN-coverage ratio.
func SetExplainCoverage(ratio float64) {
	explainCoverage.Set(ratio)
}

// RecordExplainFallback records a decision that used the row-count estimate.
func RecordExplainFallback() {
	explainFallbackTotal.Inc()
}

// SetStatsBufferDepth reports the stats buffer's current item count.
func SetStatsBufferDepth(depth int) {
	statsBufferDepth.Set(float64(depth))
}

// RecordStatsFlush records a stats-buffer flush attempt outcome.
func RecordStatsFlush(outcome string) {
	statsFlushTotal.WithLabelValues(outcome).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation, table string, durationMs float64) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(durationMs)
}

// SetDBConnections sets active database connections.
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// RecordAPIRequest records API request metrics.
func RecordAPIRequest(endpoint, method, status string, durationMs float64) {
	apiRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	apiRequestDuration.WithLabelValues(endpoint, method).Observe(durationMs)
}

// SetMemoryUsage sets memory usage.
func SetMemoryUsage(bytes uint64) {
	memoryUsageBytes.Set(float64(bytes))
}

// SetGoroutineCount sets goroutine count.
func SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// APIRequestMiddleware wraps HTTP handlers to record metrics.
func APIRequestMiddleware(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(wrapped, r)

		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(endpoint, r.Method, strconv.Itoa(wrapped.statusCode), duration)
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
