package monitoring

import (
	"net/http"
	"strconv"
	"time"
)

// InitializeMonitoring wires up the structured logger, health checker,
// tracer, alert manager, and runtime metrics collector used by
// cmd/server's startup sequence.
func InitializeMonitoring(version string) {
	logger := NewLogger("indexpilot")
	logger.SetMinLevel(INFO)
	SetGlobalLogger(logger)

	healthChecker := NewHealthChecker(version)
	SetGlobalHealthChecker(healthChecker)

	healthChecker.RegisterCheck("memory", MemoryHealthCheck(80.0))
	healthChecker.RegisterCheck("goroutines", GoroutineHealthCheck(10000))
	healthChecker.RegisterCheck("uptime", UptimeHealthCheck(time.Now(), 30*time.Second))

	tracer := NewTracer("indexpilot")
	SetGlobalTracer(tracer)

	alertManager := NewAlertManager()
	SetGlobalAlertManager(alertManager)
	for _, rule := range GetDefaultAlertRules() {
		alertManager.RegisterRule(rule)
	}

	runtimeCollector := NewRuntimeMetricsCollector(30 * time.Second)
	go runtimeCollector.Start()

	logger.Info("monitoring initialized", map[string]interface{}{
		"version": version,
		"components": []string{
			"logger", "health_checker", "tracer", "alert_manager", "runtime_collector",
		},
	})
}

// RegisterMonitoringEndpoints registers the /metrics, /health, and
// /ready HTTP endpoints on mux.
func RegisterMonitoringEndpoints(mux *http.ServeMux) {
	metricsCollector := NewMetricsCollector()
	healthChecker := GetHealthChecker()

	mux.Handle("/metrics", metricsCollector.Handler())
	mux.HandleFunc("/health", healthChecker.HTTPHealthHandler())
	mux.HandleFunc("/ready", healthChecker.HTTPReadinessHandler())

	GetLogger().Info("monitoring endpoints registered", map[string]interface{}{
		"endpoints": []string{"/metrics", "/health", "/ready"},
	})
}

// TraceDecisionPass starts a span covering one scheduler decision pass.
func TraceDecisionPass(mode string) *Span {
	span := GetTracer().StartSpan("decision_pass")
	span.SetTag("mode", mode)
	return span
}

// WrapHandlerWithMonitoring wraps an HTTP handler with tracing, metric
// recording, and slow-request logging.
func WrapHandlerWithMonitoring(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		span := TraceAPIRequest(r.Method, endpoint)
		defer span.Finish()

		w.Header().Set("X-Trace-ID", span.TraceID)

		startTime := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(wrapped, r)

		durationMs := float64(time.Since(startTime).Milliseconds())
		RecordAPIRequest(endpoint, r.Method, strconv.Itoa(wrapped.statusCode), durationMs)

		logger := GetLogger()
		logger.Info("API request", map[string]interface{}{
			"method":      r.Method,
			"endpoint":    endpoint,
			"status":      wrapped.statusCode,
			"duration_ms": durationMs,
			"trace_id":    span.TraceID,
			"ip":          r.RemoteAddr,
		})

		if durationMs > 1000 {
			logger.Warn("slow API request", map[string]interface{}{
				"endpoint":    endpoint,
				"duration_ms": durationMs,
				"threshold":   1000,
			})
		}
	}
}
