package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// AlertSeverity represents alert severity levels
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert represents a monitoring alert
type Alert struct {
	Name        string
	Severity    AlertSeverity
	Message     string
	Timestamp   time.Time
	Labels      map[string]string
	Annotations map[string]string
}

// AlertRule defines conditions for triggering alerts
type AlertRule struct {
	Name        string
	Description string
	Query       string
	Threshold   float64
	Duration    time.Duration
	Severity    AlertSeverity
	Enabled     bool
}

// AlertManager manages alerting rules and notifications
type AlertManager struct {
	rules         map[string]*AlertRule
	activeAlerts  map[string]*Alert
	alertHistory  []*Alert
	mu            sync.RWMutex
	logger        *Logger
	maxHistory    int
}

// NewAlertManager creates a new alert manager
func NewAlertManager() *AlertManager {
	return &AlertManager{
		rules:        make(map[string]*AlertRule),
		activeAlerts: make(map[string]*Alert),
		alertHistory: make([]*Alert, 0),
		logger:       GetLogger(),
		maxHistory:   1000,
	}
}

// RegisterRule registers an alert rule
func (am *AlertManager) RegisterRule(rule *AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules[rule.Name] = rule
}

// FireAlert fires an alert
func (am *AlertManager) FireAlert(alert *Alert) {
	am.mu.Lock()
	defer am.mu.Unlock()

	// Add to active alerts
	am.activeAlerts[alert.Name] = alert

	// Add to history
	am.alertHistory = append(am.alertHistory, alert)
	if len(am.alertHistory) > am.maxHistory {
		am.alertHistory = am.alertHistory[1:]
	}

	// Log alert
	fields := map[string]interface{}{
		"alert_name":     alert.Name,
		"severity":       alert.Severity,
		"labels":         alert.Labels,
		"annotations":    alert.Annotations,
		"event_type":     "alert",
	}

	logLevel := INFO
	switch alert.Severity {
	case SeverityWarning:
		logLevel = WARN
	case SeverityCritical:
		logLevel = ERROR
	}

	am.logger.log(logLevel, fmt.Sprintf("ALERT: %s - %s", alert.Name, alert.Message), fields, nil)
}

// ResolveAlert resolves an active alert
func (am *AlertManager) ResolveAlert(name string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.activeAlerts[name]; exists {
		delete(am.activeAlerts, name)

		am.logger.Info(fmt.Sprintf("Alert resolved: %s", name), map[string]interface{}{
			"alert_name":  name,
			"severity":    alert.Severity,
			"duration":    time.Since(alert.Timestamp).Seconds(),
			"event_type":  "alert_resolved",
		})
	}
}

// GetActiveAlerts returns all active alerts
func (am *AlertManager) GetActiveAlerts() []*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]*Alert, 0, len(am.activeAlerts))
	for _, alert := range am.activeAlerts {
		alerts = append(alerts, alert)
	}
	return alerts
}

// Predefined Alert Rules for the index advisor

// GetDefaultAlertRules returns the default alert rules for the index advisor.
func GetDefaultAlertRules() []*AlertRule {
	return []*AlertRule{
		{
			Name:        "LowExplainCoverage",
			Description: "EXPLAIN coverage ratio below the configured minimum",
			Query:       "indexpilot_explain_coverage_ratio < 0.7",
			Threshold:   0.7,
			Duration:    10 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "CircuitBreakerOpen",
			Description: "A circuit breaker has opened for index creation",
			Query:       "indexpilot_circuit_breaker_state == 2",
			Threshold:   2,
			Duration:    1 * time.Minute,
			Severity:    SeverityCritical,
			Enabled:     true,
		},
		{
			Name:        "HighRollbackRate",
			Description: "Rollback rate exceeds 10% of created indexes",
			Query:       "rate(indexpilot_indexes_rolled_back_total[1h]) / rate(indexpilot_indexes_created_total[1h]) > 0.1",
			Threshold:   0.1,
			Duration:    15 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "CanarySuccessRateLow",
			Description: "A canary's success rate is trending toward rollback",
			Query:       "indexpilot_canary_success_rate < 0.8",
			Threshold:   0.8,
			Duration:    5 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "StatsBufferBacklog",
			Description: "Stats buffer depth approaching its max size",
			Query:       "indexpilot_stats_buffer_depth > 8000",
			Threshold:   8000,
			Duration:    2 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "HighMemoryUsage",
			Description: "Memory usage exceeds 80%",
			Query:       "indexpilot_memory_usage_bytes / indexpilot_memory_total_bytes > 0.8",
			Threshold:   0.8,
			Duration:    5 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "HighGoroutineCount",
			Description: "Goroutine count exceeds 10000",
			Query:       "indexpilot_goroutines_count > 10000",
			Threshold:   10000,
			Duration:    5 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "HighAPIErrorRate",
			Description: "API error rate exceeds 5%",
			Query:       "sum(rate(indexpilot_api_requests_total{status=~\"5..\"}[5m])) / sum(rate(indexpilot_api_requests_total[5m])) > 0.05",
			Threshold:   0.05,
			Duration:    5 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
		{
			Name:        "SlowDatabaseQueries",
			Description: "Database query latency exceeds 100ms",
			Query:       "histogram_quantile(0.95, sum(rate(indexpilot_db_query_duration_milliseconds_bucket[5m])) by (le)) > 100",
			Threshold:   100,
			Duration:    5 * time.Minute,
			Severity:    SeverityWarning,
			Enabled:     true,
		},
	}
}

// MonitoringSink realizes the external MonitoringSink collaborator
// (spec §6) over this package's AlertManager and Prometheus metrics.
type MonitoringSink struct {
	alerts *AlertManager
}

func NewMonitoringSink(alerts *AlertManager) *MonitoringSink {
	return &MonitoringSink{alerts: alerts}
}

// RecordDecision forwards a fused decision into the Prometheus counters.
func (s *MonitoringSink) RecordDecision(table, verdict, mode string, confidence float64) {
	RecordDecision(table, verdict, mode, confidence)
}

// RecordRollback forwards a rollback event and fires a warning alert.
func (s *MonitoringSink) RecordRollback(table, indexName, reason string) {
	RecordRollback(reason)
	s.alerts.FireAlert(&Alert{
		Name:      "IndexRolledBack",
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("index %s on %s rolled back: %s", indexName, table, reason),
		Timestamp: time.Now(),
		Labels:    map[string]string{"table": table, "index_name": indexName, "reason": reason},
	})
}

// RecordCircuitBreakerOpen forwards a breaker trip and fires a critical alert.
func (s *MonitoringSink) RecordCircuitBreakerOpen(resource string) {
	SetCircuitBreakerState(resource, 2)
	RecordCircuitBreakerTrip(resource)
	s.alerts.FireAlert(&Alert{
		Name:      "CircuitBreakerOpen",
		Severity:  SeverityCritical,
		Message:   fmt.Sprintf("circuit breaker open for %s", resource),
		Timestamp: time.Now(),
		Labels:    map[string]string{"resource": resource},
	})
}

// Global alert manager
var globalAlertManager = NewAlertManager()

// GetAlertManager returns the global alert manager
func GetAlertManager() *AlertManager {
	return globalAlertManager
}

// SetGlobalAlertManager sets the global alert manager
func SetGlobalAlertManager(am *AlertManager) {
	globalAlertManager = am
}
