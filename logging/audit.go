package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event emitted by the decision
// engine and safety envelope.
type AuditEventType string

const (
	AuditDecision         AuditEventType = "decision"
	AuditCreateIndex      AuditEventType = "create_index"
	AuditRollbackIndex    AuditEventType = "rollback_index"
	AuditGateVeto         AuditEventType = "gate_veto"
	AuditCircuitBreaker   AuditEventType = "circuit_breaker"
	AuditCanaryTransition AuditEventType = "canary_transition"
	AuditApprovalRequest  AuditEventType = "approval_request"
	AuditConfigChange     AuditEventType = "config_change"
)

// AuditEvent represents a single audit trail entry. Every decision
// (applied or advisory), rollback, and gate veto produces one of these.
type AuditEvent struct {
	EventID     string                 `json:"event_id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	Table       string                 `json:"table,omitempty"`
	Field       string                 `json:"field,omitempty"`
	IndexName   string                 `json:"index_name,omitempty"`
	Action      string                 `json:"action"`
	Status      string                 `json:"status"` // success, failed, skipped
	Reason      string                 `json:"reason,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Severity    string                 `json:"severity"` // info, warning, critical
	Environment string                 `json:"environment"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// AuditLogger handles append-only audit trail logging to a local JSONL
// file. Events are buffered in memory and written once 100 are queued,
// every 5 seconds, and on Close. It backs the default on-disk
// implementation of the audit.Sink interface.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	encoder     *json.Encoder
	filePath    string
	rotateSize  int64 // Max file size before rotation
	currentSize int64
	buffer      []*AuditEvent
	bufferSize  int
	flushTicker *time.Ticker
	stopChan    chan struct{}
	environment string
}

// NewAuditLogger creates a new audit logger writing to auditDir/audit.log.
func NewAuditLogger(auditDir string) (*AuditLogger, error) {
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return nil, err
	}

	filePath := filepath.Join(auditDir, "audit.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	stat, _ := file.Stat()

	al := &AuditLogger{
		file:        file,
		encoder:     json.NewEncoder(file),
		filePath:    filePath,
		rotateSize:  100 * 1024 * 1024, // 100MB
		currentSize: stat.Size(),
		buffer:      make([]*AuditEvent, 0, 100),
		bufferSize:  100,
		flushTicker: time.NewTicker(5 * time.Second),
		stopChan:    make(chan struct{}),
		environment: getEnvironment(),
	}

	go al.autoFlush()

	return al, nil
}

// LogDecision logs a decision-pass verdict (applied or advisory).
func (al *AuditLogger) LogDecision(ctx context.Context, table, field, action, reason string, confidence float64, details map[string]interface{}) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  AuditDecision,
		Table:      table,
		Field:      field,
		Action:     action,
		Status:     "success",
		Reason:     reason,
		Confidence: confidence,
		Details:    details,
		Severity:   "info",
	})
}

// LogCreateIndex logs a successful CREATE INDEX CONCURRENTLY.
func (al *AuditLogger) LogCreateIndex(ctx context.Context, table, field, indexName, sql string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditCreateIndex,
		Table:     table,
		Field:     field,
		IndexName: indexName,
		Action:    "CREATE_INDEX",
		Status:    "success",
		Details:   map[string]interface{}{"sql": sql},
		Severity:  "info",
	})
}

// LogRollback logs an automatic rollback (DROP INDEX CONCURRENTLY) triggered
// by a regression in before/after measurement.
func (al *AuditLogger) LogRollback(ctx context.Context, table, field, indexName, reason string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditRollbackIndex,
		Table:     table,
		Field:     field,
		IndexName: indexName,
		Action:    "ROLLBACK_INDEX",
		Status:    "success",
		Reason:    reason,
		Severity:  "warning",
	})
}

// LogGateVeto logs a safety-envelope gate rejecting a candidate.
func (al *AuditLogger) LogGateVeto(ctx context.Context, table, field, reason string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditGateVeto,
		Table:     table,
		Field:     field,
		Action:    "GATE_VETO",
		Status:    "skipped",
		Reason:    reason,
		Severity:  "info",
	})
}

// LogCircuitBreaker logs a circuit-breaker state transition.
func (al *AuditLogger) LogCircuitBreaker(ctx context.Context, name, fromState, toState string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditCircuitBreaker,
		Action:    "CIRCUIT_BREAKER_TRANSITION",
		Status:    "success",
		Details: map[string]interface{}{
			"name": name, "from": fromState, "to": toState,
		},
		Severity: "warning",
	})
}

// LogCanaryTransition logs a canary deployment promotion or rollback.
func (al *AuditLogger) LogCanaryTransition(ctx context.Context, indexName, table, status string, successRate float64) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditCanaryTransition,
		Table:     table,
		IndexName: indexName,
		Action:    "CANARY_TRANSITION",
		Status:    "success",
		Details: map[string]interface{}{
			"new_status":   status,
			"success_rate": successRate,
		},
		Severity: "info",
	})
}

// LogApprovalRequest logs creation of a pending approval request.
func (al *AuditLogger) LogApprovalRequest(ctx context.Context, table, field, indexName, requestID string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditApprovalRequest,
		Table:     table,
		Field:     field,
		IndexName: indexName,
		Action:    "AWAITING_APPROVAL",
		Status:    "pending",
		Details:   map[string]interface{}{"request_id": requestID},
		Severity:  "info",
	})
}

// LogConfigChange logs a configuration change applied by an operator.
func (al *AuditLogger) LogConfigChange(ctx context.Context, configKey string, before, after interface{}) {
	al.logEvent(ctx, &AuditEvent{
		EventID:   generateEventID(),
		EventType: AuditConfigChange,
		Action:    "config_change",
		Details: map[string]interface{}{
			"key": configKey, "before": before, "after": after,
		},
		Status:   "success",
		Severity: "info",
	})
}

// LogEvent appends a generic audit entry, for callers (e.g. an
// audit.Sink adapter) that don't map onto one of the dedicated Log*
// methods above.
func (al *AuditLogger) LogEvent(ctx context.Context, eventType AuditEventType, table, field, action, status, reason string, confidence float64, details map[string]interface{}, severity string) {
	al.logEvent(ctx, &AuditEvent{
		EventID:    generateEventID(),
		EventType:  eventType,
		Table:      table,
		Field:      field,
		Action:     action,
		Status:     status,
		Reason:     reason,
		Confidence: confidence,
		Details:    details,
		Severity:   severity,
	})
}

// logEvent writes an audit event to the log.
func (al *AuditLogger) logEvent(ctx context.Context, event *AuditEvent) {
	event.Timestamp = time.Now().UTC()
	event.Environment = al.environment

	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		event.RequestID = requestID
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.buffer = append(al.buffer, event)

	if len(al.buffer) >= al.bufferSize {
		al.flush()
	}
}

// flush writes buffered events to disk.
func (al *AuditLogger) flush() {
	if len(al.buffer) == 0 {
		return
	}

	for _, event := range al.buffer {
		if err := al.encoder.Encode(event); err == nil {
			al.currentSize += 300 // rough per-event size estimate
		}
	}

	al.file.Sync()
	al.buffer = al.buffer[:0]

	if al.currentSize >= al.rotateSize {
		al.rotate()
	}
}

// autoFlush periodically flushes the buffer.
func (al *AuditLogger) autoFlush() {
	for {
		select {
		case <-al.flushTicker.C:
			al.mu.Lock()
			al.flush()
			al.mu.Unlock()
		case <-al.stopChan:
			return
		}
	}
}

// rotate rotates the log file.
func (al *AuditLogger) rotate() {
	al.file.Close()

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := al.filePath + "." + timestamp
	os.Rename(al.filePath, rotatedPath)

	file, err := os.OpenFile(al.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}

	al.file = file
	al.encoder = json.NewEncoder(file)
	al.currentSize = 0
}

// Close flushes and closes the audit logger.
func (al *AuditLogger) Close() error {
	close(al.stopChan)
	al.flushTicker.Stop()

	al.mu.Lock()
	defer al.mu.Unlock()

	al.flush()
	return al.file.Close()
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	return fmt.Sprintf("audit-%d", time.Now().UnixNano())
}
