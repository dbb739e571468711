// Package audit implements the audit emitter (C16): a Sink interface
// with a logging-backed and a Postgres-backed implementation. Events
// are append-only; the sink is never queried by the core.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// Event is the structured record emitted for every decision (applied or
// advisory), rollback, and gate veto (spec §4.16).
type Event struct {
	Action   string
	Table    string
	Field    string
	Details  map[string]interface{}
	Severity string // info | warning | critical
	At       time.Time
}

// Sink delivers events to an external store.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// LogSink writes events through the structured logger — the default,
// always-available sink.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	fields := []logging.Field{
		logging.Table(e.Table), logging.FieldName(e.Field),
		logging.String("action", e.Action),
	}
	switch e.Severity {
	case "critical", "warning":
		s.logger.Warn("audit event", fields...)
	default:
		s.logger.Info("audit event", fields...)
	}
	return nil
}

// PostgresSink writes events to the mutation_log table.
type PostgresSink struct {
	pool *db.Pool
}

func NewPostgresSink(pool *db.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Emit(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		details = []byte("{}")
	}
	sql := `
		INSERT INTO mutation_log (event_id, event_type, table_name, field_name, action, status, severity, details, created_at)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $1, 'success', $4, $5, $6)
	`
	return s.pool.Exec(ctx, sql, e.Action, e.Table, e.Field, e.Severity, details, e.At)
}

// JSONLSink adapts a logging.AuditLogger — an append-only, size-rotated
// local JSONL audit trail — to Sink, giving the audit trail durable
// on-disk persistence independent of the Postgres sink.
type JSONLSink struct {
	al *logging.AuditLogger
}

func NewJSONLSink(al *logging.AuditLogger) *JSONLSink {
	return &JSONLSink{al: al}
}

func (s *JSONLSink) Emit(ctx context.Context, e Event) error {
	s.al.LogEvent(ctx, logging.AuditEventType(e.Action), e.Table, e.Field, e.Action, "success", "", 0, e.Details, e.Severity)
	return nil
}

// MultiSink fans an event out to every configured sink, continuing past
// individual sink failures (audit delivery is best-effort, like the
// rest of the core's transient-error policy).
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, e Event) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
