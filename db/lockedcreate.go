package db

import (
	"context"
	"fmt"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// CPUThrottle is consulted immediately before issuing DDL so that the
// lock-manager wrapper respects the same flag as the safety envelope
// (spec §4.13 gate 7: "the lock-manager wrapper respects the same flag").
type CPUThrottle interface {
	Throttle(ctx context.Context) (throttle bool, reason string, waitS float64)
}

// LockedIndexCreate issues CREATE/DROP INDEX CONCURRENTLY against the
// pool, realizing the LockedIndexCreate(table, field, sql, timeout,
// respect_cpu) contract from spec §6.
type LockedIndexCreate struct {
	pool    *Pool
	cpu     CPUThrottle
	logger  *logging.Logger
}

// NewLockedIndexCreate builds a lock-managed DDL issuer. cpu may be nil,
// in which case CPU throttling is not enforced at this layer (the safety
// envelope's own gate still runs upstream).
func NewLockedIndexCreate(pool *Pool, cpu CPUThrottle, logger *logging.Logger) *LockedIndexCreate {
	return &LockedIndexCreate{pool: pool, cpu: cpu, logger: logger}
}

// Create executes sql, a complete `CREATE INDEX CONCURRENTLY ...` statement,
// bounded by timeout, honoring CPU throttle when respectCPU is set.
func (l *LockedIndexCreate) Create(ctx context.Context, table, field, sql string, timeout time.Duration, respectCPU bool) (bool, error) {
	if respectCPU && l.cpu != nil {
		if throttle, reason, waitS := l.cpu.Throttle(ctx); throttle {
			l.logger.Warn("index create deferred by cpu throttle",
				logging.Table(table), logging.FieldName(field),
				logging.String("reason", reason), logging.Float64("wait_s", waitS))
			return false, fmt.Errorf("cpu_throttled: %s", reason)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.pool.Exec(cctx, sql); err != nil {
		l.logger.Error("create index failed", err, logging.Table(table), logging.FieldName(field))
		return false, fmt.Errorf("creation_failed: %w", err)
	}

	l.logger.Info("index created", logging.Table(table), logging.FieldName(field))
	return true, nil
}

// Drop runs `DROP INDEX CONCURRENTLY IF EXISTS <name>`. It is idempotent:
// a second call against an already-dropped name succeeds with no error,
// satisfying the rollback-idempotence property in spec §8.
func (l *LockedIndexCreate) Drop(ctx context.Context, indexName string, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sql := fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", indexName)
	if err := l.pool.Exec(cctx, sql); err != nil {
		l.logger.Error("drop index failed", err, logging.IndexName(indexName))
		return fmt.Errorf("rollback_failed: %w", err)
	}
	return nil
}
