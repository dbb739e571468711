// Package db realizes the external DBExec / LockedIndexCreate contracts
// against a real PostgreSQL connection pool.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

// Row mirrors the subset of pgx.Row/Rows scanning the core needs without
// leaking pgx types into every package that touches the database.
type Row interface {
	Scan(dest ...interface{}) error
}

// Pool wraps a pgxpool.Pool and is the concrete realization of the
// DBExec interface named in spec §6: exec, query, explain_fast,
// explain_analyze, measure_timing.
type Pool struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// Open connects to Postgres using connStr and returns a ready Pool.
func Open(ctx context.Context, connStr string, logger *logging.Logger) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Pool{pool: pool, logger: logger}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// Exec runs a statement that returns no rows (DDL, batched inserts).
func (p *Pool) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

// Query runs sql and invokes fn once per row, with the scanned Row handed
// to the caller. Single-row reads go through QueryRow instead.
func (p *Pool) Query(ctx context.Context, sql string, args []interface{}, fn func(Row) error) error {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryRow runs sql expected to return at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...interface{}) Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// PlanNode is a recursive node in a Postgres EXPLAIN (FORMAT JSON) plan.
type PlanNode struct {
	NodeType     string      `json:"Node Type"`
	TotalCost    float64     `json:"Total Cost"`
	ActualTime   float64     `json:"Actual Total Time"`
	PlanRows     float64     `json:"Plan Rows"`
	Plans        []*PlanNode `json:"Plans"`
}

// ExplainResult is the raw decoded output of an EXPLAIN (FORMAT JSON) call.
type ExplainResult struct {
	Plan          PlanNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time"`
	ExecutionTime float64  `json:"Execution Time"`
}

// ExplainFast runs `EXPLAIN (FORMAT JSON)` — no execution, cheap.
func (p *Pool) ExplainFast(ctx context.Context, q string, args ...interface{}) (*ExplainResult, error) {
	return p.explain(ctx, "EXPLAIN (FORMAT JSON) "+q, args)
}

// ExplainAnalyze runs `EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON)` — executes
// the query and is therefore expensive; callers must be prepared to pay
// its cost (spec §4.5).
func (p *Pool) ExplainAnalyze(ctx context.Context, q string, args ...interface{}) (*ExplainResult, error) {
	return p.explain(ctx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+q, args)
}

func (p *Pool) explain(ctx context.Context, q string, args []interface{}) (*ExplainResult, error) {
	var raw []byte
	row := p.pool.QueryRow(ctx, q, args...)
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	var results []ExplainResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("empty explain result")
	}
	return &results[0], nil
}

// MeasureTiming executes q n times and returns each run's wall-clock
// duration in milliseconds, satisfying DBExec.measure_timing.
func (p *Pool) MeasureTiming(ctx context.Context, q string, n int, args ...interface{}) ([]float64, error) {
	durations := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		rows, err := p.pool.Query(ctx, q, args...)
		if err != nil {
			return durations, err
		}
		for rows.Next() {
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return durations, err
		}
		durations = append(durations, float64(time.Since(start).Microseconds())/1000.0)
	}
	return durations, nil
}

// IsNoRows reports whether err is pgx's "no rows" sentinel, letting
// callers treat an empty result as a normal (not erroneous) outcome.
func IsNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
