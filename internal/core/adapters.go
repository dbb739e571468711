package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
	"github.com/eyeinthesky6/indexpilot-sub002/statsbuffer"
)

// pgCatalogChecker realizes scheduler.CatalogChecker directly against
// pg_index/pg_attribute, grounded on the same catalog join fkgap uses.
type pgCatalogChecker struct {
	pool *db.Pool
}

func (c *pgCatalogChecker) IndexExists(ctx context.Context, table, field string) (bool, error) {
	sql := `
		SELECT EXISTS (
		    SELECT 1
		    FROM pg_index i
		    JOIN pg_class t ON t.oid = i.indrelid
		    JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(i.indkey)
		    WHERE t.relname = $1 AND a.attname = $2
		)`
	row := c.pool.QueryRow(ctx, sql, table, field)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("index exists: %w", err)
	}
	return exists, nil
}

// pgTableSizer realizes scheduler.TableSizer over pg_class and the
// pg_total_relation_size/pg_relation_size built-ins.
type pgTableSizer struct {
	pool *db.Pool
}

func (s *pgTableSizer) TableSize(ctx context.Context, table string) (rowCount, tableBytes, indexBytes int64, err error) {
	sql := `
		SELECT
		    COALESCE(c.reltuples, 0)::bigint,
		    pg_relation_size(c.oid),
		    pg_total_relation_size(c.oid) - pg_relation_size(c.oid)
		FROM pg_class c
		WHERE c.relname = $1`
	row := s.pool.QueryRow(ctx, sql, table)
	if scanErr := row.Scan(&rowCount, &tableBytes, &indexBytes); scanErr != nil {
		return 0, 0, 0, fmt.Errorf("table size: %w", scanErr)
	}
	return rowCount, tableBytes, indexBytes, nil
}

// pgStatsInserter realizes statsbuffer.Inserter, batching every flushed
// observation into one multi-row INSERT against query_stats.
type pgStatsInserter struct {
	pool *db.Pool
}

func (p *pgStatsInserter) InsertQueryStats(ctx context.Context, batch []statsbuffer.QueryObservation) error {
	if len(batch) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO query_stats (tenant_id, table_name, field_name, query_type, duration_ms, created_at) VALUES`)
	args := make([]interface{}, 0, len(batch)*6)
	for i, obs := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)

		var tenantID interface{}
		if obs.TenantID != nil {
			tenantID = *obs.TenantID
		}
		var field interface{}
		if obs.Field != nil {
			field = *obs.Field
		}
		args = append(args, tenantID, obs.Table, field, string(obs.Kind), obs.DurationMs, obs.At)
	}

	return p.pool.Exec(ctx, b.String(), args...)
}

// pgCatalogLoader realizes validation.CatalogLoader against the
// genome_catalog metadata table (spec §7's identifier whitelist source).
type pgCatalogLoader struct {
	pool *db.Pool
}

func (l *pgCatalogLoader) LoadCatalog(ctx context.Context) (map[string]map[string]struct{}, error) {
	catalog := make(map[string]map[string]struct{})
	err := l.pool.Query(ctx, `SELECT table_name, field_name FROM genome_catalog`, nil, func(row db.Row) error {
		var table, field string
		if err := row.Scan(&table, &field); err != nil {
			return err
		}
		if catalog[table] == nil {
			catalog[table] = make(map[string]struct{})
		}
		catalog[table][field] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// pgUsageTracker realizes pattern.UsageTracker, recording every advisor
// verdict into algorithm_usage as a pure append-only sink (spec §9).
type pgUsageTracker struct {
	pool *db.Pool
}

func (t *pgUsageTracker) RecordAlgorithmUsage(ctx context.Context, table, field, algorithm string, recommendation interface{}, usedInDecision bool) error {
	payload, err := json.Marshal(recommendation)
	if err != nil {
		payload = []byte("{}")
	}
	sql := `
		INSERT INTO algorithm_usage (table_name, field_name, algorithm_name, recommendation_json, used_in_decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	return t.pool.Exec(ctx, sql, table, field, algorithm, payload, usedInDecision, time.Now().UTC())
}
