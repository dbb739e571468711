// Package statsquery implements the stats query component (C3):
// windowed aggregation over query_stats — field usage, query-type mix,
// and percentile durations.
package statsquery

import (
	"context"
	"sort"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
)

// FieldUsage is the derived per-(table, field) aggregate over a rolling
// window, ordered by TotalQueries descending when returned in bulk.
type FieldUsage struct {
	Table          string
	Field          string
	TotalQueries   int64
	DistinctTenants int64
	AvgDurationMs  float64
	P95Ms          float64
	P99Ms          float64
	ByKindCount    map[string]int64
}

// WorkloadClass classifies a table's read/write mix over the analysis
// window (supplemented from original_source/workload_analysis.py).
type WorkloadClass string

const (
	WorkloadReadHeavy  WorkloadClass = "read_heavy"
	WorkloadWriteHeavy WorkloadClass = "write_heavy"
	WorkloadBalanced   WorkloadClass = "balanced"
)

// Workload is the read/write ratio derived for a table over a window.
type Workload struct {
	ReadWriteRatio float64
	Class          WorkloadClass
}

// Querier runs the windowed aggregations against the pool.
type Querier struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Querier {
	return &Querier{pool: pool}
}

// FieldUsage returns per-(table,field) usage over [now-windowH, now),
// ordered by TotalQueries descending — this order defines downstream
// tie-breaking, per spec §4.3.
func (q *Querier) FieldUsage(ctx context.Context, windowH int) ([]FieldUsage, error) {
	sql := `
		SELECT table_name, field_name,
		       count(*) AS total_queries,
		       count(DISTINCT tenant_id) AS distinct_tenants,
		       avg(duration_ms) AS avg_duration_ms,
		       percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms) AS p95_ms,
		       percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms) AS p99_ms,
		       query_type, count(*) AS kind_count
		FROM query_stats
		WHERE created_at >= now() - ($1 || ' hours')::interval
		GROUP BY table_name, field_name, query_type
		ORDER BY total_queries DESC
	`
	byKey := make(map[[2]string]*FieldUsage)
	var order [][2]string

	err := q.pool.Query(ctx, sql, []interface{}{windowH}, func(r db.Row) error {
		var table, field, kind string
		var total, distinct, kindCount int64
		var avg, p95, p99 float64
		if err := r.Scan(&table, &field, &total, &distinct, &avg, &p95, &p99, &kind, &kindCount); err != nil {
			return err
		}
		key := [2]string{table, field}
		fu, ok := byKey[key]
		if !ok {
			fu = &FieldUsage{Table: table, Field: field, ByKindCount: map[string]int64{}}
			byKey[key] = fu
			order = append(order, key)
		}
		fu.TotalQueries += total
		if distinct > fu.DistinctTenants {
			fu.DistinctTenants = distinct
		}
		fu.AvgDurationMs = avg
		fu.P95Ms = p95
		fu.P99Ms = p99
		fu.ByKindCount[kind] += kindCount
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]FieldUsage, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalQueries > out[j].TotalQueries })
	return out, nil
}

// QueryStatsRow is one aggregated row for a specific (table, field).
type QueryStatsRow struct {
	QueryType    string
	Count        int64
	AvgMs        float64
	P95Ms        float64
	P99Ms        float64
}

// QueryStats aggregates per-query-type statistics for a single
// (table, field) over the window; field may be empty to match any.
func (q *Querier) QueryStats(ctx context.Context, windowH int, table, field string) ([]QueryStatsRow, error) {
	sql := `
		SELECT query_type, count(*),
		       avg(duration_ms),
		       percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms),
		       percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms)
		FROM query_stats
		WHERE table_name = $1
		  AND ($2 = '' OR field_name = $2)
		  AND created_at >= now() - ($3 || ' hours')::interval
		GROUP BY query_type
	`
	var rows []QueryStatsRow
	err := q.pool.Query(ctx, sql, []interface{}{table, field, windowH}, func(r db.Row) error {
		var row QueryStatsRow
		if err := r.Scan(&row.QueryType, &row.Count, &row.AvgMs, &row.P95Ms, &row.P99Ms); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// Workload computes the read/write ratio and class for a table over the
// configured window (original_source/workload_analysis.py).
func (q *Querier) Workload(ctx context.Context, table string, windowH int, readHeavyThreshold, writeHeavyThreshold float64) (Workload, error) {
	rows, err := q.QueryStats(ctx, windowH, table, "")
	if err != nil {
		return Workload{}, err
	}

	var reads, writes int64
	for _, r := range rows {
		switch r.QueryType {
		case "SELECT", "READ":
			reads += r.Count
		case "INSERT", "UPDATE", "DELETE", "WRITE":
			writes += r.Count
		}
	}

	total := reads + writes
	if total == 0 {
		return Workload{ReadWriteRatio: 0, Class: WorkloadBalanced}, nil
	}

	ratio := float64(reads) / float64(total)
	class := WorkloadBalanced
	if ratio >= readHeavyThreshold {
		class = WorkloadReadHeavy
	} else if ratio <= writeHeavyThreshold {
		class = WorkloadWriteHeavy
	}
	return Workload{ReadWriteRatio: ratio, Class: class}, nil
}

// windowBounds returns the half-open [now-window, now) interval.
func windowBounds(windowH int) (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-time.Duration(windowH) * time.Hour), now
}
