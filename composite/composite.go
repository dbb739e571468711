// Package composite implements the composite opportunity detector
// (C12): a top-K co-usage scan plus EXPLAIN verification on sample
// values.
package composite

import (
	"context"
	"fmt"
	"strings"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
)

// Candidate is an emitted composite-index opportunity for a pair of
// co-used fields in one table.
type Candidate struct {
	Table      string
	Fields     []string
	TotalCost  float64
}

// CoUsageRanker ranks a table's fields by query count over the window.
type CoUsageRanker interface {
	TopFields(ctx context.Context, table string, k int, windowH int) ([]string, error)
}

// PlanFast runs EXPLAIN (no execution) on a probe query and returns the
// plan's seq-scan flag and total cost.
type PlanFast interface {
	ExplainFastCost(ctx context.Context, q string) (hasSeqScan bool, totalCost float64, err error)
}

// CortexReorder is the Cortex-advisor reordering hook (spec §4.12): it
// takes the raw candidate list and returns it reordered/augmented using
// column-correlation signals. A nil func is a no-op pass-through.
type CortexReorder func(candidates []Candidate) []Candidate

// Detector runs the top-K co-usage scan and sample-value EXPLAIN probe.
type Detector struct {
	pool        *db.Pool
	ranker      CoUsageRanker
	highCost    float64
	reorder     CortexReorder
}

func New(pool *db.Pool, ranker CoUsageRanker, highCostThreshold float64, reorder CortexReorder) *Detector {
	return &Detector{pool: pool, ranker: ranker, highCost: highCostThreshold, reorder: reorder}
}

// DetectOpportunities finds composite-index candidates for table.
func (d *Detector) DetectOpportunities(ctx context.Context, table string, k int, windowH int) ([]Candidate, error) {
	fields, err := d.ranker.TopFields(ctx, table, k, windowH)
	if err != nil || len(fields) < 2 {
		return nil, err
	}

	var candidates []Candidate
	for i := 0; i < len(fields); i++ {
		for j := i + 1; j < len(fields); j++ {
			pair := []string{fields[i], fields[j]}
			sampleValues, err := d.sampleRow(ctx, table, pair)
			if err != nil || sampleValues == nil {
				continue
			}

			probe := buildProbeQuery(table, pair, sampleValues)
			hasSeqScan, totalCost, err := d.explainFast(ctx, probe)
			if err != nil {
				continue
			}
			if hasSeqScan && totalCost > d.highCost {
				candidates = append(candidates, Candidate{Table: table, Fields: pair, TotalCost: totalCost})
			}
		}
	}

	if d.reorder != nil {
		candidates = d.reorder(candidates)
	}
	return candidates, nil
}

func (d *Detector) sampleRow(ctx context.Context, table string, fields []string) (map[string]interface{}, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL LIMIT 1",
		strings.Join(fields, ", "), table, fields[0], fields[1])

	values := make(map[string]interface{})
	found := false
	err := d.pool.Query(ctx, sql, nil, func(r db.Row) error {
		scanned := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return err
		}
		for i, f := range fields {
			values[f] = scanned[i]
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return values, nil
}

func buildProbeQuery(table string, fields []string, values map[string]interface{}) string {
	var clauses []string
	for _, f := range fields {
		clauses = append(clauses, fmt.Sprintf("%s = %v", f, quoteIfString(values[f])))
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", table, strings.Join(clauses, " AND "))
}

func quoteIfString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return fmt.Sprint(t)
	}
}

func (d *Detector) explainFast(ctx context.Context, q string) (bool, float64, error) {
	res, err := d.pool.ExplainFast(ctx, q)
	if err != nil {
		return false, 0, err
	}
	hasSeqScan := res.Plan.NodeType == "Seq Scan"
	var walk func(n *db.PlanNode)
	walk = func(n *db.PlanNode) {
		if n == nil {
			return
		}
		if n.NodeType == "Seq Scan" {
			hasSeqScan = true
		}
		for _, c := range n.Plans {
			walk(c)
		}
	}
	walk(&res.Plan)
	return hasSeqScan, res.Plan.TotalCost, nil
}

// sqlCoUsageRanker is the default CoUsageRanker over query_stats.
type sqlCoUsageRanker struct {
	pool *db.Pool
}

func NewSQLCoUsageRanker(pool *db.Pool) CoUsageRanker {
	return &sqlCoUsageRanker{pool: pool}
}

func (r *sqlCoUsageRanker) TopFields(ctx context.Context, table string, k int, windowH int) ([]string, error) {
	sql := `
		SELECT field_name, count(*) AS c FROM query_stats
		WHERE table_name = $1 AND field_name IS NOT NULL
		  AND created_at >= now() - ($2 || ' hours')::interval
		GROUP BY field_name ORDER BY c DESC LIMIT $3
	`
	var fields []string
	err := r.pool.Query(ctx, sql, []interface{}{table, windowH, k}, func(row db.Row) error {
		var f string
		var c int64
		if err := row.Scan(&f, &c); err != nil {
			return err
		}
		fields = append(fields, f)
		return nil
	})
	return fields, err
}
