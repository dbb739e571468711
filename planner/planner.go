// Package planner implements the plan analyzer (C5): EXPLAIN (+ optional
// ANALYZE) normalized into a PlanSummary, a measurement loop, and a
// before/after comparator.
package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/eyeinthesky6/indexpilot-sub002/coverage"
	"github.com/eyeinthesky6/indexpilot-sub002/db"
)

// PlanSummary is the normalized result of walking an EXPLAIN plan tree.
type PlanSummary struct {
	TotalCost      float64
	ActualTimeMs   float64
	NodeType       string
	HasSeqScan     bool
	HasIndexScan   bool
	PlanningTimeMs float64
}

// Timing is the result of a warmed measurement loop.
type Timing struct {
	MedianMs float64
	AvgMs    float64
	MinMs    float64
	MaxMs    float64
	P95Ms    float64
}

// Comparison is the before/after verdict used by the scheduler's
// rollback rule.
type Comparison struct {
	CostReductionPct    float64
	TimeReductionPct    float64
	SeqScanEliminated   bool
	IndexScanIntroduced bool
	Significant         bool
}

// Analyzer runs EXPLAIN/measure calls against the pool, incrementing the
// EXPLAIN-coverage meter on every invocation.
type Analyzer struct {
	pool    *db.Pool
	meter   *coverage.Meter
}

func New(pool *db.Pool, meter *coverage.Meter) *Analyzer {
	return &Analyzer{pool: pool, meter: meter}
}

// ExplainFast runs EXPLAIN with no execution.
func (a *Analyzer) ExplainFast(ctx context.Context, q string, args ...interface{}) (*PlanSummary, error) {
	res, err := a.pool.ExplainFast(ctx, q, args...)
	a.meter.RecordExplainUsed(err == nil)
	if err != nil {
		return nil, err
	}
	return summarize(res), nil
}

// ExplainAnalyze runs EXPLAIN with actual execution.
func (a *Analyzer) ExplainAnalyze(ctx context.Context, q string, args ...interface{}) (*PlanSummary, error) {
	res, err := a.pool.ExplainAnalyze(ctx, q, args...)
	a.meter.RecordExplainUsed(err == nil)
	if err != nil {
		return nil, err
	}
	return summarize(res), nil
}

// summarize walks the plan tree recursively: HasSeqScan is true iff any
// node is "Seq Scan"; HasIndexScan is true iff any node type contains
// "Index" or equals "Bitmap Heap Scan".
func summarize(res *db.ExplainResult) *PlanSummary {
	var hasSeq, hasIdx bool
	var walk func(n *db.PlanNode)
	walk = func(n *db.PlanNode) {
		if n == nil {
			return
		}
		if n.NodeType == "Seq Scan" {
			hasSeq = true
		}
		if strings.Contains(n.NodeType, "Index") || n.NodeType == "Bitmap Heap Scan" {
			hasIdx = true
		}
		for _, c := range n.Plans {
			walk(c)
		}
	}
	walk(&res.Plan)

	return &PlanSummary{
		TotalCost:      res.Plan.TotalCost,
		ActualTimeMs:   res.Plan.ActualTime,
		NodeType:       res.Plan.NodeType,
		HasSeqScan:     hasSeq,
		HasIndexScan:   hasIdx,
		PlanningTimeMs: res.PlanningTime,
	}
}

// Measure executes n warmed runs of q and returns summary timing stats.
func (a *Analyzer) Measure(ctx context.Context, q string, n int, args ...interface{}) (Timing, error) {
	durations, err := a.pool.MeasureTiming(ctx, q, n, args...)
	if err != nil || len(durations) == 0 {
		return Timing{}, err
	}

	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)

	var sum, min, max float64
	min = sorted[0]
	max = sorted[len(sorted)-1]
	for _, d := range sorted {
		sum += d
	}

	return Timing{
		MedianMs: percentile(sorted, 0.5),
		AvgMs:    sum / float64(len(sorted)),
		MinMs:    min,
		MaxMs:    max,
		P95Ms:    percentile(sorted, 0.95),
	}, nil
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// CompareBeforeAfter computes the before/after comparison used by the
// scheduler's effective-index predicate and rollback rule.
func CompareBeforeAfter(before, after *PlanSummary) Comparison {
	if before == nil || after == nil || before.TotalCost == 0 {
		return Comparison{}
	}

	costReduction := (before.TotalCost - after.TotalCost) / before.TotalCost * 100

	var timeReduction float64
	if before.ActualTimeMs > 0 {
		timeReduction = (before.ActualTimeMs - after.ActualTimeMs) / before.ActualTimeMs * 100
	}

	cmp := Comparison{
		CostReductionPct:    costReduction,
		TimeReductionPct:    timeReduction,
		SeqScanEliminated:   before.HasSeqScan && !after.HasSeqScan,
		IndexScanIntroduced: !before.HasIndexScan && after.HasIndexScan,
	}
	maxPct := costReduction
	if timeReduction > maxPct {
		maxPct = timeReduction
	}
	cmp.Significant = maxPct > 20
	return cmp
}
