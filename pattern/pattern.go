// Package pattern implements the pattern detector (C6): sustained vs
// spike detection over N days/hours, and multi-dim/temporal pattern
// inference delegating to the advisors package.
package pattern

import (
	"context"
	"fmt"

	"github.com/eyeinthesky6/indexpilot-sub002/db"
)

// SustainedPattern mirrors the data-model record of the same name.
type SustainedPattern struct {
	IsSustained          bool
	IsSpike              bool
	PeriodsAnalyzed      int
	PeriodsAboveThreshold int
	AvgPerPeriod         float64
	SpikeRatio           float64
}

// Config holds the pattern-detection thresholds from
// config.PatternDetectionConfig.
type Config struct {
	MinDaysSustained     int
	MinQueriesPerDay     int
	SpikeDetectionWindow int
	SpikeThreshold       float64
}

// PeriodCounter returns per-period query counts for (table, field) over
// the last n periods — hours if windowH ≤ 24, otherwise days.
type PeriodCounter interface {
	CountsByPeriod(ctx context.Context, table, field string, periods int, hourly bool) ([]int64, error)
}

// Usage tracker records advisor verdicts into algorithm_usage — the
// "tracking is a pure sink" design note (spec §9): advisors never write
// here themselves.
type UsageTracker interface {
	RecordAlgorithmUsage(ctx context.Context, table, field, algorithm string, recommendation interface{}, usedInDecision bool) error
}

// Detector runs sustained/spike/multi-dim/temporal detection.
type Detector struct {
	counts  PeriodCounter
	tracker UsageTracker
	cfg     Config
}

func New(counts PeriodCounter, tracker UsageTracker, cfg Config) *Detector {
	return &Detector{counts: counts, tracker: tracker, cfg: cfg}
}

// DetectSustained implements spec §4.6: hourly mode when windowH ≤ 24,
// daily mode otherwise. Both modes apply the same MinQueriesPerDay and
// MinDaysSustained thresholds, counted per hour in hourly mode and per
// day in daily mode.
func (d *Detector) DetectSustained(ctx context.Context, table, field string, days int, windowH int) (SustainedPattern, error) {
	hourly := windowH > 0 && windowH <= 24
	periods := days
	minQueries := d.cfg.MinQueriesPerDay
	if hourly {
		periods = windowH
	}

	counts, err := d.counts.CountsByPeriod(ctx, table, field, periods, hourly)
	if err != nil || len(counts) == 0 {
		return SustainedPattern{}, err
	}

	var sum float64
	var max float64
	above := 0
	for _, c := range counts {
		f := float64(c)
		sum += f
		if f > max {
			max = f
		}
		if c >= int64(minQueries) {
			above++
		}
	}
	avg := sum / float64(len(counts))

	spikeRatio := 0.0
	if avg > 0 {
		spikeRatio = max / avg
	}
	isSpike := spikeRatio > d.cfg.SpikeThreshold

	sp := SustainedPattern{
		PeriodsAnalyzed:       len(counts),
		PeriodsAboveThreshold: above,
		AvgPerPeriod:          avg,
		SpikeRatio:            spikeRatio,
		IsSpike:               isSpike,
	}
	sp.IsSustained = above >= d.cfg.MinDaysSustained && !isSpike && avg >= float64(minQueries)
	return sp, nil
}

// ShouldCreateFromPattern applies the gates named in spec §4.6.
func (d *Detector) ShouldCreateFromPattern(ctx context.Context, totalQ int64, windowH int, sp SustainedPattern) (bool, string) {
	if totalQ == 0 {
		return false, "no_queries"
	}
	if sp.PeriodsAnalyzed == 0 {
		return false, "insufficient_queries"
	}
	if sp.IsSpike {
		return false, "spike_detected"
	}
	if !sp.IsSustained {
		return false, "pattern_not_sustained"
	}
	return true, ""
}

// MultiDimResult is the pattern+advisor verdict for a multi-field
// candidate, delegating the actual scoring to the advisors package via
// the injected scorer.
type MultiDimResult struct {
	Advisor string
	Used    bool
	Reason  string
}

// MultiDimScorer is the advisors entry point pattern delegates to — kept
// as an interface so this package never imports advisors directly,
// avoiding the cyclic-import fault flagged in spec §9.
type MultiDimScorer func(fieldCount int) (advisor string, shouldUse bool, reason string)

// DetectMultiDim delegates scoring to scorer and records the verdict.
func (d *Detector) DetectMultiDim(ctx context.Context, table string, fields []string, scorer MultiDimScorer) (MultiDimResult, error) {
	advisor, used, reason := scorer(len(fields))
	res := MultiDimResult{Advisor: advisor, Used: used, Reason: reason}

	if d.tracker != nil {
		field := ""
		if len(fields) > 0 {
			field = fields[0]
		}
		_ = d.tracker.RecordAlgorithmUsage(ctx, table, field, advisor,
			map[string]interface{}{"field_count": len(fields), "reason": reason}, used)
	}
	return res, nil
}

// TemporalScorer mirrors MultiDimScorer for temporal-field candidates.
type TemporalScorer func(fieldType string) (advisor string, shouldUse bool, reason string)

// DetectTemporal delegates scoring to scorer and records the verdict.
func (d *Detector) DetectTemporal(ctx context.Context, table, field, fieldType string, scorer TemporalScorer) (MultiDimResult, error) {
	advisor, used, reason := scorer(fieldType)
	res := MultiDimResult{Advisor: advisor, Used: used, Reason: reason}

	if d.tracker != nil {
		_ = d.tracker.RecordAlgorithmUsage(ctx, table, field, advisor,
			map[string]interface{}{"field_type": fieldType, "reason": reason}, used)
	}
	return res, nil
}

// sqlPeriodCounter is the default PeriodCounter realization over query_stats.
type sqlPeriodCounter struct {
	pool *db.Pool
}

func NewSQLPeriodCounter(pool *db.Pool) PeriodCounter {
	return &sqlPeriodCounter{pool: pool}
}

func (c *sqlPeriodCounter) CountsByPeriod(ctx context.Context, table, field string, periods int, hourly bool) ([]int64, error) {
	bucket := "day"
	if hourly {
		bucket = "hour"
	}
	sql := fmt.Sprintf(`
		SELECT count(*) FROM query_stats
		WHERE table_name = $1 AND ($2 = '' OR field_name = $2)
		  AND created_at >= now() - ($3 || ' %ss')::interval
		GROUP BY date_trunc('%s', created_at)
		ORDER BY date_trunc('%s', created_at)
	`, bucket, bucket, bucket)

	var counts []int64
	err := c.pool.Query(ctx, sql, []interface{}{table, field, periods}, func(r db.Row) error {
		var n int64
		if err := r.Scan(&n); err != nil {
			return err
		}
		counts = append(counts, n)
		return nil
	})
	return counts, err
}
