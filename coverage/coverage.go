// Package coverage implements the EXPLAIN-coverage meter (C17): an
// observability counter on how often real plans were used versus the
// row-count fallback.
package coverage

import (
	"sync/atomic"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/monitoring"
)

// Meter holds atomic counters updated from arbitrary goroutines.
type Meter struct {
	totalDecisions     int64
	explainUsed        int64
	explainSuccessful  int64
	fallbackToEstimate int64
	logger             *logging.Logger
}

func New(logger *logging.Logger) *Meter {
	return &Meter{logger: logger}
}

// RecordDecision increments total_decisions once per decision pass entry.
func (m *Meter) RecordDecision() {
	atomic.AddInt64(&m.totalDecisions, 1)
}

// RecordExplainUsed increments explain_used and, if successful, also
// explain_successful; otherwise increments fallback_to_estimate.
func (m *Meter) RecordExplainUsed(successful bool) {
	atomic.AddInt64(&m.explainUsed, 1)
	if successful {
		atomic.AddInt64(&m.explainSuccessful, 1)
	} else {
		atomic.AddInt64(&m.fallbackToEstimate, 1)
		monitoring.RecordExplainFallback()
	}
	monitoring.SetExplainCoverage(m.Coverage())
}

// RecordFallback increments fallback_to_estimate directly, for callers
// that never attempted EXPLAIN at all.
func (m *Meter) RecordFallback() {
	atomic.AddInt64(&m.fallbackToEstimate, 1)
	monitoring.RecordExplainFallback()
	monitoring.SetExplainCoverage(m.Coverage())
}

// Coverage returns explain_used / total_decisions, 0 when no decisions
// have been recorded yet.
func (m *Meter) Coverage() float64 {
	total := atomic.LoadInt64(&m.totalDecisions)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.explainUsed)) / float64(total)
}

// SuccessRate returns explain_successful / explain_used, 0 when EXPLAIN
// has never been attempted.
func (m *Meter) SuccessRate() float64 {
	used := atomic.LoadInt64(&m.explainUsed)
	if used == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.explainSuccessful)) / float64(used)
}

// WarnIfBelowMinimum logs a warning when coverage drops below minPct,
// but only once at least 10 decisions have been recorded (spec §4.17).
func (m *Meter) WarnIfBelowMinimum(minPct float64) {
	total := atomic.LoadInt64(&m.totalDecisions)
	if total < 10 {
		return
	}
	cov := m.Coverage() * 100
	if cov < minPct {
		m.logger.Warn("explain coverage below minimum",
			logging.Float64("coverage_pct", cov), logging.Float64("min_pct", minPct))
	}
}

// Snapshot is a point-in-time read of all four counters, for metrics
// export and tests.
type Snapshot struct {
	TotalDecisions     int64
	ExplainUsed        int64
	ExplainSuccessful  int64
	FallbackToEstimate int64
}

func (m *Meter) Snapshot() Snapshot {
	return Snapshot{
		TotalDecisions:     atomic.LoadInt64(&m.totalDecisions),
		ExplainUsed:        atomic.LoadInt64(&m.explainUsed),
		ExplainSuccessful:  atomic.LoadInt64(&m.explainSuccessful),
		FallbackToEstimate: atomic.LoadInt64(&m.fallbackToEstimate),
	}
}
