// Package scheduler implements the scheduler/applier (C15): drives a
// full decision pass or a batched schedule, running the per-candidate
// algorithm of spec §4.15.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/advisors"
	"github.com/eyeinthesky6/indexpilot-sub002/audit"
	"github.com/eyeinthesky6/indexpilot-sub002/costengine"
	"github.com/eyeinthesky6/indexpilot-sub002/coverage"
	"github.com/eyeinthesky6/indexpilot-sub002/db"
	"github.com/eyeinthesky6/indexpilot-sub002/fuser"
	"github.com/eyeinthesky6/indexpilot-sub002/indextype"
	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/monitoring"
	"github.com/eyeinthesky6/indexpilot-sub002/pattern"
	"github.com/eyeinthesky6/indexpilot-sub002/planner"
	"github.com/eyeinthesky6/indexpilot-sub002/probe"
	"github.com/eyeinthesky6/indexpilot-sub002/safety"
	"github.com/eyeinthesky6/indexpilot-sub002/statsquery"
	"github.com/eyeinthesky6/indexpilot-sub002/threshold"
	"github.com/eyeinthesky6/indexpilot-sub002/validation"
)

// Mode is apply or advisory.
type Mode string

const (
	ModeApply    Mode = "apply"
	ModeAdvisory Mode = "advisory"
)

// CatalogChecker reports whether an index on (table, field) already exists.
type CatalogChecker interface {
	IndexExists(ctx context.Context, table, field string) (bool, error)
}

// TableSizer fetches current table size info.
type TableSizer interface {
	TableSize(ctx context.Context, table string) (rowCount, tableBytes, indexBytes int64, err error)
}

// Driver composes every component into the per-candidate and batch
// algorithms of spec §4.15.
type Driver struct {
	Validator   *validation.Validator
	StatsQ      *statsquery.Querier
	Probe       *probe.Probe
	Planner     *planner.Analyzer
	Pattern     *pattern.Detector
	CostCfg     costengine.Config
	AdvisorCfg  map[string]advisors.AdvisorConfig
	Fuser       *fuser.Fuser
	Safety      *safety.Envelope
	Thresholds  *threshold.Store
	Audit       audit.Sink
	Meter       *coverage.Meter
	Creator     *db.LockedIndexCreate
	Catalog     CatalogChecker
	Sizer       TableSizer
	Logger      *logging.Logger
	IndexCounts *safety.IndexCountGuard

	WindowHours         int
	QueriesOverHorizon  func(fu statsquery.FieldUsage) int64
	AutoRollbackEnabled bool
	CanaryEnabled       bool
	CanaryDefaultPct    float64
	CanarySuccessThresh float64
	CanaryMinSamples    int
	CreateTimeout       time.Duration
}

// PassResult summarizes one RunPass invocation.
type PassResult struct {
	Created    []string
	RolledBack []string
	Skipped    map[string]string // candidate key -> reason
}

// RunPass runs one full decision pass in mode over every field-usage
// candidate, descending query-count order (spec §5 ordering rule).
func (d *Driver) RunPass(ctx context.Context, mode Mode) (PassResult, error) {
	result := PassResult{Skipped: make(map[string]string)}

	usages, err := d.StatsQ.FieldUsage(ctx, d.WindowHours)
	if err != nil {
		return result, fmt.Errorf("field usage: %w", err)
	}

	for _, fu := range usages {
		key := fu.Table + "." + fu.Field
		d.Meter.RecordDecision()

		dec, reason, err := d.processCandidate(ctx, fu, mode)
		if err != nil {
			result.Skipped[key] = "error: " + shortErr(err)
			continue
		}
		if reason != "" {
			result.Skipped[key] = reason
			continue
		}
		if dec.Create {
			result.Created = append(result.Created, dec.IndexName)
		}
	}

	return result, nil
}

// BatchConfig bounds a scheduled batch run (spec §4.15 batch-mode
// paragraph): confine work to preferred hours, cap per-hour creations,
// and pace successive DDL statements.
type BatchConfig struct {
	PreferredStartHour int
	PreferredEndHour   int
	MaxPerHour         int
	InterCreatePause   time.Duration
	InterBatchPause    time.Duration
	MaxPerBatch        int
	Clock              func() time.Time
}

func (b BatchConfig) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

func (b BatchConfig) inWindow() bool {
	h := b.now().Hour()
	if b.PreferredStartHour <= b.PreferredEndHour {
		return h >= b.PreferredStartHour && h < b.PreferredEndHour
	}
	return h >= b.PreferredStartHour || h < b.PreferredEndHour
}

// RunBatch drives repeated RunPass calls confined to the preferred
// window, pausing InterBatchPause between passes and capping total
// creations at MaxPerBatch across the run.
func (d *Driver) RunBatch(ctx context.Context, mode Mode, cfg BatchConfig) (PassResult, error) {
	total := PassResult{Skipped: make(map[string]string)}
	perHour := make(map[int]int)

	for len(total.Created) < cfg.MaxPerBatch {
		if !cfg.inWindow() {
			break
		}
		hour := cfg.now().Hour()
		if perHour[hour] >= cfg.MaxPerHour {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(cfg.InterBatchPause):
			}
			continue
		}

		res, err := d.RunPass(ctx, mode)
		if err != nil {
			return total, err
		}

		for _, name := range res.Created {
			total.Created = append(total.Created, name)
			perHour[hour]++
			if len(total.Created) >= cfg.MaxPerBatch {
				break
			}
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(cfg.InterCreatePause):
			}
		}
		for k, v := range res.Skipped {
			total.Skipped[k] = v
		}
		total.RolledBack = append(total.RolledBack, res.RolledBack...)

		if len(res.Created) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(cfg.InterBatchPause):
		}
	}

	return total, nil
}

// ProcessOne runs the eleven-step per-candidate algorithm for a single
// field-usage record, outside the descending-query-count RunPass loop.
// Used by the foreign-key gap scan (C11) to fold synthetic-weight
// candidates into the same decision path.
func (d *Driver) ProcessOne(ctx context.Context, fu statsquery.FieldUsage, mode Mode) (fuser.Decision, string, error) {
	return d.processCandidate(ctx, fu, mode)
}

// processCandidate implements the eleven-step per-candidate algorithm.
func (d *Driver) processCandidate(ctx context.Context, fu statsquery.FieldUsage, mode Mode) (fuser.Decision, string, error) {
	// Step 1: validate names.
	table, err := d.Validator.ValidateTable(fu.Table)
	if err != nil {
		monitoring.RecordSkipped("validation_failed")
		return fuser.Decision{}, "validation_failed", nil
	}
	field, err := d.Validator.ValidateField(fu.Field, table)
	if err != nil {
		monitoring.RecordSkipped("validation_failed")
		return fuser.Decision{}, "validation_failed", nil
	}

	// Step 2: skip if an index already covers the field.
	if d.Catalog != nil {
		exists, _ := d.Catalog.IndexExists(ctx, table, field)
		if exists {
			monitoring.RecordSkipped("already_exists")
			return fuser.Decision{}, "already_exists", nil
		}
	}

	// Step 3: safety pre-create gates, run in the spec §4.13 order
	// (circuit breaker, canary, rate limiter, maintenance window,
	// storage budget, write guard) + pattern gate.
	rows, tableBytes, indexBytes, _ := d.sizeInfo(ctx, table)
	sizeClass := string(costengine.ClassifySize(rows, d.CostCfg))
	storageMB := safety.EstimateIndexSizeMB(tableBytes, rows)

	if d.Safety != nil {
		gc := safety.GateCandidate{Table: table, SizeClass: sizeClass, Mode: string(mode), StorageMB: storageMB}
		if ok, reason := d.Safety.CheckPreCreate(ctx, gc); !ok {
			monitoring.RecordSkipped(reason)
			return fuser.Decision{}, reason, nil
		}
	}

	sp, _ := d.Pattern.DetectSustained(ctx, table, field, 7, d.WindowHours)
	ok, reason := d.Pattern.ShouldCreateFromPattern(ctx, fu.TotalQueries, d.WindowHours, sp)
	patternGate := fuser.PatternGate{Pass: ok, Reason: reason}

	// Step 4: size class query-volume/overhead gate happens inside the
	// cost engine's size gate below (part of step 6's fusion).

	// Step 5: selectivity, patterns, advisors.
	selectivity, _ := d.Probe.Selectivity(ctx, table, field, false)
	nullRatio, _ := d.Probe.NullRatio(ctx, table, field)

	explainAvailable := d.CostCfg.MinPlanCostForIndex > 0
	plan := costengine.PlanCost{Available: false}
	var planSummary *planner.PlanSummary
	sampleQuery := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field)
	if explainAvailable {
		ps, err := d.Planner.ExplainFast(ctx, sampleQuery, sampleValue(field))
		if err == nil {
			planSummary = ps
			plan = costengine.PlanCost{Available: true, Cost: ps.TotalCost, HasSeqScan: ps.HasSeqScan, ActualTimeMs: ps.ActualTimeMs}
		}
	} else {
		d.Meter.RecordFallback()
	}
	// Captured before the index is created so it is an actual "before"
	// baseline for the rollback predicate's improvement_pct (spec §4.15
	// step 10 / §8 scenario 5).
	beforeTiming, _ := d.Planner.Measure(ctx, sampleQuery, 5, sampleValue(field))

	kind, _ := indextype.SelectType(inferFieldType(field), !hasRangePattern(sp), indextype.PlanCostByType{
		Available: plan.Available, PlanCost: plan.Cost, HasSeqScan: plan.HasSeqScan,
	})
	shape := indextype.ChooseShape(sizeClass, nullRatio, hasLikePattern(field), true)
	sel := indextype.GenerateSQL(table, field, kind, shape, false)

	// Step 6: build/query cost + size gate + base verdict.
	buildCost := costengine.BuildCost(rows, costengine.IndexKind(shape), d.CostCfg, plan)
	queryCostNoIdx := costengine.QueryCostWithoutIndex(rows, selectivity, d.CostCfg, plan)

	overheadPct := 0.0
	if tableBytes > 0 {
		overheadPct = float64(indexBytes) / float64(tableBytes) * 100
	}

	queriesPerHour := fu.TotalQueries
	if d.WindowHours > 0 {
		queriesPerHour = fu.TotalQueries / int64(d.WindowHours)
	}
	horizon := fu.TotalQueries
	if d.QueriesOverHorizon != nil {
		horizon = d.QueriesOverHorizon(fu)
	}

	gateResult := costengine.ApplySizeGate(costengine.SizeClass(sizeClass), queriesPerHour, overheadPct, buildCost, queryCostNoIdx, horizon, d.CostCfg)

	base := fuser.BaseVerdict{Create: gateResult.Pass, Confidence: clamp01(gateResult.BenefitRatio / 3), Reason: gateResult.Reason}
	if base.Reason == "" {
		base.Reason = "cost_benefit_favorable"
	}

	workload, _ := d.StatsQ.Workload(ctx, table, d.WindowHours, 0.7, 0.3)
	wlAdjust := costengine.WorkloadAdjust(string(workload.Class), workload.ReadWriteRatio)

	// Stage 5's hard per-table/per-tenant index-count cap (spec §4.9),
	// evaluated here since only the caller knows the candidate's table.
	var constraint fuser.ConstraintCheck
	if d.IndexCounts != nil {
		if ok, reason := d.IndexCounts.Check(table, ""); !ok {
			constraint = fuser.ConstraintCheck{Violated: true, Reason: reason}
		}
	}

	candidate := fuser.Candidate{
		Table: table, Field: field,
		Base: base, Pattern: patternGate, Constraint: constraint,
		Workload: fuser.WorkloadAdjustment{
			ThresholdMultiplier:  wlAdjust.ThresholdMultiplier,
			ConfidenceMultiplier: wlAdjust.ConfidenceMultiplier,
			EarlyAccept:          wlAdjust.EarlyAccept,
			EarlyReject:          wlAdjust.EarlyReject,
		},
		Features: map[string]float64{
			"queries_per_hour":  float64(queriesPerHour),
			"selectivity":       selectivity,
			"pattern_sustained": boolF(sp.IsSustained),
			"benefit_ratio":     gateResult.BenefitRatio,
		},
		IndexKind: string(kind), IndexName: sel.Name, SQL: sel.SQL,
	}

	dec := d.Fuser.Fuse(candidate)
	verdict := "reject"
	if dec.Create {
		verdict = "accept"
	}
	monitoring.RecordDecision(table, verdict, string(mode), dec.Confidence)

	// Step 7: advisory mode stops here.
	if mode == ModeAdvisory {
		d.emitAudit(ctx, "decision", table, field, dec)
		return dec, "", nil
	}

	if !dec.Create {
		d.emitAudit(ctx, "decision", table, field, dec)
		monitoring.RecordSkipped(dec.Reason)
		return dec, dec.Reason, nil
	}

	// Step 8: approval; create.
	if d.Safety != nil {
		gc := safety.GateCandidate{
			Table: table, Field: field, SizeClass: sizeClass, Mode: string(mode),
			StorageMB: storageMB, IndexName: dec.IndexName, SQL: dec.SQL,
			Reason: dec.Reason, Confidence: dec.Confidence,
		}
		if ok, reason := d.Safety.CheckApply(ctx, gc); !ok {
			d.emitAudit(ctx, "gate_veto", table, field, dec)
			monitoring.RecordSkipped(reason)
			return dec, reason, nil
		}
	}

	respectCPU := true
	createStart := time.Now()
	created, err := d.Creator.Create(ctx, table, field, dec.SQL, d.CreateTimeout, respectCPU)
	d.Safety.RecordOutcome(table, err == nil)
	if err != nil || !created {
		monitoring.RecordSkipped("creation_failed")
		return dec, "creation_failed: " + shortErr(err), nil
	}
	d.emitAuditCreate(ctx, table, field, dec.IndexName, dec.SQL)
	monitoring.RecordIndexCreated(table, dec.IndexKind, float64(time.Since(createStart).Milliseconds()))
	if d.IndexCounts != nil {
		d.IndexCounts.Record(table, "")
	}

	if d.CanaryEnabled && d.Safety.Canaries != nil {
		d.Safety.Canaries.Register(dec.IndexName, table, d.CanaryDefaultPct, d.CanarySuccessThresh, d.CanaryMinSamples)
	}

	// Step 9: measure after-plan and after-performance, against the
	// before-create baselines captured in step 5.
	var beforePlan *planner.PlanSummary = planSummary
	afterPlan, _ := d.Planner.ExplainAnalyze(ctx, sampleQuery, sampleValue(field))
	cmp := planner.CompareBeforeAfter(beforePlan, afterPlan)

	afterTiming, _ := d.Planner.Measure(ctx, sampleQuery, 5, sampleValue(field))
	improvementPct := 0.0
	if beforeTiming.MedianMs > 0 {
		improvementPct = (beforeTiming.MedianMs - afterTiming.MedianMs) / beforeTiming.MedianMs * 100
	}

	// Step 10: rollback rule — union of conditions (spec §9 resolution).
	effective := cmp.Significant
	shouldRollback := improvementPct < -10 || cmp.CostReductionPct < -5 || (!effective && improvementPct < 0)

	if shouldRollback && d.AutoRollbackEnabled {
		rollbackReason := "significant performance degradation"
		if cmp.CostReductionPct < -5 {
			rollbackReason = "EXPLAIN shows cost increase"
		} else if !effective && improvementPct < 0 {
			rollbackReason = "no performance improvement"
		}

		if err := d.Creator.Drop(ctx, dec.IndexName, d.CreateTimeout); err == nil {
			d.emitAuditRollback(ctx, table, field, dec.IndexName, rollbackReason)
			d.Safety.RecordOutcome(table, false)
			monitoring.RecordRollback(rollbackReason)
		}
	}

	// Step 11: circuit-breaker success/failure already recorded above.
	return dec, "", nil
}

func (d *Driver) sizeInfo(ctx context.Context, table string) (rows, tableBytes, indexBytes int64, err error) {
	if d.Sizer == nil {
		return 0, 0, 0, nil
	}
	return d.Sizer.TableSize(ctx, table)
}

func (d *Driver) emitAudit(ctx context.Context, action, table, field string, dec fuser.Decision) {
	severity := "info"
	d.Audit.Emit(ctx, audit.Event{
		Action: action, Table: table, Field: field, Severity: severity,
		Details: map[string]interface{}{"create": dec.Create, "confidence": dec.Confidence, "reason": dec.Reason},
		At: time.Now().UTC(),
	})
}

func (d *Driver) emitAuditCreate(ctx context.Context, table, field, indexName, sql string) {
	d.Audit.Emit(ctx, audit.Event{
		Action: "CREATE_INDEX", Table: table, Field: field, Severity: "info",
		Details: map[string]interface{}{"index_name": indexName, "sql": sql}, At: time.Now().UTC(),
	})
}

func (d *Driver) emitAuditRollback(ctx context.Context, table, field, indexName, reason string) {
	d.Audit.Emit(ctx, audit.Event{
		Action: "ROLLBACK_INDEX", Table: table, Field: field, Severity: "warning",
		Details: map[string]interface{}{"index_name": indexName, "reason": reason}, At: time.Now().UTC(),
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func shortErr(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func hasRangePattern(sp pattern.SustainedPattern) bool { return false }
func hasLikePattern(field string) bool                 { return false }
func sampleValue(field string) interface{}             { return nil }
func inferFieldType(field string) string                { return "scalar" }
