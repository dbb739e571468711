// Package advisors implements the seven algorithm advisors (C7): pure
// scoring functions that map workload features to indexing strategy
// recommendations. None of them touch the database, the pattern
// detector, or the fuser — by design (spec §9: "reorganize so advisors
// depend only on probes and configuration").
package advisors

import (
	"github.com/eyeinthesky6/indexpilot-sub002/probe"
)

// TableContext is the subset of table identity an advisor needs.
type TableContext struct {
	Table          string
	Field          string
	FieldType      string
	HasTenantCol   bool
}

// PatternShape is populated once per candidate and read by all advisors
// (spec §9: "a single PatternShape record").
type PatternShape struct {
	HasExact     bool
	HasRange     bool
	HasLike      bool
	HasPrefix    bool
	HasTemporal  bool
	IsMultiDim   bool
	FieldCount   int // supplemented: count of co-queried fields, not just a bool
	FieldType    string
	NullRatio    float64
}

// TableSizeInfo mirrors the data-model record of the same name.
type TableSizeInfo struct {
	RowCount        int64
	TableBytes      int64
	IndexBytes      int64
	TotalBytes      int64
	IndexOverheadPct float64
	SizeClass       string // small | medium | large
}

// WorkloadInfo is the optional read/write context; advisors that ignore
// workload receive nil.
type WorkloadInfo struct {
	ReadWriteRatio float64
	Class          string // read_heavy | write_heavy | balanced
}

// Distribution carries the probe's ordered-ness classification, used by
// PGM.
type Distribution = probe.DistributionInfo

// AdvisorResult is the tagged record every advisor returns.
type AdvisorResult struct {
	ShouldUse      bool
	Confidence     float64
	Reason         string
	Recommendation string
	StrategyNotes  string
}

// AdvisorConfig is the per-advisor suitability threshold, sourced from
// config.AdvisorsConfig.
type AdvisorConfig struct {
	MinSuitability float64
}

func cap1(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	return score
}

// PGM fires for read-heavy, large, ordered-distribution tables.
func PGM(tc TableContext, ps PatternShape, sz TableSizeInfo, wl *WorkloadInfo, dist Distribution, cfg AdvisorConfig) AdvisorResult {
	var score float64
	if wl != nil && wl.Class == "read_heavy" {
		score += 0.4
	}
	if sz.SizeClass == "large" {
		score += 0.3
	}
	if dist.IsOrdered {
		score += 0.3
	}
	score = cap1(score)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "pgm_below_suitability"}
	}
	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "pgm_read_heavy_ordered",
		Recommendation: "btree",
		StrategyNotes:  "space-savings via learned-index-shaped B-tree",
	}
}

// ALEX fires for write-heavy or dynamic-mix tables, biasing toward
// partial/covering indexes to reduce write amplification.
func ALEX(tc TableContext, ps PatternShape, sz TableSizeInfo, wl *WorkloadInfo, cfg AdvisorConfig) AdvisorResult {
	var score float64
	if wl != nil && wl.Class == "write_heavy" {
		score += 0.5
	}
	if wl != nil && wl.Class == "balanced" {
		score += 0.2
	}
	score = cap1(score)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "alex_below_suitability"}
	}
	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "alex_write_heavy_dynamic",
		Recommendation: "btree",
		StrategyNotes:  "partial/covering index to cut write amplification",
	}
}

// RSS (radix-string-spline) fires for high-cardinality string fields
// with long average length.
func RSS(tc TableContext, ps PatternShape, sf probe.StringFeatures, cfg AdvisorConfig) AdvisorResult {
	if tc.FieldType != "string" && tc.FieldType != "text" && tc.FieldType != "varchar" {
		return AdvisorResult{Reason: "rss_not_string_field"}
	}
	var score float64
	if sf.CardinalityRatio > 0.5 {
		score += 0.4
	}
	if sf.AvgLen > 20 {
		score += 0.3
	}
	if ps.HasExact {
		score += 0.3
	}
	score = cap1(score)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "rss_below_suitability"}
	}

	rec := "btree"
	notes := "standard B-tree on string field"
	if ps.HasPrefix {
		rec = "expression"
		notes = "expression index on lower(field) / left(field, N) for prefix match"
	} else if ps.HasExact && !ps.HasRange && !ps.HasPrefix {
		rec = "hash"
		notes = "hash index, pure-equality access pattern"
	}

	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "rss_high_cardinality_string",
		Recommendation: rec,
		StrategyNotes:  notes,
	}
}

// Cortex boosts correlated column pairs surfaced by the composite
// opportunity detector (C12).
func Cortex(isCompositeCandidate bool, correlationScore float64, cfg AdvisorConfig) AdvisorResult {
	if !isCompositeCandidate {
		return AdvisorResult{Reason: "cortex_not_composite_candidate"}
	}
	score := cap1(0.5 + correlationScore*0.5)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "cortex_below_suitability"}
	}
	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "cortex_correlated_pair",
		Recommendation: "multi_column",
		StrategyNotes:  "boost correlated column pair ordering",
	}
}

// IDistance fires for multi-field k-NN/range patterns with at least 2
// dimensions (supplemented: gated on ps.FieldCount, not just IsMultiDim).
func IDistance(tc TableContext, ps PatternShape, cfg AdvisorConfig) AdvisorResult {
	if ps.FieldCount < 2 || !(ps.HasRange || ps.IsMultiDim) {
		return AdvisorResult{Reason: "idistance_insufficient_dimensions"}
	}
	var score float64
	score += 0.4
	if ps.HasRange {
		score += 0.3
	}
	if ps.FieldCount >= 3 {
		score += 0.2
	}
	score = cap1(score)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "idistance_below_suitability"}
	}

	rec := "composite_btree"
	notes := "composite B-tree over co-queried fields"
	switch tc.FieldType {
	case "geometric", "point", "geometry":
		rec = "gist"
		notes = "GiST for geometric k-NN"
	case "array":
		rec = "gin"
		notes = "GIN for array containment"
	}

	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "idistance_multi_dim",
		Recommendation: rec,
		StrategyNotes:  notes,
	}
}

// BxTree fires for temporal fields or time-range query patterns.
func BxTree(tc TableContext, ps PatternShape, cfg AdvisorConfig) AdvisorResult {
	if tc.FieldType != "timestamp" && tc.FieldType != "date" && tc.FieldType != "timestamptz" && !ps.HasTemporal {
		return AdvisorResult{Reason: "bxtree_not_temporal"}
	}
	score := cap1(0.5 + boolF(ps.HasTemporal)*0.3 + boolF(ps.HasRange)*0.2)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "bxtree_below_suitability"}
	}
	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "bxtree_temporal_pattern",
		Recommendation: "btree",
		StrategyNotes:  "partial index scoped to the active time range",
	}
}

// FractalTree fires for write-heavy large tables, biasing toward fewer,
// wider (partial/covering) indexes over many narrow ones.
func FractalTree(sz TableSizeInfo, wl *WorkloadInfo, cfg AdvisorConfig) AdvisorResult {
	if sz.SizeClass != "large" || wl == nil || wl.Class != "write_heavy" {
		return AdvisorResult{Reason: "fractaltree_not_write_heavy_large"}
	}
	score := cap1(0.6)

	if score < cfg.MinSuitability {
		return AdvisorResult{Reason: "fractaltree_below_suitability"}
	}
	return AdvisorResult{
		ShouldUse:      true,
		Confidence:     score,
		Reason:         "fractaltree_write_heavy_large",
		Recommendation: "partial",
		StrategyNotes:  "reduce index count, prefer partial/covering indexes",
	}
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
