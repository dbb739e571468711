// Package fuser implements the decision fuser (C9): the seven-stage
// pipeline from spec §4.9, run in the canonical order resolved for the
// Open Question in spec §9 (base verdict → pattern gate → workload
// adjust → ML refinement → constraint optimizer → XGBoost blend → FK
// boost).
package fuser

// Decision is the tagged verdict record produced per candidate.
type Decision struct {
	Create     bool
	Confidence float64
	Reason     string
	IndexKind  string
	IndexName  string
	SQL        string
}

// BaseVerdict is the §4.8 cost-benefit outcome feeding stage 1.
type BaseVerdict struct {
	Create     bool
	Confidence float64
	Reason     string
}

// PatternGate is the §4.6 sustained-pattern veto feeding stage 2.
type PatternGate struct {
	Pass   bool
	Reason string
}

// WorkloadAdjustment mirrors costengine.WorkloadAdjustment, duplicated
// here to keep this package free of a costengine import (fuser composes
// purely over already-derived signals, per the layering in spec §9).
type WorkloadAdjustment struct {
	ThresholdMultiplier  float64
	ConfidenceMultiplier float64
	EarlyAccept          bool
	EarlyReject          bool
}

// UtilityPredictor is the injectable "ML refinement" stage 4 interface.
// The default implementation (below) is a pure heuristic stand-in
// grounded on original_source/auto_indexer.py's predict_index_utility.
type UtilityPredictor interface {
	PredictUtility(confidence float64, features map[string]float64) (utility float64)
}

// PatternClassifier is the injectable "XGBoost blend" stage 6 interface.
// The default implementation stands in for
// get_index_recommendation_score in the original source.
type PatternClassifier interface {
	Score(features map[string]float64) float64
}

// ConstraintCheck is stage 5: hard constraints (budget, per-tenant cap,
// per-table cap, storage) evaluated by the caller (safety envelope) and
// passed in as a terminal veto.
type ConstraintCheck struct {
	Violated bool
	Reason   string
}

// FKContext is stage 7's input: whether (table, field) is an FK lacking
// a backing index.
type FKContext struct {
	IsUnindexedFK bool
}

// Candidate bundles every signal the pipeline needs for one (table, field).
type Candidate struct {
	Table      string
	Field      string
	Base       BaseVerdict
	Pattern    PatternGate
	Workload   WorkloadAdjustment
	Features   map[string]float64
	Constraint ConstraintCheck
	FK         FKContext
	IndexKind  string
	IndexName  string
	SQL        string
}

// Fuser runs the pipeline with injected stage-4/6 scorers.
type Fuser struct {
	predictor  UtilityPredictor
	classifier PatternClassifier
}

func New(predictor UtilityPredictor, classifier PatternClassifier) *Fuser {
	if predictor == nil {
		predictor = defaultUtilityPredictor{}
	}
	if classifier == nil {
		classifier = defaultPatternClassifier{}
	}
	return &Fuser{predictor: predictor, classifier: classifier}
}

// Fuse runs the seven-stage pipeline in canonical order.
func (f *Fuser) Fuse(c Candidate) Decision {
	// Stage 1: base verdict.
	create := c.Base.Create
	confidence := c.Base.Confidence
	reason := c.Base.Reason

	// Stage 2: pattern gate — veto if not sustained.
	if !c.Pattern.Pass {
		return Decision{Create: false, Confidence: 0, Reason: c.Pattern.Reason, IndexKind: c.IndexKind, IndexName: c.IndexName, SQL: c.SQL}
	}

	// Stage 3: workload adjust.
	confidence *= c.Workload.ConfidenceMultiplier
	if c.Workload.EarlyAccept {
		create = true
		reason = "read_heavy_workload"
	}
	if c.Workload.EarlyReject {
		create = false
		reason = "write_heavy_workload_conservative"
	}

	// Stage 4: predictive-indexing (ML) refinement — may only flip
	// create↔skip when the ML confidence dominates (80/20 blend).
	utility := f.predictor.PredictUtility(confidence, c.Features)
	blended := 0.2*confidence + 0.8*utility
	if (blended > 0.5) != create {
		create = blended > 0.5
		reason = "ml_refinement_flip"
	}
	confidence = clamp01(blended)

	// Stage 5: constraint optimizer — any violation is a terminal NO.
	if c.Constraint.Violated {
		return Decision{Create: false, Confidence: 0, Reason: c.Constraint.Reason, IndexKind: c.IndexKind, IndexName: c.IndexName, SQL: c.SQL}
	}

	// Stage 6: XGBoost-style score blend — 20% weight; extreme scores
	// can override the verdict.
	score := f.classifier.Score(c.Features)
	confidence = clamp01(0.8*confidence + 0.2*score)
	if score > 0.8 && !create {
		create = true
		reason = "xgboost_override_accept"
	} else if score < 0.2 && create {
		create = false
		reason = "xgboost_override_reject"
	}

	// Stage 7: FK boost.
	if c.FK.IsUnindexedFK {
		confidence = clamp01(confidence * 1.2)
		reason = "foreign_key_index_" + reason
	}

	return Decision{
		Create:     create,
		Confidence: confidence,
		Reason:     reason,
		IndexKind:  c.IndexKind,
		IndexName:  c.IndexName,
		SQL:        c.SQL,
	}
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

// defaultUtilityPredictor is the built-in heuristic stand-in for an
// external ML utility-prediction service.
type defaultUtilityPredictor struct{}

func (defaultUtilityPredictor) PredictUtility(confidence float64, features map[string]float64) float64 {
	util := confidence
	if qph, ok := features["queries_per_hour"]; ok && qph > 100 {
		util += 0.1
	}
	if sel, ok := features["selectivity"]; ok && sel > 0.5 {
		util += 0.1
	}
	return clamp01(util)
}

// defaultPatternClassifier is the built-in heuristic stand-in for an
// external XGBoost-trained classifier.
type defaultPatternClassifier struct{}

func (defaultPatternClassifier) Score(features map[string]float64) float64 {
	var score float64
	if v, ok := features["selectivity"]; ok {
		score += v * 0.4
	}
	if v, ok := features["pattern_sustained"]; ok {
		score += v * 0.4
	}
	if v, ok := features["benefit_ratio"]; ok && v > 1 {
		score += 0.2
	}
	return clamp01(score)
}
