package fuser

import "testing"

func TestFuse_PatternGateVetoesRegardlessOfBase(t *testing.T) {
	f := New(nil, nil)
	c := Candidate{
		Base:    BaseVerdict{Create: true, Confidence: 0.9},
		Pattern: PatternGate{Pass: false, Reason: "not_sustained"},
	}
	d := f.Fuse(c)
	if d.Create {
		t.Fatal("expected pattern gate veto to force Create=false")
	}
	if d.Reason != "not_sustained" {
		t.Errorf("expected pattern gate reason to surface, got %q", d.Reason)
	}
}

func TestFuse_ConstraintViolationIsTerminal(t *testing.T) {
	f := New(nil, nil)
	c := Candidate{
		Base:       BaseVerdict{Create: true, Confidence: 0.9},
		Pattern:    PatternGate{Pass: true},
		Constraint: ConstraintCheck{Violated: true, Reason: "storage_budget_exceeded"},
	}
	d := f.Fuse(c)
	if d.Create {
		t.Fatal("expected constraint violation to force Create=false")
	}
	if d.Reason != "storage_budget_exceeded" {
		t.Errorf("expected constraint reason to surface, got %q", d.Reason)
	}
}

func TestFuse_WorkloadEarlyRejectOverridesBase(t *testing.T) {
	f := New(nil, nil)
	c := Candidate{
		// Confidence is kept low enough that the stage-4 ML blend (which
		// for the default predictor reduces to the incoming confidence
		// when no bonus features are set) doesn't flip the verdict back.
		Base:     BaseVerdict{Create: true, Confidence: 0.3},
		Pattern:  PatternGate{Pass: true},
		Workload: WorkloadAdjustment{ConfidenceMultiplier: 1.0, EarlyReject: true},
		Features: map[string]float64{},
	}
	d := f.Fuse(c)
	if d.Create {
		t.Fatal("expected write-heavy early reject to suppress creation before ML stages run")
	}
}

func TestFuse_FKBoostBoostsConfidenceAndTagsReason(t *testing.T) {
	f := New(nil, nil)
	base := Candidate{
		Base:     BaseVerdict{Create: true, Confidence: 0.7, Reason: "cost_benefit_positive"},
		Pattern:  PatternGate{Pass: true},
		Workload: WorkloadAdjustment{ConfidenceMultiplier: 1.0},
		Features: map[string]float64{"selectivity": 0.6, "pattern_sustained": 1.0},
	}
	withFK := base
	withFK.FK = FKContext{IsUnindexedFK: true}

	dWithout := f.Fuse(base)
	dWith := f.Fuse(withFK)

	if dWith.Confidence <= dWithout.Confidence {
		t.Fatalf("expected FK boost to raise confidence: without=%v with=%v", dWithout.Confidence, dWith.Confidence)
	}
	if dWith.Reason[:16] != "foreign_key_inde" {
		t.Errorf("expected reason prefixed with foreign_key_index_, got %q", dWith.Reason)
	}
}

func TestFuse_XGBoostOverrideAccept(t *testing.T) {
	classifier := stubClassifier{score: 0.95}
	f := New(nil, classifier)
	c := Candidate{
		Base:     BaseVerdict{Create: false, Confidence: 0.1, Reason: "cost_benefit_negative"},
		Pattern:  PatternGate{Pass: true},
		Workload: WorkloadAdjustment{ConfidenceMultiplier: 1.0},
		Features: map[string]float64{},
	}
	d := f.Fuse(c)
	if !d.Create {
		t.Fatalf("expected a high XGBoost-style score to override a negative base verdict, got %+v", d)
	}
	if d.Reason != "xgboost_override_accept" {
		t.Errorf("expected xgboost_override_accept reason, got %q", d.Reason)
	}
}

func TestFuse_XGBoostOverrideReject(t *testing.T) {
	predictor := stubPredictor{utility: 0.9}
	classifier := stubClassifier{score: 0.05}
	f := New(predictor, classifier)
	c := Candidate{
		Base:     BaseVerdict{Create: true, Confidence: 0.9, Reason: "cost_benefit_positive"},
		Pattern:  PatternGate{Pass: true},
		Workload: WorkloadAdjustment{ConfidenceMultiplier: 1.0},
		Features: map[string]float64{},
	}
	d := f.Fuse(c)
	if d.Create {
		t.Fatalf("expected a low XGBoost-style score to override a positive base verdict, got %+v", d)
	}
	if d.Reason != "xgboost_override_reject" {
		t.Errorf("expected xgboost_override_reject reason, got %q", d.Reason)
	}
}

func TestFuse_DefaultPredictorAndClassifierProduceBoundedConfidence(t *testing.T) {
	f := New(nil, nil)
	c := Candidate{
		Base:     BaseVerdict{Create: true, Confidence: 0.6},
		Pattern:  PatternGate{Pass: true},
		Workload: WorkloadAdjustment{ConfidenceMultiplier: 1.0},
		Features: map[string]float64{"queries_per_hour": 500, "selectivity": 0.9, "pattern_sustained": 1.0, "benefit_ratio": 2.0},
	}
	d := f.Fuse(c)
	if d.Confidence < 0 || d.Confidence > 1 {
		t.Fatalf("expected confidence clamped to [0,1], got %v", d.Confidence)
	}
}

type stubPredictor struct{ utility float64 }

func (s stubPredictor) PredictUtility(confidence float64, features map[string]float64) float64 {
	return s.utility
}

type stubClassifier struct{ score float64 }

func (s stubClassifier) Score(features map[string]float64) float64 {
	return s.score
}
