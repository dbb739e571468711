package pattern

import (
	"context"
	"errors"
	"testing"
)

type fakeCounter struct {
	counts []int64
	err    error
}

func (f fakeCounter) CountsByPeriod(ctx context.Context, table, field string, periods int, hourly bool) ([]int64, error) {
	return f.counts, f.err
}

type fakeTracker struct {
	calls int
}

func (f *fakeTracker) RecordAlgorithmUsage(ctx context.Context, table, field, algorithm string, recommendation interface{}, usedInDecision bool) error {
	f.calls++
	return nil
}

func testConfig() Config {
	return Config{MinDaysSustained: 3, MinQueriesPerDay: 10, SpikeDetectionWindow: 24, SpikeThreshold: 3.0}
}

func TestDetectSustained_SustainedWhenConsistentlyAboveThreshold(t *testing.T) {
	d := New(fakeCounter{counts: []int64{12, 15, 11, 14, 13}}, nil, testConfig())
	sp, err := d.DetectSustained(context.Background(), "orders", "customer_id", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sp.IsSustained {
		t.Fatalf("expected sustained pattern, got %+v", sp)
	}
	if sp.IsSpike {
		t.Fatalf("expected no spike, got %+v", sp)
	}
}

func TestDetectSustained_SpikeDetectedWhenOnePeriodDominates(t *testing.T) {
	d := New(fakeCounter{counts: []int64{5, 5, 5, 200, 5}}, nil, testConfig())
	sp, err := d.DetectSustained(context.Background(), "orders", "customer_id", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sp.IsSpike {
		t.Fatalf("expected spike detection for a dominant period, got %+v", sp)
	}
	if sp.IsSustained {
		t.Fatal("a spike should never also be reported as sustained")
	}
}

func TestDetectSustained_NotSustainedBelowMinDays(t *testing.T) {
	d := New(fakeCounter{counts: []int64{12, 2, 2, 2, 2}}, nil, testConfig())
	sp, err := d.DetectSustained(context.Background(), "orders", "customer_id", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.IsSustained {
		t.Fatalf("expected not sustained when only one period crosses the floor, got %+v", sp)
	}
}

func TestDetectSustained_HourlyModeWhenWindowUnder24(t *testing.T) {
	counter := fakeCounter{counts: []int64{10, 10, 10}}
	d := New(counter, nil, testConfig())
	sp, err := d.DetectSustained(context.Background(), "orders", "customer_id", 5, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.PeriodsAnalyzed != 3 {
		t.Fatalf("expected PeriodsAnalyzed to reflect the counter's returned periods, got %d", sp.PeriodsAnalyzed)
	}
}

func TestDetectSustained_PropagatesCounterError(t *testing.T) {
	wantErr := errors.New("connection reset")
	d := New(fakeCounter{err: wantErr}, nil, testConfig())
	_, err := d.DetectSustained(context.Background(), "orders", "customer_id", 5, 0)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected counter error to propagate, got %v", err)
	}
}

func TestShouldCreateFromPattern_Gates(t *testing.T) {
	d := New(fakeCounter{}, nil, testConfig())

	if ok, reason := d.ShouldCreateFromPattern(context.Background(), 0, 24, SustainedPattern{}); ok || reason != "no_queries" {
		t.Errorf("expected no_queries gate, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := d.ShouldCreateFromPattern(context.Background(), 100, 24, SustainedPattern{PeriodsAnalyzed: 0}); ok || reason != "insufficient_queries" {
		t.Errorf("expected insufficient_queries gate, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := d.ShouldCreateFromPattern(context.Background(), 100, 24, SustainedPattern{PeriodsAnalyzed: 5, IsSpike: true}); ok || reason != "spike_detected" {
		t.Errorf("expected spike_detected gate, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := d.ShouldCreateFromPattern(context.Background(), 100, 24, SustainedPattern{PeriodsAnalyzed: 5, IsSustained: false}); ok || reason != "pattern_not_sustained" {
		t.Errorf("expected pattern_not_sustained gate, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := d.ShouldCreateFromPattern(context.Background(), 100, 24, SustainedPattern{PeriodsAnalyzed: 5, IsSustained: true}); !ok || reason != "" {
		t.Errorf("expected pass, got ok=%v reason=%q", ok, reason)
	}
}

func TestDetectMultiDim_RecordsUsageAndReturnsScorerVerdict(t *testing.T) {
	tracker := &fakeTracker{}
	d := New(fakeCounter{}, tracker, testConfig())

	scorer := func(fieldCount int) (string, bool, string) {
		return "iDistance", fieldCount >= 2, "multi_dim_candidate"
	}

	res, err := d.DetectMultiDim(context.Background(), "orders", []string{"customer_id", "region"}, scorer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Used || res.Advisor != "iDistance" {
		t.Fatalf("expected iDistance to be used, got %+v", res)
	}
	if tracker.calls != 1 {
		t.Fatalf("expected usage to be recorded exactly once, got %d calls", tracker.calls)
	}
}

func TestDetectTemporal_RecordsUsageAndReturnsScorerVerdict(t *testing.T) {
	tracker := &fakeTracker{}
	d := New(fakeCounter{}, tracker, testConfig())

	scorer := func(fieldType string) (string, bool, string) {
		return "BxTree", fieldType == "timestamptz", "temporal_field"
	}

	res, err := d.DetectTemporal(context.Background(), "orders", "created_at", "timestamptz", scorer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Used || res.Advisor != "BxTree" {
		t.Fatalf("expected BxTree to be used, got %+v", res)
	}
	if tracker.calls != 1 {
		t.Fatalf("expected usage to be recorded exactly once, got %d calls", tracker.calls)
	}
}
