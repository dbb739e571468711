package costengine

import "testing"

func testConfig() Config {
	return Config{
		BuildCostPer1000Rows:     1.0,
		QueryCostPer10000Rows:    1.0,
		MinQueryCost:             0.1,
		IndexTypeCostPartial:     0.6,
		IndexTypeCostExpression:  1.2,
		IndexTypeCostStandard:    1.0,
		IndexTypeCostMultiColumn: 1.4,
		MinSelectivityForIndex:   0.05,
		HighSelectivityThreshold: 0.5,
		MinPlanCostForIndex:      100,

		SmallTableRowCount:             10_000,
		MediumTableRowCount:            1_000_000,
		SmallTableMinQueriesPerHour:    10,
		SmallTableMaxIndexOverheadPct:  0.2,
		MediumTableMaxIndexOverheadPct: 0.3,
		LargeTableCostReductionFactor:  0.8,
	}
}

func TestBuildCost_ScalesWithRowsAndKind(t *testing.T) {
	cfg := testConfig()
	std := BuildCost(1000, KindStandard, cfg, PlanCost{})
	partial := BuildCost(1000, KindPartial, cfg, PlanCost{})
	if !(partial < std) {
		t.Fatalf("expected partial index build cost (%v) below standard (%v)", partial, std)
	}
}

func TestBuildCost_BlendsWithPlanCostWhenAvailable(t *testing.T) {
	cfg := testConfig()
	base := BuildCost(1000, KindStandard, cfg, PlanCost{})
	blended := BuildCost(1000, KindStandard, cfg, PlanCost{Available: true, Cost: 500})
	if blended == base {
		t.Fatal("expected plan cost to change the blended build cost estimate")
	}
}

func TestQueryCostWithoutIndex_FloorsAtMinQueryCost(t *testing.T) {
	cfg := testConfig()
	// selectivity 0.3 triggers neither the low nor the high multiplier,
	// so the tiny row count should floor out at MinQueryCost.
	cost := QueryCostWithoutIndex(1, 0.3, cfg, PlanCost{})
	if cost != cfg.MinQueryCost {
		t.Fatalf("expected cost floored at %v, got %v", cfg.MinQueryCost, cost)
	}
}

func TestQueryCostWithoutIndex_LowSelectivityHalvesCost(t *testing.T) {
	cfg := testConfig()
	high := QueryCostWithoutIndex(100000, 0.6, cfg, PlanCost{})
	low := QueryCostWithoutIndex(100000, 0.01, cfg, PlanCost{})
	if !(low < high) {
		t.Fatalf("expected low-selectivity cost (%v) below high-selectivity cost (%v)", low, high)
	}
}

func TestClassifySize_Buckets(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		rows int64
		want SizeClass
	}{
		{100, SizeSmall},
		{100_000, SizeMedium},
		{10_000_000, SizeLarge},
	}
	for _, c := range cases {
		if got := ClassifySize(c.rows, cfg); got != c.want {
			t.Errorf("ClassifySize(%d) = %q, want %q", c.rows, got, c.want)
		}
	}
}

func TestApplySizeGate_SmallTableLowQueryVolumeRejected(t *testing.T) {
	cfg := testConfig()
	res := ApplySizeGate(SizeSmall, 1, 0.1, 10, 5, 1000, cfg)
	if res.Pass || res.Reason != "small_table_low_query_volume" {
		t.Fatalf("expected rejection for low query volume, got %+v", res)
	}
}

func TestApplySizeGate_SmallTableHighOverheadRejected(t *testing.T) {
	cfg := testConfig()
	res := ApplySizeGate(SizeSmall, 100, 0.9, 10, 5, 1000, cfg)
	if res.Pass || res.Reason != "small_table_high_overhead" {
		t.Fatalf("expected rejection for high overhead, got %+v", res)
	}
}

func TestApplySizeGate_SmallTablePassesWithSufficientBenefit(t *testing.T) {
	cfg := testConfig()
	res := ApplySizeGate(SizeSmall, 100, 0.05, 10, 5, 1000, cfg)
	if !res.Pass {
		t.Fatalf("expected pass for high-benefit small table, got %+v", res)
	}
}

func TestApplySizeGate_LargeTableUsesReductionFactor(t *testing.T) {
	cfg := testConfig()
	res := ApplySizeGate(SizeLarge, 1000, 0.05, 100, 1, 1000, cfg)
	wantAdjusted := 100.0 / cfg.LargeTableCostReductionFactor
	if res.AdjustedBuild != wantAdjusted {
		t.Fatalf("expected adjusted build cost %v, got %v", wantAdjusted, res.AdjustedBuild)
	}
}

func TestWorkloadAdjust_ReadHeavyEarlyAccept(t *testing.T) {
	adj := WorkloadAdjust("read_heavy", 0.8)
	if !adj.EarlyAccept {
		t.Fatalf("expected early accept for read-heavy high read/write ratio, got %+v", adj)
	}
}

func TestWorkloadAdjust_WriteHeavyEarlyReject(t *testing.T) {
	adj := WorkloadAdjust("write_heavy", 0.5)
	if !adj.EarlyReject {
		t.Fatalf("expected early reject for write-heavy low read/write ratio, got %+v", adj)
	}
}

func TestWorkloadAdjust_UnknownClassIsNeutral(t *testing.T) {
	adj := WorkloadAdjust("balanced", 1.0)
	if adj.ThresholdMultiplier != 1.0 || adj.ConfidenceMultiplier != 1.0 || adj.EarlyAccept || adj.EarlyReject {
		t.Fatalf("expected neutral adjustment for unrecognized class, got %+v", adj)
	}
}
