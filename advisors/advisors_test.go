package advisors

import (
	"testing"

	"github.com/eyeinthesky6/indexpilot-sub002/probe"
)

var permissive = AdvisorConfig{MinSuitability: 0.1}
var strict = AdvisorConfig{MinSuitability: 0.95}

func TestPGM_FiresOnReadHeavyLargeOrdered(t *testing.T) {
	wl := &WorkloadInfo{Class: "read_heavy"}
	sz := TableSizeInfo{SizeClass: "large"}
	dist := probe.DistributionInfo{IsOrdered: true}

	r := PGM(TableContext{}, PatternShape{}, sz, wl, dist, permissive)
	if !r.ShouldUse {
		t.Fatalf("expected PGM to fire for read-heavy large ordered table, got %+v", r)
	}
	if r.Recommendation != "btree" {
		t.Errorf("expected btree recommendation, got %q", r.Recommendation)
	}
}

func TestPGM_BelowSuitabilityThreshold(t *testing.T) {
	wl := &WorkloadInfo{Class: "read_heavy"}
	r := PGM(TableContext{}, PatternShape{}, TableSizeInfo{}, wl, probe.DistributionInfo{}, strict)
	if r.ShouldUse {
		t.Fatalf("expected PGM not to fire below suitability threshold, got %+v", r)
	}
}

func TestALEX_FiresOnWriteHeavy(t *testing.T) {
	wl := &WorkloadInfo{Class: "write_heavy"}
	r := ALEX(TableContext{}, PatternShape{}, TableSizeInfo{}, wl, permissive)
	if !r.ShouldUse {
		t.Fatalf("expected ALEX to fire for write-heavy workload, got %+v", r)
	}
}

func TestALEX_NilWorkloadNeverFires(t *testing.T) {
	r := ALEX(TableContext{}, PatternShape{}, TableSizeInfo{}, nil, permissive)
	if r.ShouldUse {
		t.Fatalf("expected ALEX not to fire with nil workload, got %+v", r)
	}
}

func TestRSS_RejectsNonStringField(t *testing.T) {
	tc := TableContext{FieldType: "integer"}
	r := RSS(tc, PatternShape{}, probe.StringFeatures{}, permissive)
	if r.ShouldUse {
		t.Fatalf("expected RSS to reject a non-string field, got %+v", r)
	}
}

func TestRSS_PrefixPatternRecommendsExpressionIndex(t *testing.T) {
	tc := TableContext{FieldType: "text"}
	sf := probe.StringFeatures{CardinalityRatio: 0.9, AvgLen: 40}
	ps := PatternShape{HasPrefix: true}

	r := RSS(tc, ps, sf, permissive)
	if !r.ShouldUse || r.Recommendation != "expression" {
		t.Fatalf("expected expression index recommendation for prefix pattern, got %+v", r)
	}
}

func TestRSS_PureEqualityRecommendsHashIndex(t *testing.T) {
	tc := TableContext{FieldType: "varchar"}
	sf := probe.StringFeatures{CardinalityRatio: 0.9, AvgLen: 40}
	ps := PatternShape{HasExact: true}

	r := RSS(tc, ps, sf, permissive)
	if !r.ShouldUse || r.Recommendation != "hash" {
		t.Fatalf("expected hash index recommendation for pure-equality pattern, got %+v", r)
	}
}

func TestCortex_RequiresCompositeCandidate(t *testing.T) {
	r := Cortex(false, 0.9, permissive)
	if r.ShouldUse {
		t.Fatalf("expected Cortex not to fire without a composite candidate, got %+v", r)
	}

	r = Cortex(true, 0.9, permissive)
	if !r.ShouldUse || r.Recommendation != "multi_column" {
		t.Fatalf("expected Cortex to fire for a correlated composite candidate, got %+v", r)
	}
}

func TestIDistance_RequiresMultiDimension(t *testing.T) {
	r := IDistance(TableContext{}, PatternShape{FieldCount: 1, HasRange: true}, permissive)
	if r.ShouldUse {
		t.Fatalf("expected IDistance to reject single-field shapes, got %+v", r)
	}
}

func TestIDistance_GeometricFieldRecommendsGiST(t *testing.T) {
	tc := TableContext{FieldType: "geometry"}
	ps := PatternShape{FieldCount: 2, HasRange: true}

	r := IDistance(tc, ps, permissive)
	if !r.ShouldUse || r.Recommendation != "gist" {
		t.Fatalf("expected GiST recommendation for geometric field, got %+v", r)
	}
}

func TestIDistance_ArrayFieldRecommendsGIN(t *testing.T) {
	tc := TableContext{FieldType: "array"}
	ps := PatternShape{FieldCount: 3, IsMultiDim: true}

	r := IDistance(tc, ps, permissive)
	if !r.ShouldUse || r.Recommendation != "gin" {
		t.Fatalf("expected GIN recommendation for array field, got %+v", r)
	}
}

func TestBxTree_FiresOnTemporalFieldType(t *testing.T) {
	tc := TableContext{FieldType: "timestamptz"}
	r := BxTree(tc, PatternShape{}, permissive)
	if !r.ShouldUse {
		t.Fatalf("expected BxTree to fire for timestamptz field, got %+v", r)
	}
}

func TestBxTree_RejectsNonTemporal(t *testing.T) {
	tc := TableContext{FieldType: "integer"}
	r := BxTree(tc, PatternShape{}, permissive)
	if r.ShouldUse {
		t.Fatalf("expected BxTree to reject a non-temporal field with no temporal pattern, got %+v", r)
	}
}

func TestFractalTree_RequiresLargeAndWriteHeavy(t *testing.T) {
	wl := &WorkloadInfo{Class: "write_heavy"}

	if r := FractalTree(TableSizeInfo{SizeClass: "small"}, wl, permissive); r.ShouldUse {
		t.Fatalf("expected FractalTree to reject a small table, got %+v", r)
	}
	if r := FractalTree(TableSizeInfo{SizeClass: "large"}, wl, permissive); !r.ShouldUse {
		t.Fatalf("expected FractalTree to fire for large write-heavy table, got %+v", r)
	}
}
