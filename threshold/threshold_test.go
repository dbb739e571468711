package threshold

import "testing"

func TestGet_UnknownNameReturnsFalse(t *testing.T) {
	s := New()
	if _, ok := s.Get("never_updated"); ok {
		t.Fatal("expected ok=false for a threshold never updated")
	}
}

func TestUpdate_PinnedToCurrentBelowMinSamples(t *testing.T) {
	s := New()
	var last float64
	for i := 0; i < defaultMinSamples-1; i++ {
		last = s.Update("orders.customer_id", float64(i), 42)
	}
	if last != 42 {
		t.Fatalf("expected threshold pinned to current=42 below min samples, got %v", last)
	}
	if v, ok := s.Get("orders.customer_id"); !ok || v != 42 {
		t.Fatalf("Get should return pinned value, got %v ok=%v", v, ok)
	}
}

func TestUpdate_ComputesPercentileAtMinSamples(t *testing.T) {
	s := New()
	// Feed ten samples (hits minSamples): 1..10. 95th percentile index
	// into a sorted 10-element slice is int(10*0.95)=9 -> the max (10).
	var got float64
	for i := 1; i <= defaultMinSamples; i++ {
		got = s.Update("orders.customer_id", float64(i), 0)
	}
	if got != 10 {
		t.Fatalf("expected 95th percentile of 1..10 to be 10, got %v", got)
	}
}

func TestUpdate_RingCapsAtCapacity(t *testing.T) {
	s := New()
	for i := 0; i < ringCapacity+500; i++ {
		s.Update("orders.customer_id", float64(i), 0)
	}
	r := s.thresholds["orders.customer_id"]
	if len(r.samples) != ringCapacity {
		t.Fatalf("expected ring capped at %d samples, got %d", ringCapacity, len(r.samples))
	}
	// Oldest samples should have been evicted; the ring should only
	// hold the most recent values.
	if r.samples[0] != 500 {
		t.Fatalf("expected oldest retained sample to be 500, got %v", r.samples[0])
	}
}

func TestUpdate_IndependentThresholdsPerName(t *testing.T) {
	s := New()
	for i := 0; i < defaultMinSamples; i++ {
		s.Update("orders.customer_id", 5, 0)
		s.Update("customers.email", 100, 0)
	}
	a, _ := s.Get("orders.customer_id")
	b, _ := s.Get("customers.email")
	if a == b {
		t.Fatalf("expected independent thresholds per name, got a=%v b=%v", a, b)
	}
}
