package safety

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.DEBUG, io.Discard)
}

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	r := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute}, testLogger())

	for i := 0; i < 2; i++ {
		r.RecordFailure("index_creation_orders")
	}
	if !r.Allow("index_creation_orders") {
		t.Fatal("expected breaker still closed below failure threshold")
	}

	r.RecordFailure("index_creation_orders")
	if r.Allow("index_creation_orders") {
		t.Fatal("expected breaker open at failure threshold")
	}
	if got := r.Snapshot("index_creation_orders").State; got != StateOpen {
		t.Fatalf("expected state open, got %q", got)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	r := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 0}, testLogger())

	r.RecordFailure("orders")
	if !r.Allow("orders") {
		t.Fatal("expected immediate half-open transition with zero timeout")
	}
	if got := r.Snapshot("orders").State; got != StateHalfOpen {
		t.Fatalf("expected half_open after timeout elapses, got %q", got)
	}

	r.RecordSuccess("orders")
	if got := r.Snapshot("orders").State; got != StateHalfOpen {
		t.Fatalf("expected still half_open after one success (need 2), got %q", got)
	}
	r.RecordSuccess("orders")
	if got := r.Snapshot("orders").State; got != StateClosed {
		t.Fatalf("expected closed after success threshold met, got %q", got)
	}
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	r := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 0}, testLogger())
	r.RecordFailure("orders")
	r.Allow("orders") // transitions to half_open
	r.RecordFailure("orders")
	if got := r.Snapshot("orders").State; got != StateOpen {
		t.Fatalf("expected re-open on half_open failure, got %q", got)
	}
}

func TestCanaryRegistry_PromotesAboveThreshold(t *testing.T) {
	r := NewCanaryRegistry(testLogger())
	r.Register("idx_orders_customer_id", "orders", 0.1, 0.95, 10)

	for i := 0; i < 10; i++ {
		r.RecordResult("idx_orders_customer_id", true)
	}
	c, ok := r.Get("idx_orders_customer_id")
	if !ok || c.Status != CanaryPromoted {
		t.Fatalf("expected promotion at 100%% success rate, got %+v ok=%v", c, ok)
	}
}

func TestCanaryRegistry_RollsBackBelowFloor(t *testing.T) {
	r := NewCanaryRegistry(testLogger())
	r.Register("idx_orders_customer_id", "orders", 0.1, 0.95, 10)

	for i := 0; i < 5; i++ {
		r.RecordResult("idx_orders_customer_id", true)
	}
	for i := 0; i < 5; i++ {
		r.RecordResult("idx_orders_customer_id", false)
	}
	c, ok := r.Get("idx_orders_customer_id")
	if !ok || c.Status != CanaryRolledBack {
		t.Fatalf("expected rollback at 50%% success rate against a 95%% threshold, got %+v ok=%v", c, ok)
	}
}

func TestCanaryRegistry_StatusIsMonotonic(t *testing.T) {
	r := NewCanaryRegistry(testLogger())
	r.Register("idx_orders_customer_id", "orders", 0.1, 0.95, 2)
	r.RecordResult("idx_orders_customer_id", true)
	r.RecordResult("idx_orders_customer_id", true)
	c, _ := r.Get("idx_orders_customer_id")
	if c.Status != CanaryPromoted {
		t.Fatalf("expected promotion, got %+v", c)
	}

	// Further failures must not move a promoted canary back to active
	// or rolled_back.
	status, changed := r.RecordResult("idx_orders_customer_id", false)
	if changed {
		t.Fatal("expected no further transition once promoted")
	}
	if status != CanaryPromoted {
		t.Fatalf("expected status to stay promoted, got %q", status)
	}
}

func TestRateLimiter_AllowsUpToCapacityThenBlocks(t *testing.T) {
	rl := NewRateLimiter(2, 1, nil, time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow("orders")
		if ok {
			allowed++
		}
	}
	if allowed != 3 { // creationsPerHour(2) + burst(1)
		t.Fatalf("expected 3 allowed (limit+burst), got %d", allowed)
	}
}

func TestRateLimiter_PerTableOverride(t *testing.T) {
	rl := NewRateLimiter(1, 0, map[string]TableLimit{"hot_table": {CreationsPerHour: 10, BurstSize: 0}}, time.Hour)

	allowedHot := 0
	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("hot_table"); ok {
			allowedHot++
		}
	}
	if allowedHot != 5 {
		t.Fatalf("expected per-table override to allow all 5, got %d", allowedHot)
	}

	ok, _ := rl.Allow("cold_table")
	if !ok {
		t.Fatal("expected first request against the global limit to pass")
	}
	if ok2, _ := rl.Allow("cold_table"); ok2 {
		t.Fatal("expected second request to exceed the global limit of 1/hour with no burst")
	}
}

func TestMaintenanceWindow_IsOpen(t *testing.T) {
	w := NewMaintenanceWindow(1, 5, time.Hour)
	w.now = func() time.Time { return time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC) }
	if !w.IsOpen() {
		t.Fatal("expected window open at 3am within [1,5)")
	}

	w.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	if w.IsOpen() {
		t.Fatal("expected window closed at noon")
	}
}

func TestMaintenanceWindow_WrapsPastMidnight(t *testing.T) {
	w := NewMaintenanceWindow(22, 2, time.Hour)
	w.now = func() time.Time { return time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) }
	if !w.IsOpen() {
		t.Fatal("expected window open at 11pm for a [22,2) wrap-around window")
	}
	w.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	if w.IsOpen() {
		t.Fatal("expected window closed at 10am for a [22,2) wrap-around window")
	}
}

func TestMaintenanceWindow_WaitOrSkip(t *testing.T) {
	w := NewMaintenanceWindow(1, 5, 30*time.Minute)
	w.now = func() time.Time { return time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC) }
	if wait, skip := w.WaitOrSkip(); wait != 0 || skip {
		t.Fatalf("expected no wait while window is open, got wait=%v skip=%v", wait, skip)
	}

	w.now = func() time.Time { return time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC) }
	wait, skip := w.WaitOrSkip()
	if wait != 19*time.Hour {
		t.Fatalf("expected 19h wait until 1am next day, got %v", wait)
	}
	if !skip {
		t.Fatal("expected skip=true since the wait exceeds MaxWait")
	}
}

func TestStorageBudget_RejectsOverGlobalCap(t *testing.T) {
	b := NewStorageBudget(100, nil)
	b.Commit("", 90)
	if allowed, _, reason := b.Check("", 20); allowed || reason != "storage_budget_exceeded" {
		t.Fatalf("expected rejection over global cap, got allowed=%v reason=%q", allowed, reason)
	}
}

func TestStorageBudget_WarnsNearCap(t *testing.T) {
	b := NewStorageBudget(100, nil)
	b.Commit("", 75)
	allowed, warn, _ := b.Check("", 10)
	if !allowed || !warn {
		t.Fatalf("expected allowed with warning near 80%% of cap, got allowed=%v warn=%v", allowed, warn)
	}
}

func TestStorageBudget_PerTenantCap(t *testing.T) {
	b := NewStorageBudget(1000, map[string]float64{"tenant_a": 10})
	b.Commit("tenant_a", 8)
	if allowed, _, reason := b.Check("tenant_a", 5); allowed || reason != "storage_budget_exceeded" {
		t.Fatalf("expected per-tenant rejection, got allowed=%v reason=%q", allowed, reason)
	}
}

func TestEstimateIndexSizeMB_PicksMaxOfBothEstimates(t *testing.T) {
	// byBytes dominates: 1e9 bytes * 0.1 / 1MB ≈ 95.4MB
	if got := EstimateIndexSizeMB(1_000_000_000, 100); got < 90 {
		t.Fatalf("expected byte-based estimate to dominate, got %v", got)
	}
	// byRows dominates: 10,000,000 rows * 3e-5 = 300MB
	if got := EstimateIndexSizeMB(1000, 10_000_000); got < 290 {
		t.Fatalf("expected row-based estimate to dominate, got %v", got)
	}
}

func TestWritePerfMonitor_RejectsOverCap(t *testing.T) {
	w := NewWritePerfMonitor(map[string]float64{"large": 0.1})
	w.RecordOverhead("orders", 0.2)
	if allowed, reason := w.Check("orders", "large"); allowed || reason != "write_overhead_limit_exceeded" {
		t.Fatalf("expected rejection over write overhead cap, got allowed=%v reason=%q", allowed, reason)
	}
}

func TestWritePerfMonitor_AllowsWithNoPriorObservation(t *testing.T) {
	w := NewWritePerfMonitor(map[string]float64{"large": 0.1})
	if allowed, _ := w.Check("never_seen", "large"); !allowed {
		t.Fatal("expected allow when no overhead has been recorded yet")
	}
}

func TestCPUThrottle_DefersAboveThreshold(t *testing.T) {
	c := NewCPUThrottle(0.8, func(ctx context.Context) float64 { return 0.95 })
	throttle, reason, _ := c.Throttle(context.Background())
	if !throttle || reason != "cpu_throttled" {
		t.Fatalf("expected throttle above threshold, got throttle=%v reason=%q", throttle, reason)
	}
}

func TestCPUThrottle_NoLoadFnNeverThrottles(t *testing.T) {
	c := NewCPUThrottle(0.8, nil)
	throttle, _, _ := c.Throttle(context.Background())
	if throttle {
		t.Fatal("expected no throttle with a nil load function")
	}
}

func TestApprovalStore_RequestDecideList(t *testing.T) {
	var persisted []ApprovalRequest
	store := NewApprovalStore(func(ctx context.Context, r ApprovalRequest) {
		persisted = append(persisted, r)
	})

	req := store.Request(context.Background(), "idx_orders_customer_id", "CREATE INDEX ...", "cost_benefit_positive", "orders", "customer_id", 0.9, "")
	if req.Status != ApprovalPending {
		t.Fatalf("expected new request to be pending, got %q", req.Status)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected persist hook to fire once, got %d", len(persisted))
	}

	if list := store.List(); len(list) != 1 {
		t.Fatalf("expected 1 pending request listed, got %d", len(list))
	}

	if err := store.Decide(req.ID, true); err != nil {
		t.Fatalf("unexpected error deciding: %v", err)
	}
	status, ok := store.Status(req.ID)
	if !ok || status != ApprovalApproved {
		t.Fatalf("expected approved status, got %q ok=%v", status, ok)
	}
	if list := store.List(); len(list) != 0 {
		t.Fatalf("expected decided requests to drop out of the pending list, got %d", len(list))
	}
}

func TestApprovalStore_DecideUnknownIDErrors(t *testing.T) {
	store := NewApprovalStore(nil)
	if err := store.Decide("does-not-exist", true); err == nil {
		t.Fatal("expected error deciding an unknown approval ID")
	}
}
