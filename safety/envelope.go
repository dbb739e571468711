package safety

import (
	"context"
	"fmt"
)

// GateCandidate is the subset of a decision candidate the envelope
// needs to run its gates.
type GateCandidate struct {
	Table       string
	SizeClass   string
	Tenant      string
	StorageMB   float64
	Mode        string // apply | advisory
	IndexName   string
	SQL         string
	Reason      string
	Confidence  float64
	Field       string
}

// Envelope aggregates every C13 gate and runs them short-circuit in the
// numbered order of spec §4.13: circuit breaker, canary, rate limiter,
// maintenance window, storage budget, write guard, CPU throttle,
// approval.
type Envelope struct {
	Breakers    *CircuitBreakerRegistry
	Canaries    *CanaryRegistry
	RateLimiter *RateLimiter
	Window      *MaintenanceWindow
	Budget      *StorageBudget
	WriteGuard  *WritePerfMonitor
	CPU         *CPUThrottle
	Approvals   *ApprovalStore
}

// CheckPreCreate runs gates 1-6 of spec §4.13 in order: circuit
// breaker, canary, rate limiter, maintenance window, storage budget,
// write guard. It runs before the cost/fuser pipeline so an already-bad
// table short-circuits before any EXPLAIN or probe query is issued.
func (e *Envelope) CheckPreCreate(ctx context.Context, c GateCandidate) (bool, string) {
	if e.Breakers != nil {
		key := "index_creation_" + c.Table
		if !e.Breakers.Allow(key) {
			return false, "circuit_breaker_open"
		}
	}
	if e.Canaries != nil {
		if ok, reason := e.Canaries.CanAttempt(c.Table); !ok {
			return false, reason
		}
	}
	if e.RateLimiter != nil {
		if ok, retryAfter := e.RateLimiter.Allow(c.Table); !ok {
			return false, fmt.Sprintf("rate_limit_exceeded (retry after %ds)", int(retryAfter.Seconds()))
		}
	}
	if e.Window != nil {
		wait, skip := e.Window.WaitOrSkip()
		if skip {
			return false, fmt.Sprintf("outside_maintenance_window (wait %.1fh)", wait.Hours())
		}
	}
	if e.Budget != nil {
		if allowed, _, reason := e.Budget.Check(c.Tenant, c.StorageMB); !allowed {
			return false, reason
		}
	}
	if e.WriteGuard != nil {
		if ok, reason := e.WriteGuard.Check(c.Table, c.SizeClass); !ok {
			return false, reason
		}
	}
	return true, ""
}

// CheckApply runs gate 8 of spec §4.13: approval, in apply mode only.
// It runs separately from CheckPreCreate because it needs the
// candidate's finished SQL/index name/confidence, which only exist once
// the fuser has produced a decision. Gate 7 (CPU throttle) is enforced
// by db.LockedIndexCreate.Create immediately before the DDL statement
// itself runs, the latest point it can still abort the create.
// The first pass that sees an index name files a pending request; later
// passes reuse the stored request for that name and let the candidate
// through once it is approved.
func (e *Envelope) CheckApply(ctx context.Context, c GateCandidate) (bool, string) {
	if c.Mode == "apply" && e.Approvals != nil {
		var status ApprovalStatus
		e.Approvals.mu.Lock()
		for _, r := range e.Approvals.requests {
			if r.IndexName == c.IndexName && (status == "" || r.Status == ApprovalApproved || r.Status == ApprovalAutoApproved) {
				status = r.Status
			}
		}
		e.Approvals.mu.Unlock()
		if status == "" {
			status = e.Approvals.Request(ctx, c.IndexName, c.SQL, c.Reason, c.Table, c.Field, c.Confidence, c.Tenant).Status
		}
		if status != ApprovalApproved && status != ApprovalAutoApproved {
			return false, "awaiting_approval"
		}
	}
	return true, ""
}

// RecordOutcome records the circuit-breaker success/failure after a
// create attempt completes.
func (e *Envelope) RecordOutcome(table string, success bool) {
	if e.Breakers == nil {
		return
	}
	key := "index_creation_" + table
	if success {
		e.Breakers.RecordSuccess(key)
	} else {
		e.Breakers.RecordFailure(key)
	}
}

// CPUAllows wraps the CPU throttle gate for callers in db.CPUThrottle
// shape.
func (e *Envelope) Throttle(ctx context.Context) (bool, string, float64) {
	if e.CPU == nil {
		return false, "", 0
	}
	return e.CPU.Throttle(ctx)
}
