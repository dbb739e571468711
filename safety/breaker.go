// Package safety implements the safety envelope (C13): circuit breaker,
// canary, rate limiter, maintenance window, storage budget, write
// guard, CPU throttle, and approval — all short-circuit gates run in
// the order of spec §4.13.
//
// The map+mutex+structured-log pattern here is adapted from the
// teacher's risk.CircuitBreakerManager; the state machine itself
// follows the three-state closed/open/half_open model spec §4.13 names,
// which the teacher's two-state (normal/tripped) breaker does not.
package safety

import (
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/monitoring"
)

// BreakerState is the circuit breaker's three states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker is a per-resource state machine.
type CircuitBreaker struct {
	State       BreakerState
	Failures    int
	Successes   int
	LastFailure time.Time
	OpenedAt    time.Time
}

// BreakerConfig holds the breaker's thresholds.
type BreakerConfig struct {
	FailureThreshold  int           // F, default 5
	SuccessThreshold  int           // S, default 2
	Timeout           time.Duration // default 60s
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 60 * time.Second}
}

// CircuitBreakerRegistry holds one CircuitBreaker per keyed resource
// (e.g. "index_creation_<table>"), guarded by a single mutex.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      BreakerConfig
	logger   *logging.Logger
}

func NewCircuitBreakerRegistry(cfg BreakerConfig, logger *logging.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{breakers: make(map[string]*CircuitBreaker), cfg: cfg, logger: logger}
}

func (r *CircuitBreakerRegistry) get(key string) *CircuitBreaker {
	b, ok := r.breakers[key]
	if !ok {
		b = &CircuitBreaker{State: StateClosed}
		r.breakers[key] = b
	}
	return b
}

// Allow reports whether key's breaker currently permits an attempt,
// transitioning open→half_open when the timeout has elapsed.
func (r *CircuitBreakerRegistry) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(key)
	switch b.State {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.OpenedAt) >= r.cfg.Timeout {
			b.State = StateHalfOpen
			b.Successes = 0
			r.logger.Info("circuit breaker half-open", logging.String("key", key))
			monitoring.SetCircuitBreakerState(key, stateGauge(b.State))
			return true
		}
		return false
	}
	return false
}

// RecordSuccess transitions half_open→closed after S successes; it is a
// no-op in the closed state besides resetting the failure counter.
func (r *CircuitBreakerRegistry) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(key)
	switch b.State {
	case StateClosed:
		b.Failures = 0
	case StateHalfOpen:
		b.Successes++
		if b.Successes >= r.cfg.SuccessThreshold {
			b.State = StateClosed
			b.Failures = 0
			b.Successes = 0
			r.logger.Info("circuit breaker closed", logging.String("key", key))
			monitoring.SetCircuitBreakerState(key, stateGauge(b.State))
		}
	}
}

// RecordFailure closed→open on reaching FailureThreshold; any failure
// in half_open returns immediately to open.
func (r *CircuitBreakerRegistry) RecordFailure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(key)
	b.LastFailure = time.Now()

	switch b.State {
	case StateClosed:
		b.Failures++
		if b.Failures >= r.cfg.FailureThreshold {
			b.State = StateOpen
			b.OpenedAt = time.Now()
			r.logger.Warn("circuit breaker open", logging.String("key", key), logging.Int("failures", b.Failures))
			monitoring.SetCircuitBreakerState(key, stateGauge(b.State))
			monitoring.RecordCircuitBreakerTrip(key)
		}
	case StateHalfOpen:
		b.State = StateOpen
		b.OpenedAt = time.Now()
		b.Successes = 0
		r.logger.Warn("circuit breaker re-open from half-open", logging.String("key", key))
		monitoring.SetCircuitBreakerState(key, stateGauge(b.State))
		monitoring.RecordCircuitBreakerTrip(key)
	}
}

// stateGauge maps a breaker state to the indexpilot_circuit_breaker_state
// gauge's numeric encoding (0=closed, 1=half_open, 2=open).
func stateGauge(s BreakerState) int {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Snapshot returns a copy of key's breaker state for metrics/tests.
func (r *CircuitBreakerRegistry) Snapshot(key string) CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.get(key)
}
