package safety

import (
	"sync"

	"github.com/google/uuid"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
	"github.com/eyeinthesky6/indexpilot-sub002/monitoring"
)

// CanaryStatus mirrors the data-model CanaryDeployment.status enum.
type CanaryStatus string

const (
	CanaryActive     CanaryStatus = "active"
	CanaryPromoted   CanaryStatus = "promoted"
	CanaryRolledBack CanaryStatus = "rolled_back"
)

// CanaryDeployment tracks a probabilistic traffic trial of a newly
// applied index.
type CanaryDeployment struct {
	ID               string
	IndexName        string
	Table            string
	CanaryPct        float64
	SuccessThreshold float64
	MinSamples       int
	Successes        int64
	Failures         int64
	Status           CanaryStatus
}

func (c *CanaryDeployment) samples() int64 { return c.Successes + c.Failures }

func (c *CanaryDeployment) successRate() float64 {
	total := c.samples()
	if total == 0 {
		return 0
	}
	return float64(c.Successes) / float64(total)
}

// CanaryRegistry holds every active canary, keyed by index name.
type CanaryRegistry struct {
	mu       sync.Mutex
	canaries map[string]*CanaryDeployment
	logger   *logging.Logger
}

func NewCanaryRegistry(logger *logging.Logger) *CanaryRegistry {
	return &CanaryRegistry{canaries: make(map[string]*CanaryDeployment), logger: logger}
}

// Register starts a canary trial for indexName.
func (r *CanaryRegistry) Register(indexName, table string, canaryPct, successThreshold float64, minSamples int) *CanaryDeployment {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &CanaryDeployment{
		ID:               uuid.New().String(),
		IndexName:        indexName,
		Table:            table,
		CanaryPct:        canaryPct,
		SuccessThreshold: successThreshold,
		MinSamples:       minSamples,
		Status:           CanaryActive,
	}
	r.canaries[indexName] = c
	return c
}

// RecordResult records a single canary-arm query outcome and, once
// MinSamples is reached, evaluates promotion/rollback. Once a canary's
// status leaves "active" it never returns to it (monotonicity, spec §8).
func (r *CanaryRegistry) RecordResult(indexName string, success bool) (CanaryStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.canaries[indexName]
	if !ok || c.Status != CanaryActive {
		if ok {
			return c.Status, false
		}
		return "", false
	}

	if success {
		c.Successes++
	} else {
		c.Failures++
	}

	rate := c.successRate()
	monitoring.SetCanarySuccessRate(indexName, rate)

	if c.samples() < int64(c.MinSamples) {
		return c.Status, false
	}

	switch {
	case rate >= c.SuccessThreshold:
		c.Status = CanaryPromoted
	case rate < 0.8*c.SuccessThreshold:
		c.Status = CanaryRolledBack
	default:
		return c.Status, false
	}

	r.logger.Info("canary transition",
		logging.IndexName(indexName), logging.String("new_status", string(c.Status)),
		logging.Float64("success_rate", rate))
	monitoring.RecordCanaryTransition(string(c.Status))
	return c.Status, true
}

// CanAttempt reports whether table may start a new create (spec §4.13
// gate 2): a table with an unresolved (still-active) canary trial
// blocks further creates until that trial promotes or rolls back.
func (r *CanaryRegistry) CanAttempt(table string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.canaries {
		if c.Table == table && c.Status == CanaryActive {
			return false, "canary_in_progress"
		}
	}
	return true, ""
}

// Get returns a copy of indexName's canary, or (zero, false).
func (r *CanaryRegistry) Get(indexName string) (CanaryDeployment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.canaries[indexName]
	if !ok {
		return CanaryDeployment{}, false
	}
	return *c, true
}
