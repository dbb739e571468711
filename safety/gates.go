package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter gates per-table index creation rate with a per-key counter
// that resets one hour after that key's current window started. key is
// typically the table name.
type RateLimiter struct {
	mu              sync.Mutex
	creationsPerHr  float64
	burst           int
	perTable        map[string]TableLimit
	counts          map[string]int
	windowStart     map[string]time.Time
	cleanupInterval time.Duration
}

// TableLimit overrides the global rate for one table.
type TableLimit struct {
	CreationsPerHour float64
	BurstSize        int
}

func NewRateLimiter(creationsPerHour float64, burst int, perTable map[string]TableLimit, cleanupInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		creationsPerHr:  creationsPerHour,
		burst:           burst,
		perTable:        perTable,
		counts:          make(map[string]int),
		windowStart:     make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
	}
}

// Allow reports whether key may proceed, and if not, how long to wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.creationsPerHr
	burst := rl.burst
	if tl, ok := rl.perTable[key]; ok {
		limit = tl.CreationsPerHour
		burst = tl.BurstSize
	}

	now := time.Now()
	start, ok := rl.windowStart[key]
	if !ok || now.Sub(start) >= time.Hour {
		rl.windowStart[key] = now
		rl.counts[key] = 0
		start = now
	}

	capWithBurst := int(limit) + burst
	if rl.counts[key] >= capWithBurst {
		retryAfter := time.Hour - now.Sub(start)
		return false, retryAfter
	}
	rl.counts[key]++
	return true, 0
}

// MaintenanceWindow gates batch-mode DDL to a preferred local-hour range.
type MaintenanceWindow struct {
	StartHour int
	EndHour   int
	MaxWait   time.Duration
	now       func() time.Time
}

func NewMaintenanceWindow(startHour, endHour int, maxWait time.Duration) *MaintenanceWindow {
	return &MaintenanceWindow{StartHour: startHour, EndHour: endHour, MaxWait: maxWait, now: time.Now}
}

// IsOpen reports whether the current local hour falls in [StartHour, EndHour).
func (m *MaintenanceWindow) IsOpen() bool {
	h := m.now().Hour()
	if m.StartHour <= m.EndHour {
		return h >= m.StartHour && h < m.EndHour
	}
	return h >= m.StartHour || h < m.EndHour // wraps past midnight
}

// WaitOrSkip computes the wait until the window opens; if it exceeds
// maxWait, the candidate is skipped.
func (m *MaintenanceWindow) WaitOrSkip() (wait time.Duration, skip bool) {
	if m.IsOpen() {
		return 0, false
	}
	now := m.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), m.StartHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	wait = next.Sub(now)
	return wait, wait > m.MaxWait
}

// StorageBudget caps projected index storage, globally and per tenant.
type StorageBudget struct {
	mu             sync.Mutex
	globalCapMB    float64
	perTenantCapMB map[string]float64
	usedGlobalMB   float64
	usedPerTenant  map[string]float64
}

func NewStorageBudget(globalCapMB float64, perTenantCapMB map[string]float64) *StorageBudget {
	return &StorageBudget{
		globalCapMB:    globalCapMB,
		perTenantCapMB: perTenantCapMB,
		usedPerTenant:  make(map[string]float64),
	}
}

// EstimateIndexSizeMB picks max(tableBytes*0.1, rows*3e-5) MB, per the
// Open Question resolution in spec §9 (pick the max of the two
// estimates rather than either alone).
func EstimateIndexSizeMB(tableBytes int64, rows int64) float64 {
	byBytes := float64(tableBytes) * 0.1 / (1024 * 1024)
	byRows := float64(rows) * 3e-5
	if byBytes > byRows {
		return byBytes
	}
	return byRows
}

// Check reports whether projecting mb more usage (optionally scoped to
// tenant) stays within budget.
func (s *StorageBudget) Check(tenant string, mb float64) (allowed bool, warning bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usedGlobalMB+mb > s.globalCapMB {
		return false, false, "storage_budget_exceeded"
	}
	if tenant != "" {
		cap, ok := s.perTenantCapMB[tenant]
		if ok && s.usedPerTenant[tenant]+mb > cap {
			return false, false, "storage_budget_exceeded"
		}
	}

	warn := s.usedGlobalMB+mb > s.globalCapMB*0.8
	return true, warn, ""
}

// Commit records mb as consumed after a successful create.
func (s *StorageBudget) Commit(tenant string, mb float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usedGlobalMB += mb
	if tenant != "" {
		s.usedPerTenant[tenant] += mb
	}
}

// WritePerfMonitor estimates the write-latency overhead a new index
// would impose, pre/post monitoring of observed write latency.
type WritePerfMonitor struct {
	mu        sync.Mutex
	overheads map[string]float64 // table -> last known overhead pct
	capByClass map[string]float64 // size class -> max allowed overhead pct
}

func NewWritePerfMonitor(capByClass map[string]float64) *WritePerfMonitor {
	return &WritePerfMonitor{overheads: make(map[string]float64), capByClass: capByClass}
}

// RecordOverhead stores the last-observed write overhead for table.
func (w *WritePerfMonitor) RecordOverhead(table string, overheadPct float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.overheads[table] = overheadPct
}

// Check rejects when the last-known overhead exceeds the table-class cap.
func (w *WritePerfMonitor) Check(table, sizeClass string) (allowed bool, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	overhead, ok := w.overheads[table]
	if !ok {
		return true, ""
	}
	cap, ok := w.capByClass[sizeClass]
	if !ok {
		return true, ""
	}
	if overhead > cap {
		return false, "write_overhead_limit_exceeded"
	}
	return true, ""
}

// CPUThrottle rejects candidates when measured load exceeds a threshold.
type CPUThrottle struct {
	mu        sync.Mutex
	threshold float64
	loadFn    func(ctx context.Context) float64
}

func NewCPUThrottle(threshold float64, loadFn func(ctx context.Context) float64) *CPUThrottle {
	return &CPUThrottle{threshold: threshold, loadFn: loadFn}
}

// Throttle reports whether the candidate should be deferred and why,
// satisfying db.CPUThrottle as well.
func (c *CPUThrottle) Throttle(ctx context.Context) (bool, string, float64) {
	if c.loadFn == nil {
		return false, "", 0
	}
	load := c.loadFn(ctx)
	if load > c.threshold {
		return true, "cpu_throttled", 5.0
	}
	return false, "", 0
}

// IndexCountGuard caps the number of auto-created indexes per table and,
// optionally, per tenant — the fuser's stage 5 "constraint optimizer"
// hard cap from spec §4.9.
type IndexCountGuard struct {
	mu             sync.Mutex
	maxPerTable    int
	maxPerTenant   map[string]int
	countsByTable  map[string]int
	countsByTenant map[string]int
}

func NewIndexCountGuard(maxPerTable int, maxPerTenant map[string]int) *IndexCountGuard {
	return &IndexCountGuard{
		maxPerTable:    maxPerTable,
		maxPerTenant:   maxPerTenant,
		countsByTable:  make(map[string]int),
		countsByTenant: make(map[string]int),
	}
}

// Check reports whether table (optionally scoped to tenant) is still
// under its index-count cap. On violation it returns the stable
// taxonomy tag from spec §7: max_indexes_per_table_reached_<n>_<max>.
func (g *IndexCountGuard) Check(table, tenant string) (allowed bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxPerTable > 0 && g.countsByTable[table] >= g.maxPerTable {
		return false, fmt.Sprintf("max_indexes_per_table_reached_%d_%d", g.countsByTable[table], g.maxPerTable)
	}
	if tenant != "" {
		if max, ok := g.maxPerTenant[tenant]; ok && max > 0 && g.countsByTenant[tenant] >= max {
			return false, fmt.Sprintf("max_indexes_per_tenant_reached_%d_%d", g.countsByTenant[tenant], max)
		}
	}
	return true, ""
}

// Record increments table/tenant counts after a successful create.
func (g *IndexCountGuard) Record(table, tenant string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.countsByTable[table]++
	if tenant != "" {
		g.countsByTenant[tenant]++
	}
}

// ApprovalStatus mirrors the data-model ApprovalRequest.status enum.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
)

// ApprovalRequest is a pending request for DDL in apply mode.
type ApprovalRequest struct {
	ID         string
	IndexName  string
	SQL        string
	Reason     string
	Confidence float64
	Tenant     string
	Table      string
	Field      string
	Status     ApprovalStatus
}

// ApprovalStore is the default in-process ApprovalService realization.
// Requests are kept in memory only; the persist callback passed to
// NewApprovalStore is invoked once for each new request.
type ApprovalStore struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest
	persist  func(ctx context.Context, r ApprovalRequest)
}

func NewApprovalStore(persist func(ctx context.Context, r ApprovalRequest)) *ApprovalStore {
	return &ApprovalStore{requests: make(map[string]*ApprovalRequest), persist: persist}
}

// Request creates a pending approval request and returns its ID.
func (a *ApprovalStore) Request(ctx context.Context, indexName, sql, reason, table, field string, confidence float64, tenant string) ApprovalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	req := &ApprovalRequest{
		ID: uuid.New().String(), IndexName: indexName, SQL: sql, Reason: reason,
		Confidence: confidence, Tenant: tenant, Table: table, Field: field,
		Status: ApprovalPending,
	}
	a.requests[req.ID] = req
	if a.persist != nil {
		a.persist(ctx, *req)
	}
	return *req
}

// Status looks up a request's current status.
func (a *ApprovalStore) Status(id string) (ApprovalStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.requests[id]
	if !ok {
		return "", false
	}
	return r.Status, true
}

// Decide transitions a pending request to approved or rejected.
func (a *ApprovalStore) Decide(id string, approve bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.requests[id]
	if !ok {
		return fmt.Errorf("approval request %q not found", id)
	}
	if approve {
		r.Status = ApprovalApproved
	} else {
		r.Status = ApprovalRejected
	}
	return nil
}

// List returns every pending request, for the admin HTTP surface.
func (a *ApprovalStore) List() []ApprovalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ApprovalRequest, 0, len(a.requests))
	for _, r := range a.requests {
		if r.Status == ApprovalPending {
			out = append(out, *r)
		}
	}
	return out
}
