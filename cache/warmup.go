package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// WarmupStrategy defines how to warm up the cache
type WarmupStrategy interface {
	// Warmup loads data into cache
	Warmup(ctx context.Context, cache *MultiTierCache) error

	// ShouldRefresh determines if cache should be refreshed
	ShouldRefresh() bool
}

// CacheWarmer manages cache warming on startup and periodic refresh
type CacheWarmer struct {
	cache      *MultiTierCache
	strategies []WarmupStrategy

	mu         sync.RWMutex
	lastWarmup time.Time
	warmupTime time.Duration

	// Configuration
	refreshInterval time.Duration
	enabled         bool
}

// NewCacheWarmer creates a new cache warmer
func NewCacheWarmer(cache *MultiTierCache) *CacheWarmer {
	return &CacheWarmer{
		cache:           cache,
		strategies:      make([]WarmupStrategy, 0),
		refreshInterval: 1 * time.Hour,
		enabled:         true,
	}
}

// AddStrategy adds a warmup strategy
func (w *CacheWarmer) AddStrategy(strategy WarmupStrategy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.strategies = append(w.strategies, strategy)
}

// Warmup executes all warmup strategies
func (w *CacheWarmer) Warmup(ctx context.Context) error {
	if !w.enabled {
		return nil
	}

	start := time.Now()
	log.Println("[CacheWarmer] Starting cache warmup...")

	w.mu.RLock()
	strategies := w.strategies
	w.mu.RUnlock()

	var wg sync.WaitGroup
	errors := make(chan error, len(strategies))

	for _, strategy := range strategies {
		wg.Add(1)
		go func(s WarmupStrategy) {
			defer wg.Done()
			if err := s.Warmup(ctx, w.cache); err != nil {
				errors <- err
			}
		}(strategy)
	}

	wg.Wait()
	close(errors)

	var errs []error
	for err := range errors {
		errs = append(errs, err)
	}

	duration := time.Since(start)
	w.mu.Lock()
	w.lastWarmup = time.Now()
	w.warmupTime = duration
	w.mu.Unlock()

	if len(errs) > 0 {
		log.Printf("[CacheWarmer] Warmup completed with errors in %v: %v", duration, errs)
		return fmt.Errorf("warmup completed with %d errors", len(errs))
	}

	log.Printf("[CacheWarmer] Cache warmup completed successfully in %v", duration)
	return nil
}

// StartPeriodicRefresh starts periodic cache refresh
func (w *CacheWarmer) StartPeriodicRefresh(ctx context.Context) {
	if !w.enabled {
		return
	}

	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			strategies := w.strategies
			w.mu.RUnlock()

			for _, strategy := range strategies {
				if strategy.ShouldRefresh() {
					if err := strategy.Warmup(ctx, w.cache); err != nil {
						log.Printf("[CacheWarmer] Refresh error: %v", err)
					}
				}
			}
		}
	}
}

// SetRefreshInterval sets the refresh interval
func (w *CacheWarmer) SetRefreshInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshInterval = interval
}

// SetEnabled enables/disables cache warming
func (w *CacheWarmer) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

// Stats returns warmup statistics
func (w *CacheWarmer) Stats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]interface{}{
		"last_warmup":      w.lastWarmup,
		"warmup_duration":  w.warmupTime,
		"refresh_interval": w.refreshInterval,
		"strategies_count": len(w.strategies),
		"enabled":          w.enabled,
	}
}

// Common warmup strategies for the index advisor's own caches.

// CatalogWarmup preloads the genome_catalog whitelist (C1) on startup so
// the validator's first pass doesn't stall on cold cache misses.
type CatalogWarmup struct {
	loader func(ctx context.Context) (map[string]string, error) // "table.field" -> field type
}

func NewCatalogWarmup(loader func(ctx context.Context) (map[string]string, error)) *CatalogWarmup {
	return &CatalogWarmup{loader: loader}
}

func (c *CatalogWarmup) Warmup(ctx context.Context, cache *MultiTierCache) error {
	entries, err := c.loader(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	items := make(map[string]interface{})
	for tableField, fieldType := range entries {
		items[CacheKey(NS_Catalog, tableField)] = fieldType
	}

	if err := cache.SetMulti(ctx, items, TTL_Catalog_Entry); err != nil {
		return fmt.Errorf("failed to cache catalog entries: %w", err)
	}

	log.Printf("[CacheWarmer] Loaded %d catalog entries", len(entries))
	return nil
}

func (c *CatalogWarmup) ShouldRefresh() bool {
	return true // the catalog can change between passes via migration
}

// TableSizeWarmup preloads row/byte counts (C4 probe) for every table
// the advisor reasons about, so the first decision pass of the day
// doesn't pay for a cold pg_class scan per table.
type TableSizeWarmup struct {
	loader func(ctx context.Context) (map[string]interface{}, error)
}

func NewTableSizeWarmup(loader func(ctx context.Context) (map[string]interface{}, error)) *TableSizeWarmup {
	return &TableSizeWarmup{loader: loader}
}

func (t *TableSizeWarmup) Warmup(ctx context.Context, cache *MultiTierCache) error {
	sizes, err := t.loader(ctx)
	if err != nil {
		return fmt.Errorf("failed to load table sizes: %w", err)
	}

	items := make(map[string]interface{})
	for table, size := range sizes {
		items[CacheKey(NS_TableSize, table)] = size
	}

	if err := cache.SetMulti(ctx, items, TTL_Table_Size); err != nil {
		return fmt.Errorf("failed to cache table sizes: %w", err)
	}

	log.Printf("[CacheWarmer] Loaded %d table size estimates", len(sizes))
	return nil
}

func (t *TableSizeWarmup) ShouldRefresh() bool {
	return true // sizes drift as tables grow between passes
}
