package cache

import (
	"context"
	"time"
)

// Cache defines the interface for all cache implementations
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, error)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes all entries
	Clear(ctx context.Context) error

	// GetMulti retrieves multiple values at once
	GetMulti(ctx context.Context, keys []string) (map[string]interface{}, error)

	// SetMulti stores multiple values at once
	SetMulti(ctx context.Context, items map[string]interface{}, ttl time.Duration) error

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance metrics
type CacheStats struct {
	Hits       int64
	Misses     int64
	Sets       int64
	Deletes    int64
	Evictions  int64
	Size       int64
	HitRate    float64
	AvgGetTime time.Duration
	AvgSetTime time.Duration
}

// CacheKey generates a cache key with namespace
func CacheKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// CacheTTL constants for different data types
const (
	// Catalog entries (C1 whitelist) change only on schema migration.
	TTL_Catalog_Entry = 1 * time.Hour

	// Table size and field profile estimates (C4 probe) are cheap to
	// recompute but expensive enough per-table to cache briefly.
	TTL_Table_Size    = 10 * time.Minute
	TTL_Field_Profile = 10 * time.Minute

	// Adaptive thresholds (C14) and canary state move every pass.
	TTL_Threshold_State = 1 * time.Minute
	TTL_Canary_State    = 1 * time.Minute

	// Circuit breaker state must be nearly live.
	TTL_Breaker_State = 5 * time.Second

	// No expiration
	TTL_Permanent = 0
)

// Cache namespaces
const (
	NS_Catalog   = "catalog"
	NS_TableSize = "tablesize"
	NS_Profile   = "profile"
	NS_Threshold = "threshold"
	NS_Canary    = "canary"
	NS_Breaker   = "breaker"
)
