package core

// cache.go implements the read cache for filtered queries and statistics.
//
// Entries are derived snapshots keyed by query signature. Any successful
// write clears the whole cache; there is no partial eviction. A generation
// counter guards against a slow read repopulating the cache with a result
// computed before a concurrent write.

import (
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a cached read stays valid.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCacheCleanupInterval is how often expired entries are purged.
const DefaultCacheCleanupInterval = 10 * time.Minute

// StatisticsCacheKey is the fixed key for aggregate statistics.
const StatisticsCacheKey = "stats:v1"

const recordsKeyPrefix = "records:v1:"

// QueryCache is a TTL cache for derived, read-only query results.
type QueryCache struct {
	mu    sync.RWMutex
	items *gocache.Cache
	ttl   time.Duration
	gen   uint64
}

// NewQueryCache creates a cache whose entries expire after ttl.
func NewQueryCache(ttl, cleanup time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCacheCleanupInterval
	}
	return &QueryCache{
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// Get returns the cached value for key.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Get(key)
}

// Set stores value under key for the configured TTL.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Set(key, value, c.ttl)
}

// Generation returns a token that changes on every Clear.
func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetIfGeneration stores value only if no Clear happened since gen was read.
// Reports whether the value was stored.
func (c *QueryCache) SetIfGeneration(key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.items.Set(key, value, c.ttl)
	return true
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items.Flush()
}

// Len returns the number of live entries.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.ItemCount()
}

// TTL returns the entry lifetime.
func (c *QueryCache) TTL() time.Duration { return c.ttl }

// FilterCacheKey serializes a filter spec deterministically, so identical
// filters share an entry. "all" and surrounding whitespace are normalized away.
func FilterCacheKey(spec FilterSpec) string {
	b, err := json.Marshal(spec.Normalize())
	if err != nil {
		// FilterSpec holds only strings and times; Marshal cannot fail.
		panic(err)
	}
	return recordsKeyPrefix + string(b)
}
