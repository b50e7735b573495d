package cache

import (
	"strings"
	"sync"
	"time"
)

// Manager is a run-scoped TTL cache for expensive read calls (provider
// listings, registry listings, node lookups). Each run owns a fresh
// instance; there is no cross-run persistence.
type Manager interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error)
	Delete(key string)
	Clear()
	Stats() Stats
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// Key builds a composite cache key from an operation name and its scope
// parameters (provider, region, node path).
func Key(op string, parts ...string) string {
	return op + ":" + strings.Join(parts, "/")
}

type memoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
	stats Stats
}

type cacheItem struct {
	value  interface{}
	expiry time.Time
}

// NewManager returns an in-memory Manager with lazy TTL expiry. Entries
// are bounded by scope cardinality, so no active sweep is needed.
func NewManager() Manager {
	return &memoryCache{items: make(map[string]*cacheItem)}
}

func (c *memoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if !item.expiry.IsZero() && time.Now().After(item.expiry) {
		delete(c.items, key)
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return item.value, true
}

func (c *memoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	c.items[key] = &cacheItem{value: value, expiry: expiry}
}

// GetOrCompute returns the memoized value when fresh, otherwise invokes
// compute and stores its result. The computation runs outside the lock:
// concurrent misses on the same key may each compute once, which is
// acceptable because the cached reads are idempotent. Errors are never
// cached.
func (c *memoryCache) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = int64(len(c.items))
	return stats
}
