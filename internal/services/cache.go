package services

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// ResultCache memoizes expensive engine computations behind a single mutex.
// Entries expire after the configured TTL; an expired entry is removed under
// the lock during lookup, so concurrent callers on a cold key may both
// recompute. That duplicate work is acceptable, inconsistent reads are not.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewResultCache builds a cache with the given TTL. A zero or negative TTL
// disables storage entirely, which callers may use to bound staleness to
// nothing.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		now:     func() time.Time { return time.Now() },
		entries: map[string]cacheEntry{},
	}
}

// CacheKey canonicalizes a function identity plus its arguments into a
// deterministic key. Parts must not contain '|'.
func CacheKey(fn string, parts ...string) string {
	return fn + "|" + strings.Join(parts, "|")
}

// Get returns the cached value for key if present and fresh.
func (c *ResultCache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *ResultCache) Set(key string, value any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate removes the exact key.
func (c *ResultCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix atomically removes every entry whose key starts with
// prefix and reports how many were dropped. Used after new responses arrive
// to drop everything computed for an assessment.
func (c *ResultCache) InvalidatePrefix(prefix string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, counting expired ones that have
// not been touched yet.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
