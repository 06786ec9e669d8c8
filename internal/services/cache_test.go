package services

import (
	"testing"
	"time"
)

func TestResultCacheHitWithinTTL(t *testing.T) {
	c := NewResultCache(5 * time.Minute)
	key := CacheKey("fieldstats", "A1", "U1", "employee", "1")
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(key, 42)
	v, ok := c.Get(key)
	if !ok || v.(int) != 42 {
		t.Fatalf("expected hit with 42, got %v %v", v, ok)
	}
}

func TestResultCacheExpiry(t *testing.T) {
	c := NewResultCache(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(61 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", c.Len())
	}
}

func TestResultCacheComputesOncePerTTLWindow(t *testing.T) {
	c := NewResultCache(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	calls := 0
	compute := func() int {
		calls++
		return calls
	}
	lookup := func() int {
		if v, ok := c.Get("stat"); ok {
			return v.(int)
		}
		v := compute()
		c.Set("stat", v)
		return v
	}

	if lookup() != 1 || lookup() != 1 {
		t.Fatalf("expected both calls to see first computation, calls=%d", calls)
	}
	if calls != 1 {
		t.Fatalf("underlying computation ran %d times within TTL", calls)
	}
	now = now.Add(2 * time.Minute)
	if lookup() != 2 || calls != 2 {
		t.Fatalf("expected recomputation after TTL, calls=%d", calls)
	}
}

func TestResultCacheInvalidatePrefix(t *testing.T) {
	c := NewResultCache(time.Minute)
	c.Set(CacheKey("fieldstats", "A1", "U1"), 1)
	c.Set(CacheKey("fieldstats", "A1", "U2"), 2)
	c.Set(CacheKey("fieldstats", "A2", "U1"), 3)
	if n := c.InvalidatePrefix(CacheKey("fieldstats", "A1")); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get(CacheKey("fieldstats", "A2", "U1")); !ok {
		t.Fatal("unrelated key was dropped")
	}
}

func TestResultCacheNilSafe(t *testing.T) {
	var c *ResultCache
	if _, ok := c.Get("k"); ok {
		t.Fatal("nil cache must always miss")
	}
	c.Set("k", 1)
	c.Invalidate("k")
	if n := c.InvalidatePrefix("k"); n != 0 {
		t.Fatalf("nil cache removed %d", n)
	}
}
