package cache

import (
	"sync"
	"testing"
	"time"
)

// withFakeNow pins the cache's clock so expiry can be tested without
// sleeping. Eviction timers still run on the real clock but the lazy
// Get path is what's under test.
func withFakeNow[K comparable, V any](c *Cache[K, V], t *time.Time) {
	c.now = func() time.Time { return *t }
}

func TestCacheSetGet(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	c.Set("a", 1, time.Minute)

	got, ok := c.Get("a")
	if !ok || got != 1 {
		t.Fatalf("got %d, ok=%v", got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected absent for missing key")
	}
}

func TestCacheExpiresPerEntryTTL(t *testing.T) {
	c := New[string, string]()
	defer c.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withFakeNow(c, &now)

	c.Set("short", "a", time.Minute)
	c.Set("long", "b", time.Hour)

	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("short"); ok {
		t.Error("short entry should have expired against its own ttl")
	}
	if v, ok := c.Get("long"); !ok || v != "b" {
		t.Errorf("long entry should survive: %q, ok=%v", v, ok)
	}
}

func TestCacheLazyEvictionHappensOnce(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withFakeNow(c, &now)

	c.Set("k", 7, time.Second)
	now = now.Add(2 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get("k")
		}()
	}
	wg.Wait()

	if c.Len() != 0 {
		t.Errorf("expired entry still present, len=%d", c.Len())
	}
}

func TestCacheDeleteCancelsTimer(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	c.Set("k", 1, time.Minute)
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry still readable")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d after delete", c.Len())
	}

	// Deleting again is a no-op.
	c.Delete("k")
}

func TestCacheClearKeepsAcceptingWrites(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("len = %d after clear", c.Len())
	}

	c.Set("c", 3, time.Minute)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("get after clear = %d, %t", v, ok)
	}
}

func TestCacheOverwriteReplacesEntry(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withFakeNow(c, &now)

	c.Set("k", 1, time.Second)
	c.Set("k", 2, time.Hour)

	// Past the first ttl but well inside the second.
	now = now.Add(time.Minute)

	v, ok := c.Get("k")
	if !ok || v != 2 {
		t.Errorf("got %d, ok=%v; overwrite should carry the new ttl", v, ok)
	}
}

func TestCacheTimerEviction(t *testing.T) {
	c := New[string, int]()
	defer c.Close()

	c.Set("k", 1, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("eviction timer never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCacheCloseStopsWrites(t *testing.T) {
	c := New[string, int]()
	c.Set("k", 1, time.Minute)
	c.Close()

	if c.Len() != 0 {
		t.Errorf("len = %d after close", c.Len())
	}

	c.Set("again", 2, time.Minute)
	if c.Len() != 0 {
		t.Error("closed cache accepted a write")
	}
}
