// Package cache provides a keyed store with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
	evict      *time.Timer
}

// Cache evicts entries once their ttl elapses from insertion (no
// sliding expiry). Entries are removed exactly once, either by the
// eviction timer or lazily by a Get that observes the entry expired.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	now     func() time.Time
	closed  bool
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		now:     time.Now,
	}
}

// Set stores value under key and schedules eviction after ttl. An
// existing entry for the same key is replaced and its timer cancelled,
// so timers never leak. A ttl <= 0 stores nothing.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if old, ok := c.entries[key]; ok {
		old.evict.Stop()
	}

	e := &entry[V]{
		value:      value,
		insertedAt: c.now(),
		ttl:        ttl,
	}
	e.evict = time.AfterFunc(ttl, func() {
		c.remove(key, e)
	})
	c.entries[key] = e
}

// Get returns the value for key if it has not expired. Each entry is
// checked against the ttl it was stored with.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.insertedAt) >= e.ttl {
		// Timer hasn't fired yet; evict here instead.
		e.evict.Stop()
		delete(c.entries, key)
		return zero, false
	}

	return e.value, true
}

// Delete removes key and cancels its eviction timer. Used to
// proactively invalidate entries, e.g. the market list on market
// creation.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.evict.Stop()
		delete(c.entries, key)
	}
}

// Clear removes all entries and cancels their timers. Unlike Close,
// the cache keeps accepting writes.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		e.evict.Stop()
		delete(c.entries, key)
	}
}

// Len returns the number of stored entries, expired or not yet
// collected included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels all pending eviction timers and drops all entries.
// The cache accepts no writes afterwards.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		e.evict.Stop()
		delete(c.entries, key)
	}
	c.closed = true
}

// remove is the timer callback. The entry identity check keeps a stale
// timer from evicting a newer entry stored under the same key.
func (c *Cache[K, V]) remove(key K, e *entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
	}
}
