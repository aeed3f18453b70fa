// Package cache provides a keyed cache whose entries expire after a per-entry TTL.
package cache

import (
	"sync"
	"time"
)

// Entry is one cached value with the time it was stored and how long it stays valid.
type Entry[V any] struct {
	Timestamp time.Time
	TTL       time.Duration
	Value     V
}

// Expired reports whether the entry is stale at now.
func (e *Entry[V]) Expired(now time.Time) bool {
	return now.Sub(e.Timestamp) >= e.TTL
}

// TTLCache maps keys to entries. Expiry is checked lazily when an entry is read; there is
// no background sweep and no size bound. Share one *TTLCache between the components that
// should see the same entries.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*Entry[V]
	now     func() time.Time
}

// NewTTLCache returns an empty cache.
func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{
		entries: make(map[string]*Entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key when present and not expired. A stale entry is removed.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if e.Expired(c.now()) {
		delete(c.entries, key)
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry[V]{Timestamp: c.now(), TTL: ttl, Value: value}
}

// Len returns the number of stored entries, including stale ones not yet read.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
