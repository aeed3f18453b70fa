package cache

import (
	"testing"
	"time"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := NewTTLCache[string]()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("a", "feed-a", 3*time.Minute)
	if v, ok := c.Get("a"); !ok || v != "feed-a" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	now = now.Add(179 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry should still be fresh just before ttl")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should expire at ttl")
	}
	if c.Len() != 0 {
		t.Errorf("stale entry should be evicted on read, Len = %d", c.Len())
	}
}

func TestTTLCache_LazyEviction(t *testing.T) {
	c := NewTTLCache[int]()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("x", 1, time.Second)
	c.Set("y", 2, time.Hour)
	now = now.Add(time.Minute)
	if c.Len() != 2 {
		t.Errorf("no background sweep expected, Len = %d", c.Len())
	}
	if _, ok := c.Get("x"); ok {
		t.Error("x should be expired")
	}
	if v, ok := c.Get("y"); !ok || v != 2 {
		t.Errorf("y = %d, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestTTLCache_SetOverwrites(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
	c.Set("z", 3, 0)
	if _, ok := c.Get("z"); ok {
		t.Error("zero ttl should not store")
	}
}
