// Package memory provides an in-process cache.Cache backed by a bounded LRU
// with per-entry TTL. It replaces the unbounded per-process maps the system
// previously used for channel history: eviction is by least-recent use once
// MaxEntries is reached, and entries older than MaxAge are dropped on access
// regardless of their TTL.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/mnemohq/mnemo/pkg/cache"
)

const (
	// DefaultMaxEntries bounds the cache size when Config.MaxEntries is zero.
	DefaultMaxEntries = 4096

	// DefaultMaxAge bounds entry lifetime when Config.MaxAge is zero.
	DefaultMaxAge = time.Hour
)

// Config holds configuration for the in-memory cache.
type Config struct {
	// MaxEntries is the maximum number of entries held across all
	// namespaces before LRU eviction kicks in.
	MaxEntries int

	// MaxAge is the hard upper bound on entry lifetime, applied on top of
	// per-entry TTLs.
	MaxAge time.Duration
}

type entry struct {
	key       string
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Cache implements cache.Cache with a mutex-guarded LRU.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxAge     time.Duration
	ll         *list.List
	items      map[string]*list.Element

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a bounded in-memory cache.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	return &Cache{
		maxEntries: maxEntries,
		maxAge:     maxAge,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the value for ns/key, or cache.ErrMiss when absent or expired.
func (c *Cache) Get(_ context.Context, ns, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.getLocked(cache.Key(ns, key))
}

func (c *Cache) getLocked(k string) ([]byte, error) {
	el, ok := c.items[k]
	if !ok {
		return nil, cache.ErrMiss
	}

	ent := el.Value.(*entry)
	now := c.now()
	if now.After(ent.expiresAt) || now.Sub(ent.storedAt) > c.maxAge {
		c.removeElement(el)
		return nil, cache.ErrMiss
	}

	c.ll.MoveToFront(el)
	return ent.value, nil
}

// Set stores the value under ns/key with the given TTL.
func (c *Cache) Set(_ context.Context, ns, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(cache.Key(ns, key), value, ttl)
	return nil
}

func (c *Cache) setLocked(k string, value []byte, ttl time.Duration) {
	now := c.now()
	if ttl <= 0 || ttl > c.maxAge {
		ttl = c.maxAge
	}

	if el, ok := c.items[k]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.storedAt = now
		ent.expiresAt = now.Add(ttl)
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{
		key:       k,
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	})
	c.items[k] = el

	for c.ll.Len() > c.maxEntries {
		c.removeElement(c.ll.Back())
	}
}

// GetOrSet returns the cached value, or computes and stores it via factory.
func (c *Cache) GetOrSet(ctx context.Context, ns, key string, ttl time.Duration, factory cache.Factory) ([]byte, error) {
	if v, err := c.Get(ctx, ns, key); err == nil {
		return v, nil
	}

	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	_ = c.Set(ctx, ns, key, v, ttl)
	return v, nil
}

// MGet returns one value per key, nil for misses.
func (c *Cache) MGet(_ context.Context, ns string, keys []string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(keys))
	for i, key := range keys {
		if v, err := c.getLocked(cache.Key(ns, key)); err == nil {
			out[i] = v
		}
	}

	return out, nil
}

// MSet stores all entries with a shared TTL.
func (c *Cache) MSet(_ context.Context, ns string, entries map[string][]byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range entries {
		c.setLocked(cache.Key(ns, key), value, ttl)
	}

	return nil
}

// ClearNamespace removes every entry in the namespace.
func (c *Cache) ClearNamespace(_ context.Context, ns string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := cache.Key(ns, "")
	for k, el := range c.items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.removeElement(el)
		}
	}

	return nil
}

// Len returns the current entry count across all namespaces.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ll.Len()
}

// Close is a no-op for the in-memory backend.
func (c *Cache) Close() error {
	return nil
}

func (c *Cache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, ent.key)
}

// SetClock overrides the cache's time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
