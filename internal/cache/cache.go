// Package cache is the in-process cache-aside layer in front of a storage
// backend. Entries expire either when their absolute deadline passes or when
// they go unread for the sliding window, whichever comes first.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type entry[V any] struct {
	value V
	// deadline is the absolute expiration; the sliding window is the
	// ttlcache item TTL, extended on every hit.
	deadline time.Time
}

type Option[V any] func(*Cache[V])

// WithUpsertStamp registers a hook applied to values written through Upsert.
// The flag store uses it to finalize UpdatedAt at cache-write time, so reads
// immediately after a write observe the fresh timestamp.
func WithUpsertStamp[V any](stamp func(V) V) Option[V] {
	return func(c *Cache[V]) { c.stamp = stamp }
}

type Cache[V any] struct {
	enabled  bool
	absolute time.Duration
	stamp    func(V) V
	inner    *ttlcache.Cache[string, entry[V]]
}

// New builds a cache keyed by flag name. When enabled is false every
// operation degrades to a pass-through with no caching side effects.
func New[V any](enabled bool, absoluteTTL, slidingTTL time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{enabled: enabled, absolute: absoluteTTL}
	for _, opt := range opts {
		opt(c)
	}
	if !c.enabled {
		return c
	}
	c.inner = ttlcache.New(
		ttlcache.WithTTL[string, entry[V]](slidingTTL),
	)
	go c.inner.Start()
	return c
}

// GetOrCreate returns the cached value for key, invoking loader on a miss and
// caching its result. Concurrent misses may each invoke the loader; the last
// write wins, which is safe because backend loads are idempotent.
func (c *Cache[V]) GetOrCreate(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	if !c.enabled {
		return loader(ctx)
	}

	if item := c.inner.Get(key); item != nil {
		cached := item.Value()
		if time.Now().Before(cached.deadline) {
			return cached.value, nil
		}
		c.inner.Delete(key)
	}

	value, err := loader(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.inner.Set(key, entry[V]{value: value, deadline: time.Now().Add(c.absolute)}, ttlcache.DefaultTTL)
	return value, nil
}

// PeekIfPresent is a cache-only lookup: it never invokes a loader and does
// not extend the sliding window.
func (c *Cache[V]) PeekIfPresent(key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}
	item := c.inner.Get(key, ttlcache.WithDisableTouchOnHit[string, entry[V]]())
	if item == nil {
		return zero, false
	}
	cached := item.Value()
	if !time.Now().Before(cached.deadline) {
		c.inner.Delete(key)
		return zero, false
	}
	return cached.value, true
}

// Upsert replaces any stale entry with value after a successful write-through,
// restarting both expiration timers.
func (c *Cache[V]) Upsert(key string, value V) {
	if !c.enabled {
		return
	}
	c.inner.Delete(key)
	if c.stamp != nil {
		value = c.stamp(value)
	}
	c.inner.Set(key, entry[V]{value: value, deadline: time.Now().Add(c.absolute)}, ttlcache.DefaultTTL)
}

// Evict removes key unconditionally.
func (c *Cache[V]) Evict(key string) {
	if !c.enabled {
		return
	}
	c.inner.Delete(key)
}

// Stop terminates the background expiration loop.
func (c *Cache[V]) Stop() {
	if !c.enabled {
		return
	}
	c.inner.Stop()
}
