package cache

import (
	"context"
	"sync"
	"time"
)

// TTL is a small in-process freshness cache with single-flight refresh:
// a fresh entry is served directly, an expired entry triggers exactly one
// refetch, and requests arriving during a refresh wait for the in-flight
// result instead of fetching again. A failed refetch serves the last
// successful value, so lookups never hard-fail once a value has been seen.
type TTL[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*ttlEntry[T]
	now     func() time.Time
}

type ttlEntry[T any] struct {
	value     T
	fetchedAt time.Time
	ok        bool
	inflight  chan struct{}
}

// NewTTL builds a cache whose entries stay fresh for ttl.
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		ttl:     ttl,
		entries: make(map[string]*ttlEntry[T]),
		now:     time.Now,
	}
}

// Get returns the cached value for key, refreshing through fetch when the
// entry is missing or stale. The second return is false only when no fetch
// has ever succeeded for the key.
func (c *TTL[T]) Get(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, bool) {
	c.mu.Lock()
	e, exists := c.entries[key]
	if !exists {
		e = &ttlEntry[T]{}
		c.entries[key] = e
	}

	if e.ok && c.now().Sub(e.fetchedAt) < c.ttl {
		v := e.value
		c.mu.Unlock()
		return v, true
	}

	if e.inflight != nil {
		done := e.inflight
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		c.mu.Lock()
		v, ok := e.value, e.ok
		c.mu.Unlock()
		return v, ok
	}

	done := make(chan struct{})
	e.inflight = done
	c.mu.Unlock()

	v, err := fetch(ctx)

	c.mu.Lock()
	e.inflight = nil
	if err == nil {
		e.value = v
		e.fetchedAt = c.now()
		e.ok = true
	}
	// on error the previous value, if any, stays and is served stale
	value, ok := e.value, e.ok
	c.mu.Unlock()
	close(done)

	return value, ok
}

// Put installs a value directly, marking it fresh as of now. Used to warm
// the cache from a persisted snapshot at startup.
func (c *TTL[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[key]
	if !exists {
		e = &ttlEntry[T]{}
		c.entries[key] = e
	}
	e.value = value
	e.fetchedAt = c.now()
	e.ok = true
}

// Invalidate forgets the entry for key.
func (c *TTL[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
