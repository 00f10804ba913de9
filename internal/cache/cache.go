// Package cache implements the generic, TTL-bounded, de-duplicating cache
// spec.md §9's redesign notes call for: "replace per-operation callable
// objects carrying raw references by a struct-owned Cache<K,V> with a
// pluggable loader and TTL". Adapters use it to hold the public market-data
// caches (order books, ticker, fiat conversion rates, exchange config) spec.md
// §1's Non-goals name as external collaborators — this package is the shape
// of that collaborator, not a specific exchange's data.
//
// No teacher file does this directly (0xtitan6-polymarket-mm's
// internal/market/book.go and market/scanner.go refresh their in-memory state
// ad hoc, each with its own mutex and staleness check); this generalizes that
// repeated shape into one reusable type.
package cache

import (
	"context"
	"sync"
	"time"
)

// Loader fetches a fresh value for key, invoked at most once per key for any
// set of concurrent callers racing a miss (in-flight de-duplication).
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// inflight tracks one in-progress Loader call so concurrent Get calls for the
// same key join it instead of issuing redundant requests.
type inflight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache is a generic, TTL-bounded cache with a pluggable loader and
// single-flight de-duplication of concurrent misses for the same key.
type Cache[K comparable, V any] struct {
	TTL    time.Duration
	Loader Loader[K, V]
	// Now overrides time.Now, for deterministic tests.
	Now func() time.Time

	mu       sync.Mutex
	entries  map[K]entry[V]
	inflight map[K]*inflight[V]
}

// New builds a Cache backed by loader, with entries considered fresh for ttl.
func New[K comparable, V any](ttl time.Duration, loader Loader[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		TTL:     ttl,
		Loader:  loader,
		entries: make(map[K]entry[V]),
	}
}

func (c *Cache[K, V]) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Get returns a fresh cached value for key, loading it (and joining any
// already-in-flight load for the same key) on a miss or expiry.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}

	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return waitFor(ctx, f)
	}

	f := &inflight[V]{done: make(chan struct{})}
	if c.inflight == nil {
		c.inflight = make(map[K]*inflight[V])
	}
	c.inflight[key] = f
	c.mu.Unlock()

	value, err := c.Loader(ctx, key)

	c.mu.Lock()
	f.value, f.err = value, err
	if err == nil {
		c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.TTL)}
	}
	delete(c.inflight, key)
	c.mu.Unlock()
	close(f.done)

	return value, err
}

// Invalidate discards any cached value for key, forcing the next Get to
// reload.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func waitFor[V any](ctx context.Context, f *inflight[V]) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
