// Package cache memoizes remote fetches in a key-value backend with a
// time-to-live, and serves the last good value when a refetch fails.
//
// Entries are never evicted; they are overwritten only by a successful
// fetch. Concurrent fetches of the same key are not coalesced and the last
// write wins.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meetingd/internal/logging"
	"meetingd/internal/metrics"
	"meetingd/internal/store"
)

// DefaultTTL is used when a call passes a non-positive ttl.
const DefaultTTL = time.Hour

// Backend is the storage the cache writes through to.
type Backend = store.KV

// Fetcher produces a fresh value, typically a JSON response body.
type Fetcher func(ctx context.Context) ([]byte, error)

// Entry is a cached value.
type Entry struct {
	Key      string
	Value    []byte
	StoredAt time.Time
	// Stale is set when Value was served because the fetcher failed.
	Stale bool
}

// Cache is safe for concurrent use if its Backend is.
type Cache struct {
	backend   Backend
	now       func() time.Time
	logger    *logging.Logger
	metrics   *metrics.Set
	threshold int
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics the cache reports hits, misses and stale
// serves to.
func WithMetrics(m *metrics.Set) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithCompressThreshold sets the value size above which entries are
// compressed. Zero or negative disables compression.
func WithCompressThreshold(n int) Option {
	return func(c *Cache) { c.threshold = n }
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:   backend,
		now:       time.Now,
		threshold: DefaultCompressThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.WithComponent("cache")
	if c.metrics == nil {
		c.metrics = metrics.Discard()
	}
	return c
}

func storageKey(key string) string {
	return store.CachePrefix + key
}

// Fetch returns the entry for key if it was stored less than ttl ago.
// Otherwise it calls fetch and stores the result. If fetch fails and any
// earlier value exists, that value is returned with Stale set and a nil
// error; without one the fetch error is returned.
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	prior, found := c.lookup(ctx, key)
	if found && c.now().Sub(prior.StoredAt) < ttl {
		c.metrics.CacheHits.Inc()
		return prior, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		if found {
			c.metrics.CacheStale.Inc()
			c.logger.Warn("serving stale cache entry",
				"key", key,
				"age", c.now().Sub(prior.StoredAt).Round(time.Second),
				"error", err)
			prior.Stale = true
			return prior, nil
		}
		c.metrics.CacheFetchErrors.Inc()
		return Entry{}, fmt.Errorf("cache: fetch %s: %w", key, err)
	}

	c.metrics.CacheMisses.Inc()
	entry := Entry{Key: key, Value: value, StoredAt: c.now()}
	c.store(ctx, entry)
	return entry, nil
}

// Get returns the stored entry for key regardless of its age.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	return c.lookup(ctx, key)
}

// Invalidate removes the entry for key so the next Fetch refetches.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Remove(ctx, storageKey(key)); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}

// Purge removes every cache entry and returns how many were removed. The
// backend must implement store.Lister.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	lister, ok := c.backend.(store.Lister)
	if !ok {
		return 0, fmt.Errorf("cache: backend %T cannot list entries", c.backend)
	}
	entries, err := lister.List(ctx, store.CachePrefix)
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	for i, e := range entries {
		if err := c.backend.Remove(ctx, e.Key); err != nil {
			return i, fmt.Errorf("cache: purge %s: %w", e.Key, err)
		}
	}
	return len(entries), nil
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	raw, ok, err := c.backend.Get(ctx, storageKey(key))
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	value, storedAt, err := decodeEnvelope(raw)
	if err != nil {
		c.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return Entry{}, false
	}
	return Entry{Key: key, Value: value, StoredAt: storedAt}, true
}

func (c *Cache) store(ctx context.Context, e Entry) {
	raw, err := encodeEnvelope(e.Value, e.StoredAt, c.threshold)
	if err == nil {
		err = c.backend.Set(ctx, storageKey(e.Key), raw)
	}
	if err != nil {
		c.logger.Warn("cache write failed", "key", e.Key, "error", err)
	}
}

// FetchJSON is Fetch followed by decoding the value into a T.
func FetchJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch Fetcher) (T, error) {
	var out T
	entry, err := c.Fetch(ctx, key, ttl, fetch)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(entry.Value, &out); err != nil {
		return out, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return out, nil
}
