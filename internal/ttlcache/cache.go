// Package ttlcache provides the process-local cache tier: a size-bounded LRU
// whose entries expire after a fixed time-to-live, with hit and miss
// counters and an explicit Reset.
package ttlcache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds a cache created without WithMaxEntries.
const DefaultMaxEntries = 10000

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats reports cache effectiveness since creation or the last Reset.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is a TTL cache keyed by string. Concurrent Get and Set are safe;
// concurrent writers to the same key resolve last-write-wins. When full,
// the least recently used entry is dropped.
type Cache[V any] struct {
	lru *expirable.LRU[string, entry[V]]
	ttl time.Duration
	now func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries caps the number of live entries.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithClock replaces time.Now when judging expiry, for tests. The
// underlying LRU still sweeps entries on wall-clock time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{ttl: ttl, now: o.now}
	c.lru = expirable.NewLRU[string, entry[V]](o.maxEntries, func(string, entry[V]) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)
	if ok && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// GetMany returns the live values for keys and the keys that missed, in input order.
func (c *Cache[V]) GetMany(keys []string) (map[string]V, []string) {
	found := make(map[string]V, len(keys))
	var missing []string
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			found[k] = v
			continue
		}
		missing = append(missing, k)
	}
	return found, missing
}

// Set stores value under key with the cache's TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, entry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters. Evictions counts every
// entry dropped: expired, pushed out by the size cap, or deleted.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// Reset drops every entry and zeroes the counters.
func (c *Cache[V]) Reset() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}
