// Package cache provides the bounded least-recently-used cache shared by the
// resolver and the content loader.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/importsize/importsize/internal/observability"
)

// DefaultCapacity is the number of entries kept when no capacity is configured.
const DefaultCapacity = 50

// LRU is a fixed-capacity key/value store with least-recently-used eviction.
// Get refreshes recency; Set of a new key at capacity evicts exactly the oldest entry.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	name    string
	inner   *lru.Cache[K, V]
	metrics *observability.Metrics
	onEvict func(K, V)
}

// Option configures an LRU
type Option[K comparable, V any] func(*LRU[K, V])

// WithEvictHook registers fn to be called with every evicted entry
func WithEvictHook[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithMetrics records hits, misses and evictions under the given cache name
func WithMetrics[K comparable, V any](name string, m *observability.Metrics) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.name = name
		c.metrics = m
	}
}

// New creates a cache holding at most capacity entries
func New[K comparable, V any](capacity int, opts ...Option[K, V]) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}

	c := &LRU[K, V]{name: "default"}
	for _, opt := range opts {
		opt(c)
	}

	inner, err := lru.NewWithEvict[K, V](capacity, func(key K, value V) {
		c.metrics.RecordCacheEviction(c.name)
		if c.onEvict != nil {
			c.onEvict(key, value)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	c.inner = inner

	return c, nil
}

// Get returns the value for key and marks it most recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	value, ok := c.inner.Get(key)
	if ok {
		c.metrics.RecordCacheHit(c.name)
	} else {
		c.metrics.RecordCacheMiss(c.name)
	}
	return value, ok
}

// Set stores value under key and marks it most recently used
func (c *LRU[K, V]) Set(key K, value V) {
	c.inner.Add(key, value)
}

// Len returns the number of cached entries
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}
