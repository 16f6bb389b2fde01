// Package cache provides the read-through caches in front of path resolution
// and object attribute lookup.
//
// Caches never store negative results and are not safe for concurrent use:
// the directory service, their only writer, runs under the core token.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metrics"
)

// Stats reports the hit/miss counters of one cache.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache is a typed, size-bounded LRU cache.
type Cache[K comparable, V any] struct {
	name    string
	lru     *lru.Cache
	metrics metrics.MetadataMetrics
	hits    uint64
	misses  uint64
}

// New returns a cache holding at most size entries. m may be nil.
func New[K comparable, V any](name string, size int, m metrics.MetadataMetrics) *Cache[K, V] {
	l, err := lru.New(size)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	if m == nil {
		m = metrics.NewNoopMetadataMetrics()
	}
	return &Cache[K, V]{name: name, lru: l, metrics: m}
}

// Get returns the cached value of key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if v, ok := c.lru.Get(key); ok {
		c.hits++
		c.metrics.RecordCacheHit(c.name)
		return v.(V), true
	}
	c.misses++
	c.metrics.RecordCacheMiss(c.name)
	var zero V
	return zero, false
}

// GetOrLoad returns the cached value of key, calling load on a miss. Values
// load reports as not found are returned but not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func(K) (V, bool, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, found, err := load(key)
	if err != nil || !found {
		return v, found, err
	}
	c.lru.Add(key, v)
	return v, true, nil
}

// Put caches value under key.
func (c *Cache[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

// Invalidate drops key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
	c.metrics.RecordInvalidation(c.name, "entry")
}

// InvalidateAll drops every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.lru.Purge()
	c.metrics.RecordInvalidation(c.name, "all")
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.lru.Len()}
}

// Compound pairs the two key spaces of the directory service.
type Compound struct {
	// Paths maps Path.String() to the object it resolves to.
	Paths *Cache[string, metadata.SOID]

	// OAs maps an SOID to its validated attributes.
	OAs *Cache[metadata.SOID, *metadata.OA]
}

// NewCompound creates both caches. m may be nil.
func NewCompound(pathSize, oaSize int, m metrics.MetadataMetrics) *Compound {
	return &Compound{
		Paths: New[string, metadata.SOID]("path", pathSize, m),
		OAs:   New[metadata.SOID, *metadata.OA]("oa", oaSize, m),
	}
}

// InvalidateAll drops every entry of both caches.
func (c *Compound) InvalidateAll() {
	c.Paths.InvalidateAll()
	c.OAs.InvalidateAll()
}
