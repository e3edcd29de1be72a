package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed TTL cache. Entries expire after the TTL given at
// construction and are purged in the background.
type Cache[T any] struct {
	inner *gocache.Cache
}

// New creates a cache whose entries live for ttl. Expired entries are
// swept every ttl/2, with a floor of one minute.
func New[T any](ttl time.Duration) *Cache[T] {
	sweep := ttl / 2
	if sweep < time.Minute {
		sweep = time.Minute
	}
	return &Cache[T]{
		inner: gocache.New(ttl, sweep),
	}
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// Put stores value under key with the cache's default TTL.
func (c *Cache[T]) Put(key string, value T) {
	c.inner.Set(key, value, gocache.DefaultExpiration)
}

// Invalidate removes a single key.
func (c *Cache[T]) Invalidate(key string) {
	c.inner.Delete(key)
}

// InvalidateAll removes every entry.
func (c *Cache[T]) InvalidateAll() {
	c.inner.Flush()
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	return c.inner.ItemCount()
}
