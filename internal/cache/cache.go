package cache

import (
	"sync"
	"time"
)

// Cache provides a simple in-memory cache whose entries expire after ttl
// without access
type Cache[V any] struct {
	data  map[string]V
	times map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
}

// NewCache creates a new cache with the specified TTL
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		data:  make(map[string]V),
		times: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, exists := c.data[key]
	if !exists || c.expired(key) {
		var zero V
		return zero, false
	}

	return val, true
}

// Set stores a value in the cache
func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = val
	c.times[key] = c.now()
}

// GetOrCreate returns the live value for key, storing create() if there is
// none, and refreshes the entry's expiry
func (c *Cache[V]) GetOrCreate(key string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, exists := c.data[key]
	if !exists || c.expired(key) {
		val = create()
		c.data[key] = val
	}
	c.times[key] = c.now()

	return val
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.data {
		if c.expired(key) {
			delete(c.data, key)
			delete(c.times, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// expired must be called with c.mu held
func (c *Cache[V]) expired(key string) bool {
	return c.now().Sub(c.times[key]) > c.ttl
}
