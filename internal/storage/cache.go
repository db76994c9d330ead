package storage

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/nkkko/lista/internal/metrics"
)

// Cache is a read cache in front of the key-value store
type Cache struct {
	entries    *lru.TwoQueueCache
	mutex      sync.RWMutex
	metrics    *metrics.Metrics
	expiration time.Duration
}

// cacheItem represents an item in the cache with an expiration time
type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewCache creates a new cache with the given capacity
func NewCache(capacity int, expiration time.Duration) (*Cache, error) {
	entries, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}

	return &Cache{
		entries:    entries,
		metrics:    metrics.GetMetrics(),
		expiration: expiration,
	}, nil
}

// Get retrieves a copy of a cached value
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	value, found := c.entries.Get(key)
	if !found {
		c.metrics.StorageOperations.WithLabelValues("cache_miss", "true").Inc()
		return nil, false
	}

	item := value.(cacheItem)
	if time.Now().After(item.expiration) {
		c.entries.Remove(key)
		c.metrics.StorageOperations.WithLabelValues("cache_expired", "true").Inc()
		return nil, false
	}

	c.metrics.StorageOperations.WithLabelValues("cache_hit", "true").Inc()
	return append([]byte(nil), item.value...), true
}

// Set adds a copy of value to the cache
func (c *Cache) Set(key string, value []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries.Add(key, cacheItem{
		value:      append([]byte(nil), value...),
		expiration: time.Now().Add(c.expiration),
	})
}

// Remove evicts key from the cache
func (c *Cache) Remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries.Remove(key)
}

// Len returns the number of cached entries, expired ones included
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries.Purge()
}
