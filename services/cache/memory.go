package cache

import (
	"sync"
	"time"
)

type memoryItem struct {
	value      []byte
	expiration time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support
type MemoryCache struct {
	data  map[string]memoryItem
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryItem),
		now:  time.Now,
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mutex.RLock()
	item, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}

	if !item.expiration.IsZero() && c.now().After(item.expiration) {
		c.Delete(key)
		return nil, ErrCacheMiss
	}

	return item.value, nil
}

// Set stores a value in the cache with TTL. A zero TTL never expires.
func (c *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if expiration > 0 {
		item.expiration = c.now().Add(expiration)
	}
	c.data[key] = item
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}
