package cache

import (
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

const rejectedPrefix = "rejected:"

// Rejections remembers product ids whose pages failed the cotton gate so
// later runs can skip them
type Rejections struct {
	cache CacheService
	ttl   time.Duration
}

// NewRejections wraps a cache. A nil cache disables remembering.
func NewRejections(cache CacheService, ttl time.Duration) *Rejections {
	return &Rejections{cache: cache, ttl: ttl}
}

// Seen reports whether the product id was rejected within the TTL
func (r *Rejections) Seen(productID string) bool {
	if r == nil || r.cache == nil {
		return false
	}
	_, err := r.cache.Get(rejectedPrefix + productID)
	return err == nil
}

// Remember records a rejected product id
func (r *Rejections) Remember(productID string) error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Set(rejectedPrefix+productID, []byte{1}, r.ttl)
}
