package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")

	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("test_key", []byte("test_value"), 1*time.Second)
	assert.NoError(t, err)

	value, err := mc.Get("test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	err = mc.Delete("test_key")
	assert.NoError(t, err)

	_, err = mc.Get("test_key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestExpirationSeconds(t *testing.T) {
	assert.Equal(t, int32(0), expirationSeconds(0))
	assert.Equal(t, int32(0), expirationSeconds(-time.Minute))
	assert.Equal(t, int32(1), expirationSeconds(200*time.Millisecond))
	assert.Equal(t, int32(3600), expirationSeconds(time.Hour))
	assert.Equal(t, int32(2592000), expirationSeconds(30*24*time.Hour))
	assert.Equal(t, int32(2592000), expirationSeconds(90*24*time.Hour))
}
