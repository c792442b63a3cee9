package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cotton-extractor/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.RequestDelay = 0
	config.Jitter = 0
	config.RetryBaseDelay = time.Millisecond
	config.SettleDelay = 0
	config.DisclosureDelay = 0
	config.WaitTimeout = 10 * time.Millisecond
	return config
}

func TestNewHTTPClient(t *testing.T) {
	config := types.DefaultConfig()
	logger := logrus.New()

	client := NewHTTPClient(config, logger)

	assert.NotNil(t, client)
	assert.Equal(t, config, client.config)
	assert.Equal(t, logger, client.logger)
	assert.NotNil(t, client.client)
	assert.NotNil(t, client.limiter)

	client.Close()
}

func TestHTTPClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "test response", string(body))
}

func TestHTTPClient_Get_ConvertsCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.WriteHeader(http.StatusOK)
		// "£19.99" in Latin-1
		w.Write([]byte{0xA3, '1', '9', '.', '9', '9'})
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "£19.99", string(body))
}

func TestHTTPClient_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	config := testConfig()
	config.MaxRetries = 1
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
}

func TestHTTPClient_Get_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	config := testConfig()
	config.MaxRetries = 3
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPClient_Get_ContextCancelled(t *testing.T) {
	config := types.DefaultConfig()
	config.RequestDelay = 100 * time.Millisecond
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "http://example.com")

	assert.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestHTTPClient_Close(t *testing.T) {
	client := NewHTTPClient(types.DefaultConfig(), logrus.New())

	client.Close()
}
