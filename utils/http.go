package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// HTTPClient provides HTTP functionality with rate limiting and retries
type HTTPClient struct {
	client  *resty.Client
	config  *types.Config
	logger  types.Logger
	limiter *rate.Limiter
	retries int
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config *types.Config, logger types.Logger) *HTTPClient {
	limit := rate.Inf
	if config.RequestDelay > 0 {
		limit = rate.Every(config.RequestDelay)
	}
	return newHTTPClient(config, logger, config.MaxRetries, rate.NewLimiter(limit, 1))
}

func newHTTPClient(config *types.Config, logger types.Logger, retries int, limiter *rate.Limiter) *HTTPClient {
	retryWait := config.RetryBaseDelay
	if retryWait <= 0 {
		retryWait = 100 * time.Millisecond
	}
	if retries < 0 {
		retries = 0
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(8 * retryWait).
		SetHeaders(map[string]string{
			"User-Agent":                config.UserAgent,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-GB,en;q=0.9,en-US;q=0.8",
			"Upgrade-Insecure-Requests": "1",
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return scrapeerrors.RetryableStatus(r.StatusCode())
		})

	return &HTTPClient{
		client:  client,
		config:  config,
		logger:  logger,
		limiter: limiter,
		retries: retries,
	}
}

// WithoutRetries returns a client sharing this one's rate limit that makes a
// single attempt per Get, for callers that retry themselves
func (h *HTTPClient) WithoutRetries() *HTTPClient {
	if h.retries == 0 {
		return h
	}
	return newHTTPClient(h.config, h.logger, 0, h.limiter)
}

// Get performs a GET request with rate limiting and retries and returns the
// body converted to UTF-8
func (h *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	h.logger.Debugf("Making request to %s", url)

	resp, err := h.client.R().SetContext(ctx).Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all retry attempts failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		h.logger.Warnf("Unexpected status code %d from %s after %d attempts", resp.StatusCode(), url, resp.Request.Attempt)
		return nil, &scrapeerrors.StatusError{Code: resp.StatusCode()}
	}

	reader, err := charset.NewReader(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	h.logger.Debugf("Successfully retrieved %d bytes from %s", len(body), url)
	return body, nil
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	h.client.GetClient().CloseIdleConnections()
}
