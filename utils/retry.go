package utils

import (
	"context"
	"time"

	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"github.com/cenkalti/backoff/v4"
)

// NavigateWithRetry loads url on page, retrying failures with exponential
// backoff until config.MaxRetries retries have been spent
func NavigateWithRetry(ctx context.Context, page types.Page, url string, config *types.Config, logger types.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.RetryBaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := page.Navigate(ctx, url)
		if err != nil && !scrapeerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("Retry %d/%d for %s in %v: %v", attempt, config.MaxRetries, url, wait, err)
	}

	retries := config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify)
}
