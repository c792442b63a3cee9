package utils

import (
	"context"
	"math/rand/v2"
	"time"

	"cotton-extractor/internal/types"
)

// PoliteDelay returns the base request delay plus a random share of the
// configured jitter in [0.5, 1.5) of its length
func PoliteDelay(config *types.Config) time.Duration {
	delay := config.RequestDelay
	if config.Jitter > 0 {
		delay += config.Jitter/2 + time.Duration(rand.Int64N(int64(config.Jitter)))
	}
	return delay
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause sleeps for a polite delay between page loads
func Pause(ctx context.Context, config *types.Config) error {
	return Sleep(ctx, PoliteDelay(config))
}
