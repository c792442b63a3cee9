package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"cotton-extractor/internal/types"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each product of a retailer batch to a Redis stream.
// The message is base64 encoded JSON keyed by the retailer.
type RedisSink struct {
	client    *redis.Client
	stream    string
	maxLength int64
}

// NewRedisSink creates a new Redis stream sink
func NewRedisSink(addr string, db int, stream string, maxLength int64) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisSink{
		client:    client,
		stream:    stream,
		maxLength: maxLength,
	}
}

// Ping checks the connection
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Save publishes the products and trims the stream. Combined batches repeat
// products already published per retailer and are skipped.
func (r *RedisSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	if label.Combined() {
		return nil
	}

	for _, product := range batch.Products {
		message, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("failed to marshal product %s: %w", product.ID, err)
		}

		err = r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			Values: map[string]interface{}{
				product.Source: base64.StdEncoding.EncodeToString(message),
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish product %s: %w", product.ID, err)
		}
	}

	if r.maxLength > 0 {
		if err := r.client.XTrimMaxLen(ctx, r.stream, r.maxLength).Err(); err != nil {
			return fmt.Errorf("failed to trim stream %s: %w", r.stream, err)
		}
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisSink) Close() error {
	return r.client.Close()
}
