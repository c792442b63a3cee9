package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"cotton-extractor/internal/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 client the sink uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads batches as JSON objects under {prefix}/{region}/{file}
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Sink builds a sink from the default AWS credential chain
func NewS3Sink(ctx context.Context, bucket, region, prefix string) (*S3Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3SinkWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3SinkWithClient builds a sink over an existing client
func NewS3SinkWithClient(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a batch label
func (s *S3Sink) Key(label Label) string {
	return path.Join(s.prefix, strings.ToLower(label.Region), label.FileName())
}

// Save uploads the batch
func (s *S3Sink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch to JSON: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(label)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload batch to S3: %w", err)
	}
	return nil
}
