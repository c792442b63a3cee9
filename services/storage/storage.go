package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cotton-extractor/internal/types"
)

// Sink persists product batches
type Sink interface {
	Save(ctx context.Context, label Label, batch *types.Batch) error
}

// Label identifies a batch. An empty Retailer marks the combined batch of a job.
type Label struct {
	Retailer string
	Region   string
	Time     time.Time
}

// Combined reports whether the label names a whole-job batch
func (l Label) Combined() bool {
	return l.Retailer == ""
}

// FileName returns the artifact name, e.g. hm_uk_20250101_120000.json
func (l Label) FileName() string {
	stamp := l.Time.Format("20060102_150405")
	if l.Combined() {
		return fmt.Sprintf("all_products_%s.json", stamp)
	}
	return fmt.Sprintf("%s_%s_%s.json", l.Retailer, strings.ToLower(l.Region), stamp)
}

// MultiSink saves to every sink and joins their errors
type MultiSink []Sink

// Save fans the batch out; one failing sink does not stop the others
func (m MultiSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Save(ctx, label, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every batch
type Discard struct{}

func (Discard) Save(ctx context.Context, label Label, batch *types.Batch) error {
	return nil
}
