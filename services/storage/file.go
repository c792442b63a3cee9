package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cotton-extractor/internal/types"
)

var (
	// ErrNotFound is returned when a batch file does not exist
	ErrNotFound = errors.New("batch file not found")
	// ErrInvalidName is returned for names that are not plain .json file names
	ErrInvalidName = errors.New("invalid batch file name")
)

// FileInfo describes one stored batch file
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// FileSink writes batches as indented JSON documents into a directory
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the output directory
func (f *FileSink) Dir() string {
	return f.dir
}

// Save writes the batch to {dir}/{label.FileName()}
func (f *FileSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch to JSON: %w", err)
	}

	if err := os.WriteFile(filepath.Join(f.dir, label.FileName()), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write batch file: %w", err)
	}
	return nil
}

// ListFiles returns the stored batch files, newest first
func (f *FileSink) ListFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].Modified.Equal(files[j].Modified) {
			return files[i].Modified.After(files[j].Modified)
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// Path returns the location of a stored batch file
func (f *FileSink) Path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, ".json") {
		return "", ErrInvalidName
	}

	path := filepath.Join(f.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// LoadFile reads one stored batch
func (f *FileSink) LoadFile(name string) (*types.Batch, error) {
	path, err := f.Path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var batch types.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", name, err)
	}
	if batch.Products == nil {
		batch.Products = []types.Product{}
	}
	return &batch, nil
}

// Latest returns the most recently written batch, or an empty batch when none exist
func (f *FileSink) Latest() (*types.Batch, error) {
	files, err := f.ListFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return types.NewBatch(nil), nil
	}
	return f.LoadFile(files[0].Name)
}
