package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface using local disk.
// Objects are written under baseDir/bucket/path and addressed through a
// configured public base URL. Intended for development; use S3Storage in
// production.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
// If baseDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "reelforge")
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// BaseDir returns the storage root directory.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Upload writes data to disk and returns its public URL.
// Writing to an existing path overwrites the file.
func (s *LocalStorage) Upload(ctx context.Context, data []byte, bucket, path, contentType string) (UploadResult, error) {
	select {
	case <-ctx.Done():
		return UploadResult{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	full := filepath.Join(s.baseDir, bucket, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return UploadResult{}, fmt.Errorf("create object directory: %w", err)
	}

	if err := os.WriteFile(full, data, 0640); err != nil {
		return UploadResult{}, fmt.Errorf("write object: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.baseURL, bucket, path)
	return UploadResult{URL: url, Path: path}, nil
}
