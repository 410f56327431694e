// Package storage provides durable asset storage for generated videos.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import "context"

// UploadResult describes a persisted object.
type UploadResult struct {
	// URL is the stable public address of the object.
	URL string
	// Path is the object key within the bucket.
	Path string
}

// Storage defines the interface for persisting binary assets.
// Uploads to the same path overwrite the existing object, so callers using
// deterministic keys never accumulate duplicates.
type Storage interface {
	// Upload persists data under the given bucket and path and returns the
	// public URL of the object.
	Upload(ctx context.Context, data []byte, bucket, path, contentType string) (UploadResult, error)
}
