// Package storage defines the object storage abstractions used by file-producing sinks.
// A bucket maps to a GCS bucket or to a directory under the local base directory.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// StorageExecutor defines generic object operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName. An empty bucket selects the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object name under prefix, stopping at the first error fn returns.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, typed storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens and caches the connections of one storage type.
type StorageProvider interface {
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
}

// StorageConnectionResolver resolves a named storage connection.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the Fx value group collecting every StorageProvider.
const StorageProviderGroup = "storage_providers"
