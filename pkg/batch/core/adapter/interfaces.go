// Package adapter defines the resource connection abstractions shared by the database
// and storage adapters.
package adapter

import (
	"context"
)

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "sqlite", "gcs").
	Type() string
	// Name returns the connection name (e.g., "metadata", "workload").
	Name() string
}

// ResourceConnectionResolver resolves a named resource connection.
type ResourceConnectionResolver interface {
	// ResolveConnection resolves a resource connection instance by name.
	// Implementations ensure that the returned connection is usable, reconnecting if necessary.
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
