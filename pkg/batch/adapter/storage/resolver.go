package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// ResolverParams are the Fx dependencies of NewResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// Resolver picks the provider by the configured type of the requested connection.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// NewResolver creates a Resolver over the given providers.
func NewResolver(cfg *config.Config, providers ...StorageProvider) *Resolver {
	m := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Resolver{providers: m, cfg: cfg}
}

func newResolverFromParams(p ResolverParams) *Resolver {
	return NewResolver(p.Cfg, p.Providers...)
}

// ResolveStorageConnection resolves a storage connection by name.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := storageConfig.Decode(r.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: %w", err)
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("StorageConnectionResolver: StorageProvider for type '%s' not found for connection '%s'", storageCfg.Type, name)
	}
	return provider.GetConnection(ctx, name)
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *Resolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ StorageConnectionResolver = (*Resolver)(nil)
