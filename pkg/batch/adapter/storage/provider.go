package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// OpenFunc opens one storage connection from its configuration.
type OpenFunc func(ctx context.Context, cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// BaseProvider opens and caches the connections of one storage type.
// The local and gcs packages wrap it with their OpenFunc.
type BaseProvider struct {
	cfg         *config.Config
	storageType string
	open        OpenFunc
	connections map[string]StorageConnection
	mu          sync.Mutex
}

// NewBaseProvider creates a provider for storageType.
func NewBaseProvider(cfg *config.Config, storageType string, open OpenFunc) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		open:        open,
		connections: make(map[string]StorageConnection),
	}
}

// Type returns the storage type.
func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection returns the cached connection for name, opening it on first use.
func (p *BaseProvider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := storageConfig.Decode(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, storageCfg.Type)
	}

	conn, err := p.open(ctx, storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage connection '%s': %w", p.storageType, name, err)
	}
	p.connections[name] = conn
	logger.Infof("Established new storage connection: %s (%s)", name, p.storageType)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

var _ StorageProvider = (*BaseProvider)(nil)
