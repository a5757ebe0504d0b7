// Package config holds the settings of one named storage connection.
package config

import (
	"fmt"

	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type" mapstructure:"type"`                         // "local" or "gcs".
	BucketName      string `yaml:"bucket_name" mapstructure:"bucket_name"`           // Default bucket for operations.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"` // Service account key for GCS.
	BaseDir         string `yaml:"base_dir" mapstructure:"base_dir"`                 // Root directory of the local provider.
}

// Decode reads the "adapter.storage.<name>" section of cfg.
func Decode(cfg *coreConfig.Config, name string) (StorageConfig, error) {
	var storageCfg StorageConfig
	raw, ok := cfg.AdapterSection("storage", name)
	if !ok {
		return storageCfg, fmt.Errorf("storage configuration '%s' not found under 'adapter.storage'", name)
	}
	if err := configbinder.BindProperties(raw, &storageCfg); err != nil {
		return storageCfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}
