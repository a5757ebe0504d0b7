package configbinder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
)

type poolSettings struct {
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	Enabled      bool   `mapstructure:"enabled"`
	Name         string `mapstructure:"name"`
}

func TestBindProperties(t *testing.T) {
	var s poolSettings
	err := configbinder.BindProperties(map[string]interface{}{
		"max_open_conns": "10",
		"enabled":        "true",
		"name":           "workload",
		"unknown":        1,
	}, &s)
	require.NoError(t, err)
	assert.Equal(t, poolSettings{MaxOpenConns: 10, Enabled: true, Name: "workload"}, s)

	assert.NoError(t, configbinder.BindProperties(nil, &s))

	err = configbinder.BindProperties(map[string]interface{}{"max_open_conns": "ten"}, &s)
	assert.ErrorContains(t, err, "failed to bind properties to struct poolSettings")
}
