package local_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func TestLocalAdapter(t *testing.T) {
	ctx := context.Background()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "exports"}, "files")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "files", conn.Name())

	require.NoError(t, conn.Upload(ctx, "", "users/part-1.parquet", bytes.NewBufferString("one"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "users/part-2.parquet", bytes.NewBufferString("two"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "other/readme.txt", bytes.NewBufferString("x"), "text/plain"))

	r, err := conn.Download(ctx, "exports", "users/part-2.parquet")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "two", string(data))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "users/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"users/part-1.parquet", "users/part-2.parquet"}, names)

	require.NoError(t, conn.DeleteObject(ctx, "", "users/part-1.parquet"))
	require.NoError(t, conn.DeleteObject(ctx, "", "users/part-1.parquet"), "deleting a missing object is not an error")
	_, err = conn.Download(ctx, "", "users/part-1.parquet")
	assert.Error(t, err)

	err = conn.Upload(ctx, "", "../../escape.txt", bytes.NewBufferString("x"), "text/plain")
	assert.ErrorContains(t, err, "outside of BaseDir")
}

func TestLocalAdapter_RequiresBaseDir(t *testing.T) {
	_, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local"}, "files")
	assert.Error(t, err)
}

func TestResolver(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ChunkBatch.AdapterConfigs["storage"] = map[string]interface{}{
		"files":  map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
		"bucket": map[string]interface{}{"type": "gcs", "bucket_name": "b"},
	}
	resolver := storage.NewResolver(cfg, local.NewLocalProvider(cfg))

	conn, err := resolver.ResolveStorageConnection(context.Background(), "files")
	require.NoError(t, err)
	again, err := resolver.ResolveStorageConnection(context.Background(), "files")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveStorageConnection(context.Background(), "bucket")
	assert.ErrorContains(t, err, "StorageProvider for type 'gcs' not found")

	_, err = resolver.ResolveStorageConnection(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")

	assert.NoError(t, resolver.CloseAll())
}

func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ChunkBatch.AdapterConfigs["storage"] = map[string]interface{}{
		"files": map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
	}

	var resolver storage.StorageConnectionResolver
	app := fxtest.New(t,
		fx.Supply(cfg),
		storage.Module,
		local.Module,
		fx.Populate(&resolver),
	)
	app.RequireStart()
	defer app.RequireStop()

	conn, err := resolver.ResolveStorageConnection(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
}
