package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParquetSinkConfig holds the configuration of a ParquetSink.
type ParquetSinkConfig struct {
	// StorageRef is the name of the storage connection (e.g., "exports").
	StorageRef string `mapstructure:"storageRef"`
	// Bucket overrides the bucket_name of the connection.
	Bucket string `mapstructure:"bucket"`
	// OutputBaseDir is the object prefix of every part file (e.g., "users").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is "SNAPPY" (default), "GZIP" or "NONE".
	CompressionType string `mapstructure:"compressionType"`
}

// ParquetSink writes every chunk as one parquet part file per partition and uploads it
// through a storage connection. T must carry parquet struct tags.
type ParquetSink[T any] struct {
	name         string
	cfg          ParquetSinkConfig
	codec        parquet.CompressionCodec
	resolver     storage.StorageConnectionResolver
	partitionKey func(T) (string, error)

	mu    sync.Mutex
	conn  storage.StorageConnection
	parts int
}

// NewParquetSink decodes properties into a ParquetSinkConfig and creates the sink.
// partitionKey may be nil; otherwise its result (e.g., "dt=2024-01-02") becomes a path segment.
func NewParquetSink[T any](
	name string,
	properties map[string]interface{},
	resolver storage.StorageConnectionResolver,
	partitionKey func(T) (string, error),
) (*ParquetSink[T], error) {
	var cfg ParquetSinkConfig
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("failed to decode ParquetSink properties for '%s'", name), err, false, false)
	}
	if cfg.StorageRef == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetSink '%s' requires 'storageRef' property", name)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetSink '%s' requires 'outputBaseDir' property", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	codec, err := compressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s'", name), err, false, false)
	}
	return &ParquetSink[T]{
		name:         name,
		cfg:          cfg,
		codec:        codec,
		resolver:     resolver,
		partitionKey: partitionKey,
	}, nil
}

// Open resolves the storage connection.
func (s *ParquetSink[T]) Open(ctx context.Context) error {
	conn, err := s.resolver.ResolveStorageConnection(ctx, s.cfg.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to resolve storage connection '%s'", s.name, s.cfg.StorageRef), err, false, false)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	logger.Infof("ParquetSink '%s' opened. Target storage: %s, base directory: %s", s.name, s.cfg.StorageRef, s.cfg.OutputBaseDir)
	return nil
}

// WriteAll encodes and uploads the chunk. When one partition fails, the part files
// already uploaded for this chunk are deleted.
func (s *ParquetSink[T]) WriteAll(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.resolver.ResolveStorageConnection(ctx, s.cfg.StorageRef)
		if err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to resolve storage connection '%s'", s.name, s.cfg.StorageRef), err, false, false)
		}
		s.conn = conn
	}

	partitions, err := s.partition(items)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var uploaded []string
	for _, key := range keys {
		buf, err := s.encode(partitions[key])
		if err != nil {
			return s.rollback(ctx, uploaded, err)
		}
		s.parts++
		objectName := path.Join(s.cfg.OutputBaseDir, key, fmt.Sprintf("part-%05d-%s.parquet", s.parts, uuid.NewString()))
		if err := s.conn.Upload(ctx, s.cfg.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			return s.rollback(ctx, uploaded, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to upload '%s'", s.name, objectName), err, false, false))
		}
		uploaded = append(uploaded, objectName)
		logger.Debugf("ParquetSink '%s': uploaded %d items to %s", s.name, len(partitions[key]), objectName)
	}
	return nil
}

func (s *ParquetSink[T]) partition(items []T) (map[string][]T, error) {
	partitions := make(map[string][]T)
	for _, item := range items {
		key := ""
		if s.partitionKey != nil {
			k, err := s.partitionKey(item)
			if err != nil {
				return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to get partition key", s.name), err, false, false)
			}
			key = k
		}
		partitions[key] = append(partitions[key], item)
	}
	return partitions, nil
}

// encode renders items as one parquet file with a single row group.
func (s *ParquetSink[T]) encode(items []T) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(T), 1)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to create parquet writer", s.name), err, false, false)
	}
	pw.CompressionType = s.codec

	defer func() {
		if r := recover(); r != nil {
			err = exception.NewBatchErrorf("writer", "ParquetSink '%s': parquet writer panicked: %v", s.name, r)
		}
	}()
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to encode item", s.name), err, false, false)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetSink '%s': failed to finalize parquet file", s.name), err, false, false)
	}
	return buf, nil
}

func (s *ParquetSink[T]) rollback(ctx context.Context, uploaded []string, cause error) error {
	result := multierror.Append(nil, cause)
	for _, objectName := range uploaded {
		if err := s.conn.DeleteObject(ctx, s.cfg.Bucket, objectName); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to delete partial part file '%s': %w", objectName, err))
		}
	}
	return result.ErrorOrNil()
}

// Close forgets the connection. The resolver owns its lifecycle.
func (s *ParquetSink[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Infof("ParquetSink '%s' closed after %d part files.", s.name, s.parts)
	s.conn = nil
	return nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

var (
	_ port.Sink[any] = (*ParquetSink[any])(nil)
	_ port.Opener    = (*ParquetSink[any])(nil)
	_ port.Closer    = (*ParquetSink[any])(nil)
)
