package source

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 10

// GormPagingSource reads rows page by page through a DBConnection.
// T is the entity type; its table comes from a TableName method or GORM naming rules.
type GormPagingSource[T any] struct {
	name     string
	resolver database.DBConnectionResolver
	dbName   string
	query    map[string]interface{}
	orderBy  string
	pageSize int
	maxItems int

	conn    database.DBConnection
	page    []T
	pos     int
	offset  int
	read    int
	drained bool
}

// PagingOption configures a GormPagingSource.
type PagingOption func(*pagingOptions)

type pagingOptions struct {
	query    map[string]interface{}
	orderBy  string
	pageSize int
	maxItems int
}

// WithWhere restricts the rows read. Conditions are combined with AND.
func WithWhere(query map[string]interface{}) PagingOption {
	return func(o *pagingOptions) { o.query = query }
}

// WithOrderBy sets the order clause, e.g. "id desc". A stable order is required
// for paging to be deterministic.
func WithOrderBy(orderBy string) PagingOption {
	return func(o *pagingOptions) { o.orderBy = orderBy }
}

// WithPageSize sets the number of rows fetched per query.
func WithPageSize(n int) PagingOption {
	return func(o *pagingOptions) { o.pageSize = n }
}

// WithMaxItems caps the number of items read. Zero or negative means no cap.
func WithMaxItems(n int) PagingOption {
	return func(o *pagingOptions) { o.maxItems = n }
}

// NewGormPagingSource creates a paging source over the named connection.
func NewGormPagingSource[T any](name string, resolver database.DBConnectionResolver, dbName string, opts ...PagingOption) *GormPagingSource[T] {
	o := pagingOptions{pageSize: DefaultPageSize, orderBy: "id"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	return &GormPagingSource[T]{
		name:     name,
		resolver: resolver,
		dbName:   dbName,
		query:    o.query,
		orderBy:  o.orderBy,
		pageSize: o.pageSize,
		maxItems: o.maxItems,
	}
}

// Open resolves the connection and resets the paging state.
func (s *GormPagingSource[T]) Open(ctx context.Context) error {
	conn, err := s.resolver.ResolveDBConnection(ctx, s.dbName)
	if err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("GormPagingSource '%s': failed to resolve connection '%s'", s.name, s.dbName), err, false, false)
	}
	s.conn = conn
	s.page, s.pos, s.offset, s.read, s.drained = nil, 0, 0, 0, false
	logger.Debugf("GormPagingSource '%s': opened on '%s' (page size %d, max items %d, order '%s').", s.name, s.dbName, s.pageSize, s.maxItems, s.orderBy)
	return nil
}

// Read returns the next row, fetching a new page when the current one is consumed.
func (s *GormPagingSource[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if s.conn == nil {
		if err := s.Open(ctx); err != nil {
			return zero, err
		}
	}
	if s.maxItems > 0 && s.read >= s.maxItems {
		return zero, port.ErrNoMoreItems
	}
	if s.pos >= len(s.page) {
		if s.drained {
			return zero, port.ErrNoMoreItems
		}
		if err := s.fetch(ctx); err != nil {
			return zero, err
		}
		if len(s.page) == 0 {
			return zero, port.ErrNoMoreItems
		}
	}
	item := s.page[s.pos]
	s.pos++
	s.read++
	return item, nil
}

func (s *GormPagingSource[T]) fetch(ctx context.Context) error {
	limit := s.pageSize
	if s.maxItems > 0 && s.maxItems-s.read < limit {
		limit = s.maxItems - s.read
	}
	var page []T
	if err := s.conn.ExecuteQueryAdvanced(ctx, &page, s.query, s.orderBy, limit, s.offset); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("GormPagingSource '%s': failed to fetch page at offset %d", s.name, s.offset), err, false, false)
	}
	logger.Debugf("GormPagingSource '%s': fetched %d rows at offset %d.", s.name, len(page), s.offset)
	s.page, s.pos = page, 0
	s.offset += len(page)
	if len(page) < limit {
		s.drained = true
	}
	return nil
}

// Close releases the page buffer. The connection belongs to its provider.
func (s *GormPagingSource[T]) Close(ctx context.Context) error {
	s.page = nil
	s.conn = nil
	return nil
}

var (
	_ port.Source[any] = (*GormPagingSource[any])(nil)
	_ port.Opener      = (*GormPagingSource[any])(nil)
	_ port.Closer      = (*GormPagingSource[any])(nil)
)
