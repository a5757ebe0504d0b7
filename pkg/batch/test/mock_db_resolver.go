package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	coreadapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// MockDBConnectionResolver is a testify mock of database.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection mocks the ResolveDBConnection method.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(dbadapter.DBConnection), args.Error(1)
}

// ResolveConnection mocks the ResolveConnection method.
func (m *MockDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(coreadapter.ResourceConnection), args.Error(1)
}

// singleConnectionResolver resolves every name to one connection.
type singleConnectionResolver struct {
	conn dbadapter.DBConnection
}

func (r *singleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

func (r *singleConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver returns a resolver that always returns conn.
func NewTestSingleConnectionResolver(conn dbadapter.DBConnection) dbadapter.DBConnectionResolver {
	return &singleConnectionResolver{conn: conn}
}

var (
	_ dbadapter.DBConnectionResolver = (*MockDBConnectionResolver)(nil)
	_ dbadapter.DBConnectionResolver = (*singleConnectionResolver)(nil)
)
