package source_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/source"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type user struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (user) TableName() string { return "users" }

type ghost struct {
	ID uint
}

func (ghost) TableName() string { return "ghosts" }

func drain[T any](t *testing.T, s port.Source[T]) ([]T, error) {
	t.Helper()
	var out []T
	for {
		item, err := s.Read(context.Background())
		if errors.Is(err, port.ErrNoMoreItems) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
}

func TestListSource(t *testing.T) {
	items := []int{1, 2, 3}
	s := source.NewListSource(items...)
	items[0] = 100

	got, err := drain[int](t, s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	_, err = s.Read(context.Background())
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}

func TestSeqSource(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(string, error) bool) {
		if !yield("a", nil) {
			return
		}
		if !yield("", boom) {
			return
		}
		yield("c", nil)
	}

	s := source.FromSeq[string](iter.Seq2[string, error](seq))
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	got, err := drain[string](t, s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, got)

	got, err = drain[string](t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)
}

func TestJSONArraySource(t *testing.T) {
	s := source.NewJSONArraySourceFromBytes[user]("users", []byte(`[
		{"name":"alice","email":"alice@example.com"},
		{"name":"bob","email":"invalid_email"}
	]`))
	got, err := drain[user](t, s)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Name)
	assert.Equal(t, "invalid_email", got[1].Email)

	t.Run("EmptyInput", func(t *testing.T) {
		got, err := drain[user](t, source.NewJSONArraySource[user]("users", strings.NewReader("")))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("EmptyArray", func(t *testing.T) {
		got, err := drain[user](t, source.NewJSONArraySource[user]("users", strings.NewReader(" [ ] ")))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NotAnArray", func(t *testing.T) {
		_, err := drain[user](t, source.NewJSONArraySource[user]("users", strings.NewReader(`{"name":"x"}`)))
		assert.ErrorContains(t, err, "expected a JSON array")
	})

	t.Run("MalformedElement", func(t *testing.T) {
		got, err := drain[user](t, source.NewJSONArraySource[user]("users", strings.NewReader(`[{"name":"a"},{"name":1}]`)))
		assert.Error(t, err)
		assert.Len(t, got, 1)
	})
}

func TestGormPagingSource(t *testing.T) {
	ctx := context.Background()
	conn := test.NewSQLiteConnection(t, "workload")
	require.NoError(t, conn.GormDB().AutoMigrate(&user{}))
	for i := 1; i <= 23; i++ {
		require.NoError(t, conn.GormDB().Create(&user{Name: fmt.Sprintf("user%d", i)}).Error)
	}
	resolver := test.NewTestSingleConnectionResolver(conn)

	t.Run("AllPages", func(t *testing.T) {
		s := source.NewGormPagingSource[user]("users", resolver, "workload", source.WithPageSize(5))
		require.NoError(t, s.Open(ctx))
		got, err := drain[user](t, s)
		require.NoError(t, err)
		require.Len(t, got, 23)
		assert.Equal(t, uint(1), got[0].ID)
		assert.Equal(t, uint(23), got[22].ID)
		require.NoError(t, s.Close(ctx))
	})

	t.Run("MaxItemsDescending", func(t *testing.T) {
		s := source.NewGormPagingSource[user]("users", resolver, "workload",
			source.WithPageSize(15), source.WithMaxItems(15), source.WithOrderBy("id desc"))
		require.NoError(t, s.Open(ctx))
		got, err := drain[user](t, s)
		require.NoError(t, err)
		require.Len(t, got, 15)
		assert.Equal(t, uint(23), got[0].ID)
		assert.Equal(t, uint(9), got[14].ID)
	})

	t.Run("Where", func(t *testing.T) {
		s := source.NewGormPagingSource[user]("users", resolver, "workload",
			source.WithWhere(map[string]interface{}{"name": "user7"}))
		got, err := drain[user](t, s)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint(7), got[0].ID)
	})

	t.Run("MissingTable", func(t *testing.T) {
		s := source.NewGormPagingSource[ghost]("ghost", resolver, "workload")
		_, err := s.Read(ctx)
		assert.Error(t, err)
	})
}
