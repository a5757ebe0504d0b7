package gorm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	gormaudit "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/audit/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

func TestAuditSink_AppendAndFind(t *testing.T) {
	ctx := context.Background()
	conn := test.NewSQLiteConnection(t, "metadata")
	require.NoError(t, conn.GormDB().AutoMigrate(&gormaudit.AuditLogEntity{}))
	sink := gormaudit.NewAuditSink(test.NewTestSingleConnectionResolver(conn), "metadata")

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := `{"name":"bob","email":"invalid_email"}`
	require.NoError(t, sink.Append(ctx, model.NewAuditRecord("createUsersJob", "createUsersStep", model.EventKindStepStarted, "Step started", nil, ts)))
	require.NoError(t, sink.Append(ctx, model.NewAuditRecord("createUsersJob", "createUsersStep", model.EventKindItemSkipped, "Item: bob, Error: invalid", &snapshot, ts)))
	require.NoError(t, sink.Append(ctx, model.NewAuditRecord("otherJob", "otherStep", model.EventKindStepStarted, "Step started", nil, ts)))

	records, err := sink.FindByJobName(ctx, "createUsersJob", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.EventKindStepStarted, records[0].Kind())
	_, ok := records[0].ItemSnapshot()
	assert.False(t, ok)

	assert.Equal(t, model.EventKindItemSkipped, records[1].Kind())
	assert.Equal(t, "createUsersStep", records[1].StepName())
	assert.Equal(t, "Item: bob, Error: invalid", records[1].Message())
	got, ok := records[1].ItemSnapshot()
	assert.True(t, ok)
	assert.Equal(t, snapshot, got)
	assert.True(t, ts.Equal(records[1].Timestamp()))

	limited, err := sink.FindByJobName(ctx, "createUsersJob", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditSink_MissingTable(t *testing.T) {
	ctx := context.Background()
	conn := test.NewSQLiteConnection(t, "metadata")
	sink := gormaudit.NewAuditSink(test.NewTestSingleConnectionResolver(conn), "metadata")

	err := sink.Append(ctx, model.NewAuditRecord("job", "step", model.EventKindStepStarted, "Step started", nil, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_log")

	records, err := sink.FindByJobName(ctx, "job", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}
