// Package gorm persists audit records to the batch_log table through a database connection.
package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// AuditLogEntity is one row of batch_log.
type AuditLogEntity struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	JobName      string    `gorm:"size:255;not null;index"`
	StepName     string    `gorm:"size:255;not null"`
	EventKind    string    `gorm:"size:50;not null"`
	ErrorMessage string    `gorm:"type:text"`
	ItemData     *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name used by the migrations.
func (AuditLogEntity) TableName() string {
	return "batch_log"
}

// AuditSink appends each record in its own statement on the named connection.
type AuditSink struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// NewAuditSink creates an AuditSink writing to the connection named dbName.
func NewAuditSink(dbResolver database.DBConnectionResolver, dbName string) *AuditSink {
	return &AuditSink{dbResolver: dbResolver, dbName: dbName}
}

// Append implements port.AuditSink.
func (s *AuditSink) Append(ctx context.Context, record model.AuditRecord) error {
	conn, err := s.dbResolver.ResolveDBConnection(ctx, s.dbName)
	if err != nil {
		return fmt.Errorf("failed to resolve audit connection '%s': %w", s.dbName, err)
	}
	entity := fromRecord(record)
	if _, err := conn.ExecuteUpdate(ctx, entity, database.OperationCreate, entity.TableName(), nil); err != nil {
		return fmt.Errorf("failed to append audit record '%s' of job '%s': %w", record.Kind(), record.JobName(), err)
	}
	return nil
}

// FindByJobName returns the records of jobName in append order. limit <= 0 returns all of them.
func (s *AuditSink) FindByJobName(ctx context.Context, jobName string, limit int) ([]model.AuditRecord, error) {
	conn, err := s.dbResolver.ResolveDBConnection(ctx, s.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audit connection '%s': %w", s.dbName, err)
	}
	var entities []AuditLogEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "id asc", limit, 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []model.AuditRecord{}, nil
		}
		return nil, fmt.Errorf("failed to query audit records of job '%s': %w", jobName, err)
	}
	records := make([]model.AuditRecord, len(entities))
	for i, e := range entities {
		records[i] = model.NewAuditRecord(e.JobName, e.StepName, model.EventKind(e.EventKind), e.ErrorMessage, e.ItemData, e.CreatedAt)
	}
	return records, nil
}

func fromRecord(r model.AuditRecord) *AuditLogEntity {
	entity := &AuditLogEntity{
		JobName:      r.JobName(),
		StepName:     r.StepName(),
		EventKind:    r.Kind().String(),
		ErrorMessage: r.Message(),
		CreatedAt:    r.Timestamp(),
	}
	if snapshot, ok := r.ItemSnapshot(); ok {
		entity.ItemData = &snapshot
	}
	return entity
}

var _ port.AuditSink = (*AuditSink)(nil)
