package sql

import (
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// JobExecutionEntity is the persisted form of model.JobExecution.
type JobExecutionEntity struct {
	ID           string            `gorm:"primaryKey;size:36"`
	JobName      string            `gorm:"size:255;index"`
	Status       model.JobStatus   `gorm:"size:20"`
	TotalCount   int               `gorm:"column:total_count"`
	SuccessCount int               `gorm:"column:success_count"`
	FailureCount int               `gorm:"column:failure_count"`
	Failures     model.FailureList `gorm:"type:text"`
	CreateTime   time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	LastUpdated  time.Time
	Version      int
}

// TableName returns the table name used by the migrations.
func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	if je == nil {
		return nil
	}
	return &JobExecutionEntity{
		ID:           je.ID,
		JobName:      je.JobName,
		Status:       je.Status,
		TotalCount:   je.Stats.Total,
		SuccessCount: je.Stats.Success,
		FailureCount: je.Stats.Failure,
		Failures:     je.Failures,
		CreateTime:   je.CreateTime,
		StartTime:    je.StartTime,
		EndTime:      je.EndTime,
		LastUpdated:  je.LastUpdated,
		Version:      je.Version,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	if entity == nil {
		return nil
	}
	failures := entity.Failures
	if failures == nil {
		failures = make(model.FailureList, 0)
	}
	return &model.JobExecution{
		ID:      entity.ID,
		JobName: entity.JobName,
		Status:  entity.Status,
		Stats: model.RunStats{
			Total:   entity.TotalCount,
			Success: entity.SuccessCount,
			Failure: entity.FailureCount,
		},
		Failures:    failures,
		CreateTime:  entity.CreateTime,
		StartTime:   entity.StartTime,
		EndTime:     entity.EndTime,
		LastUpdated: entity.LastUpdated,
		Version:     entity.Version,
	}
}
