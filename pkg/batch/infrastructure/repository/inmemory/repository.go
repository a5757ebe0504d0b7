// Package inmemory provides an in-memory implementation of the JobExecutionRepository interface.
// It stores executions in a map, suitable for testing and for runs where persistence is not required.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository is an in-memory implementation of repository.JobExecutionRepository.
// Stored executions are copies; callers never share state with the repository.
type InMemoryJobRepository struct {
	jobExecutions map[string]*model.JobExecution
	mu            sync.RWMutex
}

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions: make(map[string]*model.JobExecution),
	}
}

// SaveJobExecution persists a new JobExecution.
// It returns an error if a JobExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobExecutions[jobExecution.ID]; exists {
		return fmt.Errorf("JobExecution with ID %s already exists", jobExecution.ID)
	}
	r.jobExecutions[jobExecution.ID] = clone(jobExecution)
	return nil
}

// UpdateJobExecution updates an existing JobExecution.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	if stored.Version != jobExecution.Version {
		return fmt.Errorf("JobExecution (ID: %s) with version %d not found for update: %w", jobExecution.ID, jobExecution.Version, repository.ErrOptimisticLockingFailure)
	}
	jobExecution.Version++
	r.jobExecutions[jobExecution.ID] = clone(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobExecution, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return clone(jobExecution), nil
}

// FindJobExecutionsByJobName returns the executions of jobName sorted by CreateTime, newest first.
func (r *InMemoryJobRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*model.JobExecution, 0)
	for _, je := range r.jobExecutions {
		if je.JobName == jobName {
			executions = append(executions, clone(je))
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[j].CreateTime.Before(executions[i].CreateTime)
	})
	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}
	return executions, nil
}

// GetJobNames returns the distinct job names in lexical order.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, je := range r.jobExecutions {
		if _, ok := seen[je.JobName]; ok {
			continue
		}
		seen[je.JobName] = struct{}{}
		names = append(names, je.JobName)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func clone(je *model.JobExecution) *model.JobExecution {
	c := *je
	c.Failures = make(model.FailureList, len(je.Failures))
	copy(c.Failures, je.Failures)
	if je.StartTime != nil {
		t := *je.StartTime
		c.StartTime = &t
	}
	if je.EndTime != nil {
		t := *je.EndTime
		c.EndTime = &t
	}
	return &c
}

var _ repository.JobExecutionRepository = (*InMemoryJobRepository)(nil)
