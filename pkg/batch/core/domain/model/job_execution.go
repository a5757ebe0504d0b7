package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobStatus represents the state of a job invocation.
type JobStatus string

const (
	JobStatusNotStarted JobStatus = "NOT_STARTED"
	JobStatusRunning    JobStatus = "RUNNING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	if value == nil {
		*fl = make(FailureList, 0)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// JobExecution is a single invocation of a named job.
type JobExecution struct {
	ID          string
	JobName     string
	Status      JobStatus
	Stats       RunStats
	Failures    FailureList
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Version     int
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// NewJobExecution creates a JobExecution in the NOT_STARTED state.
func NewJobExecution(jobName string) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:          NewID(),
		JobName:     jobName,
		Status:      JobStatusNotStarted,
		Failures:    make(FailureList, 0),
		CreateTime:  now,
		LastUpdated: now,
	}
}

// isValidJobTransition checks if the state transition for JobExecution is valid.
// A job that fails while being set up may go straight from NOT_STARTED to FAILED.
func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case JobStatusNotStarted:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// TransitionTo transitions the state of JobExecution, rejecting illegal transitions.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): Invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// MarkAsStarted updates the JobExecution status to RUNNING.
func (je *JobExecution) MarkAsStarted() error {
	if err := je.TransitionTo(JobStatusRunning); err != nil {
		return err
	}
	now := je.LastUpdated
	je.StartTime = &now
	return nil
}

// MarkAsCompleted updates the JobExecution status to COMPLETED and records the final stats.
func (je *JobExecution) MarkAsCompleted(stats RunStats) error {
	if err := je.TransitionTo(JobStatusCompleted); err != nil {
		return err
	}
	je.Stats = stats
	now := je.LastUpdated
	je.EndTime = &now
	return nil
}

// MarkAsFailed updates the JobExecution status to FAILED and adds error information.
func (je *JobExecution) MarkAsFailed(stats RunStats, err error) error {
	if tErr := je.TransitionTo(JobStatusFailed); tErr != nil {
		return tErr
	}
	je.Stats = stats
	now := je.LastUpdated
	je.EndTime = &now
	je.AddFailureException(err)
	return nil
}

// Result returns the RunResult of a finished execution.
// It reports FAILED for executions that have not finished.
func (je *JobExecution) Result() RunResult {
	status := RunStatusFailed
	if je.Status == JobStatusCompleted {
		status = RunStatusCompleted
	}
	return RunResult{Status: status, Stats: je.Stats}
}

// AddFailureException adds error information to JobExecution. It avoids adding duplicate errors.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	errMsg := exception.ExtractErrorMessage(err)
	for _, existing := range je.Failures {
		if existing == errMsg {
			logger.Debugf("Skipped adding duplicate error '%s' to JobExecution (ID: %s).", errMsg, je.ID)
			return
		}
	}
	je.Failures = append(je.Failures, errMsg)
	je.LastUpdated = time.Now()
}
