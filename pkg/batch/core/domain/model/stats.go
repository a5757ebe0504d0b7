// Package model holds the value types shared by the engine, listeners and orchestrator.
package model

import "fmt"

// Unbounded is the sentinel accepted for a chunk size or a skip limit that has no upper bound.
const Unbounded = -1

// RunStats holds the per-run counters.
// Total counts items read, Success items written and Failure items skipped
// (or the single failing item of an all-or-nothing run).
type RunStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// String returns the summary form used in log lines.
func (s RunStats) String() string {
	return fmt.Sprintf("Total: %d, Success: %d, Failure: %d", s.Total, s.Success, s.Failure)
}

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// RunResult is returned by the chunk engine once a run finishes.
type RunResult struct {
	Status RunStatus `json:"status"`
	Stats  RunStats  `json:"stats"`
}

// Completed reports whether the run finished without aborting.
func (r RunResult) Completed() bool {
	return r.Status == RunStatusCompleted
}
