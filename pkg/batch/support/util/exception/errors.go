package exception

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// TransformError is raised when a transformer rejects an item as semantically invalid.
// It is the only error the fault policy may skip.
type TransformError struct {
	// Step is the name of the step that was transforming the item.
	Step string
	// Cause is the error returned by the transformer.
	Cause error
}

// NewTransformError wraps cause as a TransformError. A cause that already is a
// TransformError is returned unchanged.
func NewTransformError(step string, cause error) *TransformError {
	var te *TransformError
	if errors.As(cause, &te) {
		return te
	}
	return &TransformError{Step: step, Cause: errors.WithStackDepth(cause, 1)}
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[processor] transform failed in step '%s'", e.Step)
	}
	return fmt.Sprintf("[processor] transform failed in step '%s': %v", e.Step, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

// WriteError is raised when a sink cannot persist a chunk. It is always fatal to the run.
type WriteError struct {
	Step string
	// ChunkSize is the number of items in the rejected chunk.
	ChunkSize int
	Cause     error
}

// NewWriteError wraps cause as a WriteError for a chunk of the given size.
func NewWriteError(step string, chunkSize int, cause error) *WriteError {
	var we *WriteError
	if errors.As(cause, &we) {
		return we
	}
	return &WriteError{Step: step, ChunkSize: chunkSize, Cause: errors.WithStackDepth(cause, 1)}
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("[writer] failed to write chunk of %d items in step '%s': %v", e.ChunkSize, e.Step, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// AuditError is raised when an audit record cannot be appended.
// It is logged and dropped at the listener boundary, never returned to the engine.
type AuditError struct {
	EventKind string
	Cause     error
}

// NewAuditError wraps cause as an AuditError.
func NewAuditError(eventKind string, cause error) *AuditError {
	return &AuditError{EventKind: eventKind, Cause: cause}
}

// Error implements the error interface.
func (e *AuditError) Error() string {
	return fmt.Sprintf("[audit] failed to append '%s' record: %v", e.EventKind, e.Cause)
}

func (e *AuditError) Unwrap() error { return e.Cause }

// SkipLimitExceededError reports that a run skipped more items than its fault policy tolerates.
// Cause is the transform error of the item that crossed the limit.
type SkipLimitExceededError struct {
	Limit     int
	SkipCount int
	Cause     error
}

// NewSkipLimitExceededError creates a SkipLimitExceededError.
func NewSkipLimitExceededError(limit, skipCount int, cause error) *SkipLimitExceededError {
	return &SkipLimitExceededError{Limit: limit, SkipCount: skipCount, Cause: cause}
}

// Error implements the error interface.
func (e *SkipLimitExceededError) Error() string {
	return fmt.Sprintf("[processor] skip limit %d exceeded (skipped %d): %v", e.Limit, e.SkipCount, e.Cause)
}

func (e *SkipLimitExceededError) Unwrap() error { return e.Cause }

// IsTransformError reports whether err is, or wraps, a *TransformError.
func IsTransformError(err error) bool {
	var te *TransformError
	return errors.As(err, &te)
}

// IsWriteError reports whether err is, or wraps, a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
