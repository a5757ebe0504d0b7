// Package exception provides the error types used by the chunkbatch engine.
// Errors are categorized by module and by whether they may be retried or skipped,
// so that retry and fault policies can classify them uniformly.
package exception

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// errorRegistry maps error names used in configuration to sentinel error instances.
var errorRegistry = make(map[string]error)

// kindRegistry maps error names to prototypes of struct error types, matched by dynamic type.
var kindRegistry = make(map[string]reflect.Type)

// registryMutex protects access to errorRegistry and kindRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers a sentinel error under a configuration name.
// A sentinel matches through errors.Is only.
// Registered names can be referenced by skippable_exceptions and retryable_exceptions.
// It panics if name is empty or sentinel is nil.
func RegisterErrorType(name string, sentinel error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if sentinel == nil {
		panic(fmt.Sprintf("Cannot register nil sentinel for name: %s", name))
	}

	delete(kindRegistry, name)
	errorRegistry[name] = sentinel
}

// RegisterErrorKind registers a struct error type under a configuration name.
// Any error in a chain whose dynamic type equals the type of prototype matches,
// whatever its field values. prototype must be a pointer to a struct.
func RegisterErrorKind(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	protoType := reflect.TypeOf(prototype)
	if protoType.Kind() != reflect.Ptr || protoType.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("Error kind '%s' must be a pointer to a struct, got %s", name, protoType))
	}

	delete(errorRegistry, name)
	kindRegistry[name] = protoType
}

// IsErrorTypeRegistered checks if the specified error type name is registered in the registry.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	if _, ok := errorRegistry[name]; ok {
		return true
	}
	_, ok := kindRegistry[name]
	return ok
}

// BatchError is the general-purpose error raised by engine components.
// It holds the module where the error occurred, a message, the wrapped original error,
// and flags indicating whether it is retryable or skippable.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "reader", "processor", "writer", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is the stack at the time the error was created.
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
//
// Parameters:
//
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The original error to wrap.
//	isSkippable: Whether this error is skippable.
//	isRetryable: Whether this error is retryable.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf creates a BatchError from a format string.
// Optional trailing arguments are consumed from the end in the order
// [originalErr error], [isRetryable bool], [isSkippable bool]; the rest feed fmt.Sprintf.
//
//	NewBatchErrorf("reader", "Failed to read item: %s", "id_123", true, true, io.EOF)
//	NewBatchErrorf("writer", "DB error", false, sql.ErrNoRows)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// captureStack renders the caller's stack using cockroachdb/errors.
func captureStack() string {
	return fmt.Sprintf("%+v", errors.NewWithDepth(2, "stack"))
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err is, or wraps, a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsTemporary reports whether err looks transient (timeouts, refused connections).
// A BatchError's retryable flag takes precedence over message inspection.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsFatal reports whether err can be neither retried nor skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	var we *WriteError
	if errors.As(err, &we) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "data corruption")
}

// IsErrorOfType checks if an error matches a configured type name.
// The name may be a registered sentinel, a Go type name (e.g. "*exception.TransformError")
// or a substring of an error message in the chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	sentinel, isSentinel := errorRegistry[errorTypeName]
	kind, isKind := kindRegistry[errorTypeName]
	registryMutex.RUnlock()

	if isSentinel && errors.Is(err, sentinel) {
		return true
	}
	if isKind && chainHasType(err, kind) {
		return true
	}

	for currentErr := err; currentErr != nil; currentErr = errors.UnwrapOnce(currentErr) {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}
		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

func chainHasType(err error, t reflect.Type) bool {
	for currentErr := err; currentErr != nil; currentErr = errors.UnwrapOnce(currentErr) {
		if reflect.TypeOf(currentErr) == t {
			return true
		}
	}
	return false
}

// ExtractErrorMessage returns the cleaner Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)

	RegisterErrorKind("TransformError", &TransformError{})
	RegisterErrorKind("WriteError", &WriteError{})
	RegisterErrorKind("AuditError", &AuditError{})
	RegisterErrorKind("SkipLimitExceeded", &SkipLimitExceededError{})
}
