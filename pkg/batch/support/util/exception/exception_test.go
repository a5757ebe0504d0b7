package exception_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Custom error type for testing reflection and type matching
type CustomError struct {
	Msg string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("CustomError: %s", e.Msg)
}

type statusCode int

func (c statusCode) Error() string { return fmt.Sprintf("status %d", int(c)) }

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	// NewBatchError signature is (module, message, originalErr, isSkippable, isRetryable)
	be := exception.NewBatchError("db", "failed to connect", originalErr, false, true)

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.Contains(t, be.Error(), "[db] failed to connect: db connection refused")
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	// Only message args
	be1 := exception.NewBatchErrorf("reader", "item %d not found", 10)
	assert.False(t, be1.IsRetryable())
	assert.False(t, be1.IsSkippable())
	assert.Nil(t, be1.Unwrap())
	assert.Contains(t, be1.Error(), "[reader] item 10 not found")

	// A single trailing bool is isRetryable
	be2 := exception.NewBatchErrorf("net", "timeout occurred", true)
	assert.True(t, be2.IsRetryable())
	assert.False(t, be2.IsSkippable())

	// (..., isSkippable, isRetryable)
	be3 := exception.NewBatchErrorf("item", "data error in item %d", 5, true, false)
	assert.False(t, be3.IsRetryable())
	assert.True(t, be3.IsSkippable())
	assert.Contains(t, be3.Error(), "data error in item 5")

	// (..., isSkippable, isRetryable, originalErr)
	originalErr := errors.New("data format error")
	be4 := exception.NewBatchErrorf("proc", "format error", true, true, originalErr)
	assert.True(t, be4.IsRetryable())
	assert.True(t, be4.IsSkippable())
	assert.Equal(t, originalErr, be4.Unwrap())
}

func TestIsTemporaryAndIsFatal(t *testing.T) {
	retryableErr := exception.NewBatchError("net", "timeout", errors.New("timeout"), false, true)
	assert.True(t, exception.IsTemporary(retryableErr))
	assert.False(t, exception.IsFatal(retryableErr))

	fatalErr := exception.NewBatchError("data", "invalid format", errors.New("invalid argument"), false, false)
	assert.False(t, exception.IsTemporary(fatalErr))
	assert.True(t, exception.IsFatal(fatalErr))

	skippableErr := exception.NewBatchError("item", "bad record", errors.New("bad record"), true, false)
	assert.False(t, exception.IsTemporary(skippableErr))
	assert.False(t, exception.IsFatal(skippableErr))

	assert.True(t, exception.IsTemporary(errors.New("connection timeout")))
	assert.True(t, exception.IsFatal(errors.New("permission denied")))

	writeErr := exception.NewWriteError("step", 3, errors.New("disk full"))
	assert.True(t, exception.IsFatal(writeErr))
}

func TestDomainErrors(t *testing.T) {
	cause := errors.New("invalid_email")

	t.Run("TransformError wraps its cause", func(t *testing.T) {
		te := exception.NewTransformError("createUsersStep", cause)
		assert.True(t, errors.Is(te, cause))
		assert.True(t, exception.IsTransformError(fmt.Errorf("outer: %w", te)))
		assert.Contains(t, te.Error(), "createUsersStep")
		assert.Contains(t, te.Error(), "invalid_email")

		// Wrapping twice keeps the first TransformError.
		assert.Same(t, te, exception.NewTransformError("other", te))
	})

	t.Run("WriteError is fatal and carries the chunk size", func(t *testing.T) {
		we := exception.NewWriteError("step", 10, cause)
		var target *exception.WriteError
		require.True(t, errors.As(fmt.Errorf("run: %w", we), &target))
		assert.Equal(t, 10, target.ChunkSize)
		assert.True(t, exception.IsWriteError(we))
		assert.False(t, exception.IsTransformError(we))
	})

	t.Run("SkipLimitExceeded unwraps to the transform error", func(t *testing.T) {
		te := exception.NewTransformError("step", cause)
		sle := exception.NewSkipLimitExceededError(1, 2, te)
		assert.True(t, exception.IsTransformError(sle))
		assert.Contains(t, sle.Error(), "skip limit 1 exceeded")
	})

	t.Run("AuditError", func(t *testing.T) {
		ae := exception.NewAuditError("Step Started", cause)
		assert.True(t, errors.Is(ae, cause))
		assert.Contains(t, ae.Error(), "Step Started")
	})
}

func TestIsErrorOfType(t *testing.T) {
	exception.RegisterErrorKind("CustomErrorType", &CustomError{})

	customErr := &CustomError{Msg: "test"}
	wrappedErr := exception.NewBatchError("proc", "custom failure", customErr, false, false)

	// Registered prototype match by dynamic type
	assert.True(t, exception.IsErrorOfType(wrappedErr, "CustomErrorType"))
	// Pointer type name match
	assert.True(t, exception.IsErrorOfType(wrappedErr, "*exception_test.CustomError"))
	// Message substring match
	assert.True(t, exception.IsErrorOfType(wrappedErr, "custom failure"))
	assert.True(t, exception.IsErrorOfType(wrappedErr, "CustomError: test"))

	deeplyWrapped := fmt.Errorf("level 2: %w", wrappedErr)
	assert.True(t, exception.IsErrorOfType(deeplyWrapped, "*exception_test.CustomError"))
	assert.False(t, exception.IsErrorOfType(deeplyWrapped, "NonExistentError"))

	te := exception.NewTransformError("step", errors.New("bad"))
	assert.True(t, exception.IsErrorOfType(te, "TransformError"))
	assert.False(t, exception.IsErrorOfType(te, "WriteError"))

	assert.False(t, exception.IsErrorOfType(nil, "any"))
}

func TestIsErrorOfType_SentinelMatchesOnlyItself(t *testing.T) {
	for _, name := range []string{"io.EOF", "context.Canceled", "context.DeadlineExceeded", "sql.ErrNoRows"} {
		assert.False(t, exception.IsErrorOfType(errors.New("disk full"), name), name)
		assert.False(t, exception.IsErrorOfType(fmt.Errorf("invalid email: %s", "x"), name), name)
	}

	assert.True(t, exception.IsErrorOfType(fmt.Errorf("read: %w", io.EOF), "io.EOF"))
	assert.True(t, exception.IsErrorOfType(exception.NewBatchError("reader", "cancelled", context.Canceled, false, false), "context.Canceled"))
}

func TestRegisterErrorKindPanics(t *testing.T) {
	assert.Panics(t, func() { exception.RegisterErrorKind("", &CustomError{}) })
	assert.Panics(t, func() { exception.RegisterErrorKind("nilKind", nil) })
	assert.Panics(t, func() { exception.RegisterErrorKind("valueKind", statusCode(500)) })
}

func TestRegisterErrorTypePanics(t *testing.T) {
	assert.Panics(t, func() { exception.RegisterErrorType("", errors.New("x")) })
	assert.Panics(t, func() { exception.RegisterErrorType("nilProto", nil) })
	assert.True(t, exception.IsErrorTypeRegistered("io.EOF"))
	assert.False(t, exception.IsErrorTypeRegistered("not.registered"))
}
