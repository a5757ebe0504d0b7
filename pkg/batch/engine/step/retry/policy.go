// Package retry provides the transform retry policy of the chunk engine.
package retry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RetryPolicy defines retry logic for failed transformations.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// Backoff returns the wait before the given retry attempt (starting from 1).
	Backoff(attempt int) time.Duration
	// MaxAttempts returns the number of retries allowed after the first failure.
	MaxAttempts() int
}

// defaultRetryPolicy retries errors flagged retryable or matching configured names,
// waiting a fixed interval between attempts.
type defaultRetryPolicy struct {
	maxAttempts         int
	interval            time.Duration
	retryableExceptions []string
}

// New creates a RetryPolicy.
//
// Parameters:
//
//	maxAttempts: The number of retries after the first failure. 0 disables retries.
//	interval: The fixed wait between attempts.
//	retryableExceptions: Exception names considered retryable.
func New(maxAttempts int, interval time.Duration, retryableExceptions []string) RetryPolicy {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		interval:            interval,
		retryableExceptions: retryableExceptions,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() RetryPolicy {
	return New(0, 0, nil)
}

// FromConfig builds a RetryPolicy from item retry configuration.
func FromConfig(cfg config.ItemRetryConfig) RetryPolicy {
	return New(cfg.MaxAttempts, time.Duration(cfg.InitialInterval)*time.Millisecond, cfg.RetryableExceptions)
}

func (p *defaultRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry is true for a BatchError flagged retryable or an error matching a configured name.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.maxAttempts == 0 {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) Backoff(int) time.Duration {
	return p.interval
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy runs out of attempts.
// It returns the result of the last call and the number of retries performed.
// Cancelling ctx while waiting returns ctx.Err() wrapped around the last failure.
func Do[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	out, err := fn(ctx)
	if policy == nil {
		return out, 0, err
	}
	retries := 0
	for err != nil && retries < policy.MaxAttempts() && policy.ShouldRetry(err) {
		retries++
		wait := policy.Backoff(retries)
		logger.Debugf("Retrying after error (attempt %d/%d, wait %s): %v", retries, policy.MaxAttempts(), wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, retries, errors.WithSecondaryError(ctx.Err(), err)
		case <-timer.C:
		}
		out, err = fn(ctx)
	}
	return out, retries, err
}

// Verify interfaces
var _ RetryPolicy = (*defaultRetryPolicy)(nil)
