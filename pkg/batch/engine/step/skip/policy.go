// Package skip provides the fault policies that decide whether a failed item aborts a run.
package skip

import (
	"fmt"

	"github.com/cockroachdb/errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Decision is the outcome of a fault policy for one failed item.
type Decision int

const (
	// Continue skips the failed item and keeps reading.
	Continue Decision = iota
	// Abort stops the run as Failed.
	Abort
)

// String returns the string representation of the Decision.
func (d Decision) String() string {
	if d == Continue {
		return "CONTINUE"
	}
	return "ABORT"
}

// FaultPolicy decides the outcome of item-level transform failures.
type FaultPolicy interface {
	// OnItemFailure decides whether the run may continue after one more failure.
	// currentSkipCount: The number of items skipped before this failure.
	OnItemFailure(currentSkipCount int) Decision
	// CanSkip reports whether err is eligible for skipping at all.
	// An ineligible error aborts the run without an ItemSkipped event.
	CanSkip(err error) bool
	// SkipLimit returns the configured limit, or model.Unbounded.
	SkipLimit() int
}

type allOrNothing struct{}

// AllOrNothing returns the policy under which any transform failure aborts the run.
func AllOrNothing() FaultPolicy {
	return allOrNothing{}
}

func (allOrNothing) OnItemFailure(int) Decision { return Abort }
func (allOrNothing) CanSkip(error) bool          { return false }
func (allOrNothing) SkipLimit() int              { return 0 }
func (allOrNothing) String() string              { return "AllOrNothing" }

// Option configures a SkipLimited policy.
type Option func(*skipLimited)

// WithSkippable restricts skipping to errors matching one of the given exception names
// (see exception.IsErrorOfType). A BatchError flagged skippable always qualifies.
func WithSkippable(names ...string) Option {
	return func(p *skipLimited) {
		p.skippableExceptions = append(p.skippableExceptions, names...)
	}
}

type skipLimited struct {
	limit               int
	skippableExceptions []string
}

// SkipLimited returns a policy that skips failing items until more than limit were skipped.
// Any negative limit is treated as model.Unbounded.
func SkipLimited(limit int, opts ...Option) FaultPolicy {
	if limit < 0 {
		limit = model.Unbounded
	}
	p := &skipLimited{limit: limit}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnItemFailure aborts iff currentSkipCount+1 exceeds the limit.
func (p *skipLimited) OnItemFailure(currentSkipCount int) Decision {
	if p.limit == model.Unbounded || currentSkipCount+1 <= p.limit {
		return Continue
	}
	return Abort
}

// CanSkip checks the error against the configured skippable exceptions.
// Without any configured names every error qualifies.
func (p *skipLimited) CanSkip(err error) bool {
	if err == nil {
		return false
	}
	if len(p.skippableExceptions) == 0 {
		return true
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsSkippable() {
		return true
	}
	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *skipLimited) SkipLimit() int {
	return p.limit
}

func (p *skipLimited) String() string {
	if p.limit == model.Unbounded {
		return "SkipLimited(unbounded)"
	}
	return fmt.Sprintf("SkipLimited(%d)", p.limit)
}

// FromConfig builds the fault policy described by the batch configuration.
func FromConfig(cfg config.BatchConfig) (FaultPolicy, error) {
	switch cfg.FaultPolicy {
	case "", config.FaultPolicyAllOrNothing:
		return AllOrNothing(), nil
	case config.FaultPolicySkipLimited:
		return SkipLimited(cfg.ItemSkip.SkipLimit, WithSkippable(cfg.ItemSkip.SkippableExceptions...)), nil
	default:
		return nil, exception.NewBatchErrorf("config", "unknown fault_policy '%s'", cfg.FaultPolicy)
	}
}

// Verify interfaces
var (
	_ FaultPolicy = allOrNothing{}
	_ FaultPolicy = (*skipLimited)(nil)
)
