package arwl

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is the error a pending request's awaitable fails with when
	// its context is canceled (or was already canceled) before grant.
	ErrCanceled = errors.New("arwl: lock request canceled")

	// ErrLockCompleted is returned for a new top-level request made after
	// Complete has been called.
	ErrLockCompleted = errors.New("arwl: lock has completed, no new top-level requests accepted")

	// ErrInvalidOperation covers caller misuse: a synchronous lock call from
	// a thread-affinity-constrained caller, registering a release callback
	// without holding a write lock, or a nested UpgradeableRead or Write
	// request whose held ancestor chain contains only Read locks.
	ErrInvalidOperation = errors.New("arwl: invalid operation")
)

// AggregateError reports one or more OnBeforeWriteLockReleased callback
// failures gathered during a single release drain. Release proceeds
// regardless of callback failure; the aggregate surfaces through the
// releasing call (and, if unobserved there, through Completion).
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("arwl: release callback failed: %v", e.Errs[0])
	}
	return fmt.Sprintf("arwl: %d release callbacks failed: %v", len(e.Errs), errors.Join(e.Errs...))
}

// Unwrap supports errors.Is/errors.As against any constituent error.
func (e *AggregateError) Unwrap() []error { return e.Errs }

func newAggregateError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, len(errs))
	copy(out, errs)
	return &AggregateError{Errs: out}
}
