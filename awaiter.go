package arwl

import (
	"context"
	"sync/atomic"
)

// LockKind identifies the grade of access an Awaiter requests or holds.
type LockKind uint8

const (
	KindRead LockKind = iota
	KindUpgradeableRead
	KindWrite

	numKinds = int(KindWrite) + 1
)

// String implements fmt.Stringer, mostly for log lines and test failure
// messages.
func (k LockKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindUpgradeableRead:
		return "upgradeable-read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// LockFlags is a bitset of request modifiers. The low 16 bits are reserved
// by this package; the high 16 bits are available to callers layering their
// own semantics on top via lockStackContains.
type LockFlags uint32

const (
	FlagNone LockFlags = 0

	// FlagStickyWrite is only meaningful on an UpgradeableRead request: a
	// Write lock later requested as a direct child of that Awaiter remains
	// logically active -- continuing to satisfy isWriteLockHeld and to
	// block unrelated readers/writers -- once released, until the
	// upgradeable-read itself releases.
	FlagStickyWrite LockFlags = 1 << 0

	// ReservedFlagsMask marks the bits reserved for this package's own use;
	// extensions should keep to the complement.
	ReservedFlagsMask LockFlags = 0x0000ffff
)

// Has reports whether all bits of want are set in f.
func (f LockFlags) Has(want LockFlags) bool { return f&want == want }

// Awaiter is the stable identity of one issued or pending lock request. Its
// zero value is never valid; Awaiters are produced only by a Lock's request
// methods.
type Awaiter struct {
	lock   *Lock
	id     uint64
	kind   LockKind
	flags  LockFlags
	parent *Awaiter

	// queue linkage; guarded by lock.core.mu while queued is true.
	qnext, qprev *Awaiter
	queued       bool

	sig *signal // closed once the request is resolved (granted or failed).
	err error   // set before sig is closed, iff the request failed.

	released int32 // atomic; 0 once granted, 1 once Release has taken effect.

	// Sticky-write bookkeeping; meaningful only when kind == KindUpgradeableRead.
	stickyRequested bool // FlagStickyWrite was set at acquisition
	stickyActive    bool // a nested write has released and handed exclusivity here
	deferredCBs     []func(context.Context) error
}

// Kind reports the grade of access this Awaiter was requested with.
func (a *Awaiter) Kind() LockKind { return a.kind }

// Flags reports the flags this Awaiter was requested with.
func (a *Awaiter) Flags() LockFlags { return a.flags }

// Parent is the nearest enclosing held Awaiter this request inherited from
// the caller's ambient context at request time, or nil for a top-level
// request.
func (a *Awaiter) Parent() *Awaiter { return a.parent }

// isAncestorOf reports whether ancestor appears somewhere in of's parent
// chain. ancestor == of does not count (an Awaiter is not its own ancestor).
func isAncestorOf(ancestor, of *Awaiter) bool {
	if ancestor == nil || of == nil {
		return false
	}
	for cur := of.parent; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// chainContains reports whether target appears in chain's ancestor
// lineage, including chain itself.
func chainContains(chain, target *Awaiter) bool {
	if target == nil {
		return false
	}
	for cur := chain; cur != nil; cur = cur.parent {
		if cur == target {
			return true
		}
	}
	return false
}

// Releaser is a one-shot handle bound to a granted Awaiter. Release is
// idempotent: the second and later calls are no-ops, and never affect any
// other Releaser's Awaiter.
type Releaser struct {
	awaiter *Awaiter
}

// Release releases the lock this Releaser guards. Safe to call more than
// once (subsequent calls are no-ops, returning nil) and from any goroutine.
// When the Awaiter is the Write (or sticky UpgradeableRead) that currently
// owns write exclusivity and the release ends it, Release runs the
// accumulated OnBeforeWriteLockReleased callbacks synchronously before
// returning; a non-nil error is the aggregate of whatever those callbacks
// returned. A Write released as the direct child of a sticky
// UpgradeableRead instead hands its callbacks to that UpgradeableRead and
// returns nil; they run when the UpgradeableRead is released.
func (r *Releaser) Release() error {
	if r == nil || r.awaiter == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&r.awaiter.released, 0, 1) {
		return nil
	}
	return r.awaiter.lock.release(r.awaiter)
}

// Awaiter exposes the Releaser's underlying Awaiter, primarily so tests and
// lockStackContains-style extensions can inspect kind/flags without needing
// the lock's own accessors.
func (r *Releaser) Awaiter() *Awaiter { return r.awaiter }
