package arwl

import (
	"context"

	"github.com/corvidlock/arwl/arwllog"
)

// ThreadAffinity lets a caller constrain which goroutine may perform the
// synchronous (blocking, non-Async) lock calls. The default, unconstrained,
// imposes no restriction; callers that need to forbid synchronous calls
// from, say, a single-threaded event-loop goroutine can supply their own
// implementation via WithThreadAffinity.
type ThreadAffinity interface {
	// CheckAccess returns ErrInvalidOperation (or a wrapping error) if the
	// calling goroutine is not permitted to make a synchronous lock call.
	CheckAccess() error
}

type unconstrainedAffinity struct{}

func (unconstrainedAffinity) CheckAccess() error { return nil }

// Lock is an asynchronous reader/writer lock supporting three grades of
// access (Read, UpgradeableRead, Write), request nesting via
// context.Context, cancellation, and graceful shutdown via Complete.
//
// The zero Lock is not valid; construct one with NewLock.
type Lock struct {
	core     *lockCore
	affinity ThreadAffinity
}

// Option configures a Lock constructed by NewLock.
type Option func(*Lock)

// WithLogger attaches a structured logger; arwl logs admission, grant,
// release, and sticky hand-off events at debug level. A nil logger (or
// omitting this option) leaves logging disabled.
func WithLogger(logger *arwllog.Logger) Option {
	return func(l *Lock) { l.core.logger = logger }
}

// WithName attaches a name used to tag log lines and returned by Name(),
// useful when a process holds more than one Lock.
func WithName(name string) Option {
	return func(l *Lock) { l.core.name = name }
}

// WithThreadAffinity installs a ThreadAffinity check applied to every
// synchronous (non-Async) call.
func WithThreadAffinity(a ThreadAffinity) Option {
	return func(l *Lock) { l.affinity = a }
}

// NewLock constructs a ready-to-use Lock.
func NewLock(opts ...Option) *Lock {
	l := &Lock{
		core:     newLockCore("", nil),
		affinity: unconstrainedAffinity{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.core.logger == nil {
		l.core.logger = arwllog.Discard()
	}
	return l
}

// Name returns the name this Lock was constructed with, or "" if none was
// given.
func (l *Lock) Name() string { return l.core.name }

// ReadLockAsync requests a Read lock. If ctx's ambient stack (see package
// doc) already holds a compatible Awaiter, the request is nested and
// admitted ahead of unrelated queued requests whenever doing so does not
// violate exclusivity. The returned context carries the granted Awaiter for
// use in further nested requests; the returned Releaser must eventually
// have Release called on it exactly once.
func (l *Lock) ReadLockAsync(ctx context.Context) (context.Context, *Releaser, error) {
	return l.core.request(ctx, l, KindRead, FlagNone)
}

// UpgradeableReadLockAsync requests an UpgradeableRead lock. Passing
// FlagStickyWrite in flags makes a Write lock later nested under the
// returned context remain logically active -- continuing to block
// unrelated readers/writers and satisfy IsWriteLockHeld -- after it itself
// releases, until the UpgradeableRead releases in turn.
func (l *Lock) UpgradeableReadLockAsync(ctx context.Context, flags LockFlags) (context.Context, *Releaser, error) {
	return l.core.request(ctx, l, KindUpgradeableRead, flags)
}

// WriteLockAsync requests a Write lock. Requesting a Write lock as a nested
// child of a held UpgradeableRead is the only way to acquire exclusivity
// without first releasing shared access.
func (l *Lock) WriteLockAsync(ctx context.Context) (context.Context, *Releaser, error) {
	return l.core.request(ctx, l, KindWrite, FlagNone)
}

// ReadLock is the synchronous form of ReadLockAsync: it blocks the calling
// goroutine until granted, canceled, or ThreadAffinity forbids the call.
func (l *Lock) ReadLock(ctx context.Context) (context.Context, *Releaser, error) {
	if err := l.affinity.CheckAccess(); err != nil {
		return ctx, nil, err
	}
	return l.ReadLockAsync(ctx)
}

// UpgradeableReadLock is the synchronous form of UpgradeableReadLockAsync.
func (l *Lock) UpgradeableReadLock(ctx context.Context, flags LockFlags) (context.Context, *Releaser, error) {
	if err := l.affinity.CheckAccess(); err != nil {
		return ctx, nil, err
	}
	return l.UpgradeableReadLockAsync(ctx, flags)
}

// WriteLock is the synchronous form of WriteLockAsync.
func (l *Lock) WriteLock(ctx context.Context) (context.Context, *Releaser, error) {
	if err := l.affinity.CheckAccess(); err != nil {
		return ctx, nil, err
	}
	return l.WriteLockAsync(ctx)
}

// IsReadLockHeld reports whether ctx's ambient chain currently holds a Read
// lock (directly, or as an ancestor), unless inside a HideLocks scope.
func (l *Lock) IsReadLockHeld(ctx context.Context) bool { return l.core.isReadLockHeld(ctx) }

// IsUpgradeableReadLockHeld reports whether ctx's ambient chain currently
// holds an UpgradeableRead lock, unless inside a HideLocks scope.
func (l *Lock) IsUpgradeableReadLockHeld(ctx context.Context) bool {
	return l.core.isUpgradeableReadLockHeld(ctx)
}

// IsWriteLockHeld reports whether ctx's ambient chain currently holds a
// Write lock -- including one held only via a sticky-write hand-off to an
// ancestor UpgradeableRead -- unless inside a HideLocks scope.
func (l *Lock) IsWriteLockHeld(ctx context.Context) bool { return l.core.isWriteLockHeld(ctx) }

// OnBeforeWriteLockReleased registers fn to run just before the Write lock
// ctx's ambient chain currently holds is released, while it is still
// observably held. Returns ErrInvalidOperation if ctx does not carry a
// currently-held Write lock (directly or via sticky hand-off). Safe to call
// from within another such callback during the drain itself; fn then runs
// within the same drain pass.
func (l *Lock) OnBeforeWriteLockReleased(ctx context.Context, fn func(context.Context) error) error {
	return l.core.registerCallback(ctx, fn)
}

// Complete marks the Lock as draining: new top-level lock requests begin
// failing with ErrLockCompleted. Requests already queued (and any nested
// requests made against Awaiters granted before or after the call) continue
// to be serviced normally. Idempotent.
func (l *Lock) Complete() { l.core.complete() }

// Completion returns a channel that is closed once every Awaiter has been
// released, every release-callback drain has finished, and the pending
// queues are empty, and Complete has been called. It is always safe to
// call, whether or not Complete has been called yet; the channel simply
// never closes until it has.
func (l *Lock) Completion() <-chan struct{} { return l.core.completion() }

// CompletionErr returns the aggregate of every OnBeforeWriteLockReleased
// callback error observed across the Lock's lifetime, or nil if none
// occurred. Meaningful once Completion's channel has closed; before that it
// reflects only errors seen so far.
func (l *Lock) CompletionErr() error { return l.core.completionErr() }

// Stats is a point-in-time snapshot of Lock occupancy and queue depth,
// intended for diagnostics/metrics rather than synchronization decisions
// (it is stale the instant it is returned).
type Stats struct {
	Readers             int
	UpgradeableHeld     bool
	WriteHeld           bool
	ReadQueueDepth      int
	UpgradeableQueueLen int
	WriteQueueDepth     int
}

// Stats returns a snapshot of the Lock's current occupancy and queue
// depths.
func (l *Lock) Stats() Stats {
	s := l.core.snapshot()
	return Stats{
		Readers:             s.Readers,
		UpgradeableHeld:     s.UpgradeableHeld,
		WriteHeld:           s.WriteHeld,
		ReadQueueDepth:      s.ReadQueueDepth,
		UpgradeableQueueLen: s.UpgradeableQueueLen,
		WriteQueueDepth:     s.WriteQueueDepth,
	}
}

// HideLocks returns a context in which this Lock's Is*LockHeld methods
// report false and new top-level requests record no ambient parent, for as
// long as the returned context (or a value derived from it) is in use. It
// is a thin, Lock-agnostic re-export of the package-level HideLocks -- the
// suppression it installs affects every Lock's view of ctx, not just this
// one: suppression is ambient, not scoped to a particular Lock.
func (l *Lock) HideLocks(ctx context.Context) (context.Context, *Suppression) {
	return HideLocks(ctx)
}

// LockStackContains is the protected extension point spec'd for types that
// layer additional LockFlags bits on top of this package's own: it reports
// whether ctx's ambient chain (or, if awaiter is non-nil, that Awaiter's own
// ancestor chain instead) contains an Awaiter whose flags include every bit
// of want. Exposed as a plain method rather than relying on subclassing,
// since Go favours composition over inheritance for this kind of extension
// hook.
func (l *Lock) LockStackContains(ctx context.Context, awaiter *Awaiter, want LockFlags) bool {
	return lockStackContains(ctx, awaiter, want)
}
