package arwl

import "context"

// AmbientContext is the per-task scoped data this package threads through
// context.Context: the stack of Awaiters currently visible to whatever
// logical flow owns a given context value, innermost last, plus a
// suppression depth for HideLocks.
//
// Go has no implicit per-goroutine storage, so there is no way to make an
// Awaiter "ambiently" visible to code that was not handed the context it
// came back on. Every lock acquisition therefore returns a derived
// context.Context; callers that spawn a child goroutine and want it to see
// the parent's held locks must pass that context along explicitly. Because
// context.Context values are immutable (each WithValue call produces a new
// node), a goroutine that receives a context at spawn time automatically
// gets a snapshot: neither the parent's nor the child's later acquisitions
// cross between them, which is exactly the isolation the original ambient
// stack design calls for.
type AmbientContext struct {
	top        *Awaiter
	suppressed int // number of HideLocks calls applied along this context's derivation
}

type ambientKey struct{}

func ambientFrom(ctx context.Context) AmbientContext {
	if ctx == nil {
		return AmbientContext{}
	}
	if v, ok := ctx.Value(ambientKey{}).(AmbientContext); ok {
		return v
	}
	return AmbientContext{}
}

func withAmbient(ctx context.Context, a AmbientContext) context.Context {
	return context.WithValue(ctx, ambientKey{}, a)
}

// pushAwaiter returns a context derived from ctx with a pushed onto the
// ambient stack. Called once per grant, never while the core's private
// mutex is held.
func pushAwaiter(ctx context.Context, a *Awaiter) context.Context {
	amb := ambientFrom(ctx)
	amb.top = a
	return withAmbient(ctx, amb)
}

// requestParent computes the parent to record on a new request: the top of
// the ambient stack, or nil if there is none, or if the current context is
// inside a HideLocks suppression scope -- suppression makes admission treat
// the current task as having no ancestral Awaiters for new top-level
// requests.
func requestParent(ctx context.Context) *Awaiter {
	amb := ambientFrom(ctx)
	if amb.suppressed > 0 {
		return nil
	}
	return amb.top
}

// lockStackContains inspects the ambient stack carried by ctx (or, if
// awaiter is non-nil, that Awaiter's own ancestor chain instead) for any
// Awaiter whose flags include all of want. It is the protected extension
// point for flag-gated behaviour (e.g. sticky-write detection), exposed
// here as a package-level function since Go favours composition over
// subclassing.
func lockStackContains(ctx context.Context, awaiter *Awaiter, want LockFlags) bool {
	var chain *Awaiter
	if awaiter != nil {
		chain = awaiter
	} else {
		chain = ambientFrom(ctx).top
	}
	for cur := chain; cur != nil; cur = cur.parent {
		if cur.flags.Has(want) {
			return true
		}
	}
	return false
}

// Suppression is the one-shot handle HideLocks returns. While its scope is
// in effect (i.e. while code uses the context HideLocks returned, or any
// context derived from it), isReadLockHeld/isUpgradeableReadLockHeld/
// isWriteLockHeld report false for the current task and any new top-level
// request records no parent, regardless of what is actually held.
//
// Suppression frames do not release anything: the underlying Awaiters
// remain held and continue to block incompatible requests from other
// tasks. Because this package represents ambient state as an immutable,
// explicitly-threaded context value rather than mutable per-goroutine
// state, overlapping/non-lexically-nested Suppression lifetimes are safe
// by construction: Dispose never needs to "undo" a shared
// counter, since the suppressed context's effect is scoped to whichever
// branch of context values a caller chooses to keep using. Dispose is kept
// for API symmetry with Releaser and is idempotent.
type Suppression struct{}

// Dispose ends this Suppression. A no-op today -- suppression has no
// reference count to decrement, since its effect lives entirely in the
// context value a caller chooses to keep using -- but kept as a method for
// API symmetry with Releaser, and safe to call any number of times or in
// any order relative to other Suppression values.
func (s *Suppression) Dispose() {}

// HideLocks returns a context in which the ambient stack is suppressed, and
// a Suppression handle. Use the returned context (or values derived from
// it) for the duration of the suppressed scope; revert to ctx afterward.
func HideLocks(ctx context.Context) (context.Context, *Suppression) {
	amb := ambientFrom(ctx)
	amb.suppressed++
	return withAmbient(ctx, amb), &Suppression{}
}

func isSuppressed(ctx context.Context) bool {
	return ambientFrom(ctx).suppressed > 0
}
