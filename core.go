package arwl

import (
	"context"
	"sync"

	"github.com/corvidlock/arwl/arwllog"
)

// lockCore is the private state machine behind Lock: holder sets, pending
// queues, and completion bookkeeping, all guarded by mu. No awaiting, no
// user callback execution, and no signal notification happens while mu is
// held; everything that must happen after a state transition is appended
// to post and run once mu is released.
type lockCore struct {
	mu sync.Mutex

	nextID uint64

	readHolders  map[*Awaiter]struct{}
	urHolders    map[*Awaiter]struct{}
	writeHolders map[*Awaiter]struct{}

	// currentWriteRoot is the Awaiter that currently owns write
	// exclusivity: either a directly-granted Write Awaiter, or -- after a
	// sticky hand-off -- the UpgradeableRead Awaiter that absorbed it.
	currentWriteRoot *Awaiter
	// currentURRoot is the single directly-held (non-nested) UpgradeableRead,
	// or nil.
	currentURRoot *Awaiter

	queue requestQueue

	completing bool
	completed  bool

	completionSig  *signal
	completionErrs []error

	pendingDrains int // outstanding release-pipeline drains; gates Completion

	post []func() // continuations scheduled while mu was held

	logger *arwllog.Logger
	name   string
}

func newLockCore(name string, logger *arwllog.Logger) *lockCore {
	if logger == nil {
		logger = arwllog.Discard()
	}
	return &lockCore{
		readHolders:   make(map[*Awaiter]struct{}),
		urHolders:     make(map[*Awaiter]struct{}),
		writeHolders:  make(map[*Awaiter]struct{}),
		completionSig: newSignal(),
		logger:        logger,
		name:          name,
	}
}

func runPost(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// drainPost must be called with mu held; it hands back the pending
// continuations and resets the list. The caller runs them after Unlock.
func (c *lockCore) drainPost() []func() {
	post := c.post
	c.post = nil
	return post
}

func (c *lockCore) logEvent(action string, a *Awaiter) {
	c.logger.Debug().
		Str("lock", c.name).
		Str("action", action).
		Str("kind", a.kind.String()).
		Uint64("awaiter", a.id).
		Log("arwl")
}

// isHeld reports whether a is currently a recognized holder: a member of
// one of the three holder sets, or the current write/upgradeable-read
// exclusivity owner (which, after a sticky write hand-off, may be an
// UpgradeableRead Awaiter rather than a Write one).
func (c *lockCore) isHeld(a *Awaiter) bool {
	if a == nil {
		return false
	}
	if _, ok := c.readHolders[a]; ok {
		return true
	}
	if _, ok := c.urHolders[a]; ok {
		return true
	}
	if _, ok := c.writeHolders[a]; ok {
		return true
	}
	return a == c.currentWriteRoot || a == c.currentURRoot
}

// request enqueues a new lock request and blocks the calling goroutine
// until it is granted, fails, or ctx is done. On success it returns a
// context carrying the granted Awaiter and a Releaser; on failure, the
// original ctx and a nil Releaser.
func (c *lockCore) request(ctx context.Context, owner *Lock, kind LockKind, flags LockFlags) (context.Context, *Releaser, error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, ErrCanceled
	}

	parent := requestParent(ctx)

	c.mu.Lock()
	nested := parent != nil && c.isHeld(parent)
	if !nested && c.completing {
		c.mu.Unlock()
		return ctx, nil, ErrLockCompleted
	}
	// A nested escalation (requesting UpgradeableRead or Write while the
	// ambient chain holds nothing stronger than Read) can never become
	// admissible -- it would otherwise sit in its queue forever, since
	// admitNested only ever looks at currentWriteRoot/currentURRoot
	// ancestry. Fail it immediately instead (e.g. "RW", "RU", "RS").
	if nested && kind != KindRead && !chainHasEscalationAncestor(parent) {
		c.mu.Unlock()
		return ctx, nil, ErrInvalidOperation
	}

	c.nextID++
	a := &Awaiter{
		lock:            owner,
		id:              c.nextID,
		kind:            kind,
		flags:           flags,
		parent:          parent,
		sig:             newSignal(),
		stickyRequested: kind == KindUpgradeableRead && flags.Has(FlagStickyWrite),
	}
	c.queue.enqueue(a)
	c.evaluate()
	post := c.drainPost()
	c.mu.Unlock()
	runPost(post)

	select {
	case <-a.sig.wait():
	case <-ctx.Done():
		c.cancelPending(a)
		<-a.sig.wait()
	}

	if a.err != nil {
		return ctx, nil, a.err
	}
	return pushAwaiter(ctx, a), &Releaser{awaiter: a}, nil
}

// cancelPending removes a from its queue and fails it, unless it has
// already been granted (or already failed), in which case it is a no-op:
// cancellation never revokes a held lock.
func (c *lockCore) cancelPending(a *Awaiter) {
	c.mu.Lock()
	if a.queued {
		c.queue.remove(a)
		a.err = ErrCanceled
		c.post = append(c.post, a.sig.set)
	}
	post := c.drainPost()
	c.mu.Unlock()
	runPost(post)
}

// complete marks the core as draining. Idempotent.
func (c *lockCore) complete() {
	c.mu.Lock()
	if !c.completing {
		c.completing = true
		c.evaluate()
	}
	post := c.drainPost()
	c.mu.Unlock()
	runPost(post)
}

func (c *lockCore) completion() <-chan struct{} { return c.completionSig.wait() }

func (c *lockCore) completionErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return newAggregateError(c.completionErrs)
}

// checkCompletion must be called with mu held, typically from evaluate.
func (c *lockCore) checkCompletion() {
	if c.completed || !c.completing {
		return
	}
	if len(c.readHolders) != 0 || len(c.writeHolders) != 0 || len(c.urHolders) != 0 {
		return
	}
	if c.currentWriteRoot != nil || c.currentURRoot != nil {
		return
	}
	if !c.queue.empty() {
		return
	}
	if c.pendingDrains != 0 {
		return
	}
	c.completed = true
	c.post = append(c.post, c.completionSig.set)
}

// registerCallback attaches fn to the write Awaiter that currently owns
// exclusivity, provided ctx's ambient chain reaches it. Fails with
// ErrInvalidOperation if the caller does not hold a write lock.
func (c *lockCore) registerCallback(ctx context.Context, fn func(context.Context) error) error {
	if isSuppressed(ctx) {
		return ErrInvalidOperation
	}
	top := ambientFrom(ctx).top

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentWriteRoot == nil || !chainContains(top, c.currentWriteRoot) {
		return ErrInvalidOperation
	}
	c.currentWriteRoot.deferredCBs = append(c.currentWriteRoot.deferredCBs, fn)
	return nil
}

// isReadLockHeld/isUpgradeableReadLockHeld/isWriteLockHeld answer from the
// current state for whichever Awaiter chain ctx carries, respecting
// suppression.
func (c *lockCore) isReadLockHeld(ctx context.Context) bool {
	if isSuppressed(ctx) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for cur := ambientFrom(ctx).top; cur != nil; cur = cur.parent {
		if _, ok := c.readHolders[cur]; ok {
			return true
		}
	}
	return false
}

func (c *lockCore) isUpgradeableReadLockHeld(ctx context.Context) bool {
	if isSuppressed(ctx) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for cur := ambientFrom(ctx).top; cur != nil; cur = cur.parent {
		if _, ok := c.urHolders[cur]; ok {
			return true
		}
		if cur == c.currentURRoot {
			return true
		}
	}
	return false
}

func (c *lockCore) isWriteLockHeld(ctx context.Context) bool {
	if isSuppressed(ctx) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for cur := ambientFrom(ctx).top; cur != nil; cur = cur.parent {
		if _, ok := c.writeHolders[cur]; ok {
			return true
		}
		if cur == c.currentWriteRoot {
			return true
		}
	}
	return false
}

// stats is a point-in-time snapshot of occupancy and queue depth, taken
// under the private mutex like every other read of this state.
type stats struct {
	Readers            int
	UpgradeableHeld     bool
	WriteHeld           bool
	ReadQueueDepth      int
	UpgradeableQueueLen int
	WriteQueueDepth     int
}

func (c *lockCore) snapshot() stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stats{
		Readers:             len(c.readHolders),
		UpgradeableHeld:     c.currentURRoot != nil,
		WriteHeld:           c.currentWriteRoot != nil,
		ReadQueueDepth:      c.queue.len(KindRead),
		UpgradeableQueueLen: c.queue.len(KindUpgradeableRead),
		WriteQueueDepth:     c.queue.len(KindWrite),
	}
}
