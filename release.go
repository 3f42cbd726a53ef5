package arwl

import "context"

// drainCallbacks runs a's deferred release callbacks in FIFO order, outside
// the private mutex: no user code ever runs with mu held. It reads the live
// slice by index rather than operating on a snapshot, so a callback that
// itself calls OnBeforeWriteLockReleased during the drain gets appended to,
// and executed within, this same pass instead of being silently dropped or
// deferred to some later release.
func (c *lockCore) drainCallbacks(a *Awaiter) []error {
	var errs []error
	for i := 0; ; i++ {
		c.mu.Lock()
		if i >= len(a.deferredCBs) {
			c.mu.Unlock()
			break
		}
		fn := a.deferredCBs[i]
		c.mu.Unlock()

		if err := fn(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	c.mu.Lock()
	a.deferredCBs = nil
	c.mu.Unlock()
	return errs
}

// release implements Releaser.Release for a, which is guaranteed (by the
// CompareAndSwap in Releaser.Release) to be running exactly once.
func (l *Lock) release(a *Awaiter) error {
	c := l.core

	c.mu.Lock()
	switch {
	case a.kind == KindWrite && a.parent != nil && a.parent.kind == KindUpgradeableRead &&
		a.parent.stickyRequested && c.currentWriteRoot == a:
		// Sticky hand-off: a's write exclusivity (and any callbacks it
		// accumulated) moves to its parent upgradeable-read, which stays
		// the exclusivity owner until it releases in turn.
		ur := a.parent
		ur.stickyActive = true
		ur.deferredCBs = append(ur.deferredCBs, a.deferredCBs...)
		a.deferredCBs = nil
		delete(c.writeHolders, a)
		c.currentWriteRoot = ur
		c.logEvent("release-sticky-handoff", a)
		c.evaluate()
		post := c.drainPost()
		c.mu.Unlock()
		runPost(post)
		return nil

	case a.kind == KindWrite && c.currentWriteRoot == a:
		// Terminal release of the active write chain: drain callbacks
		// while the write lock is still observably held, then clear it.
		c.pendingDrains++
		c.mu.Unlock()

		errs := c.drainCallbacks(a)

		c.mu.Lock()
		c.pendingDrains--
		if len(errs) > 0 {
			c.completionErrs = append(c.completionErrs, errs...)
		}
		delete(c.writeHolders, a)
		c.currentWriteRoot = nil
		c.logEvent("release", a)
		c.evaluate()
		post := c.drainPost()
		c.mu.Unlock()
		runPost(post)
		return newAggregateError(errs)

	case a.kind == KindUpgradeableRead && (c.currentURRoot == a || c.currentWriteRoot == a):
		var errs []error
		if a.stickyActive {
			c.pendingDrains++
			c.mu.Unlock()

			errs = c.drainCallbacks(a)

			c.mu.Lock()
			c.pendingDrains--
			if len(errs) > 0 {
				c.completionErrs = append(c.completionErrs, errs...)
			}
			c.currentWriteRoot = nil
		}
		delete(c.urHolders, a)
		if c.currentURRoot == a {
			c.currentURRoot = nil
		}
		c.logEvent("release", a)
		c.evaluate()
		post := c.drainPost()
		c.mu.Unlock()
		runPost(post)
		return newAggregateError(errs)

	default:
		// A plain reader, or a nested write/upgradeable-read that is not
		// (or no longer) the active exclusivity root: dropping its
		// membership cannot by itself change who owns exclusivity.
		delete(c.readHolders, a)
		delete(c.urHolders, a)
		delete(c.writeHolders, a)
		c.logEvent("release", a)
		c.evaluate()
		post := c.drainPost()
		c.mu.Unlock()
		runPost(post)
		return nil
	}
}
