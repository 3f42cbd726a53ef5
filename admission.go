package arwl

// evaluate re-runs admission to a fixed point: nested requests (whose
// parent is already held) are scanned first since they take priority over
// unrelated head-of-queue requests, then the head of each queue is
// considered for top-level admission. Each pass can unblock requests the
// previous pass could not see (e.g. admitting a nested write can, on
// release, immediately free a head-of-queue writer), so the two phases loop
// until neither makes progress. Must be called with mu held; it never
// blocks and never invokes user code -- it only populates c.post.
func (c *lockCore) evaluate() {
	for {
		progressed := c.admitNested()
		if c.admitHeads() {
			progressed = true
		}
		if !progressed {
			break
		}
	}
	c.checkCompletion()
}

// admitNested admits any pending request whose recorded parent is
// currently held, across all three kinds, in FIFO order within each kind.
// Nested requests always take priority over unrelated requests already
// waiting at the head of the same queue.
func (c *lockCore) admitNested() bool {
	progressed := false
	for k := 0; k < numKinds; k++ {
		kind := LockKind(k)
		c.queue.forEach(kind, func(a *Awaiter) bool {
			if a.parent == nil || !c.isHeld(a.parent) {
				return true
			}
			if !c.canAdmitNested(a) {
				return true
			}
			c.queue.remove(a)
			c.grant(a, false)
			progressed = true
			return true
		})
	}
	return progressed
}

// chainHasEscalationAncestor reports whether parent, or any of its own
// ancestors, is an UpgradeableRead or Write Awaiter. A nested
// UpgradeableRead or Write request is only ever admissible along a chain
// that passes through one of these: plain Read grants shared access only
// and is never itself an escalation point.
func chainHasEscalationAncestor(parent *Awaiter) bool {
	for cur := parent; cur != nil; cur = cur.parent {
		if cur.kind == KindUpgradeableRead || cur.kind == KindWrite {
			return true
		}
	}
	return false
}

// canAdmitNested reports whether a, whose parent is already held, may be
// granted immediately.
func (c *lockCore) canAdmitNested(a *Awaiter) bool {
	switch a.kind {
	case KindRead:
		// A nested reader never conflicts with anything its ancestor
		// already holds.
		return true

	case KindUpgradeableRead:
		// Only one upgradeable-read lineage may be directly held at a
		// time; a nested request is fine as long as it is part of that
		// same lineage (or none is held at all).
		if c.currentURRoot != nil && c.currentURRoot != a.parent && !isAncestorOf(c.currentURRoot, a) {
			return false
		}
		return true

	case KindWrite:
		if c.currentWriteRoot != nil {
			// Already inside an active write chain: admit only if a is
			// actually part of it.
			return c.currentWriteRoot == a.parent || isAncestorOf(c.currentWriteRoot, a)
		}
		if c.currentURRoot != nil && (c.currentURRoot == a.parent || isAncestorOf(c.currentURRoot, a)) {
			// Upgrading (or a write nested under an upgrade) within a
			// held upgradeable-read lineage: must still wait for any
			// reader outside that lineage to drain first, since an
			// unrelated reader and this write cannot overlap.
			for r := range c.readHolders {
				if !chainContains(a, r) {
					return false
				}
			}
			return true
		}
		return false
	}
	return false
}

// admitHeads considers only the head of each queue, i.e. top-level
// admission with no currently-held parent. Writers are given precedence
// over readers to bound writer starvation: once any writer is queued, no
// new unrelated top-level reader is admitted until it clears.
func (c *lockCore) admitHeads() bool {
	progressed := false

	if a := c.queue.head(KindWrite); a != nil && !c.isHeld(a.parent) && c.canAdmitHeadWrite() {
		c.queue.remove(a)
		c.grant(a, true)
		progressed = true
	}

	if a := c.queue.head(KindUpgradeableRead); a != nil && !c.isHeld(a.parent) && c.canAdmitHeadUR() {
		c.queue.remove(a)
		c.grant(a, true)
		progressed = true
	}

	if c.queue.len(KindWrite) == 0 {
		for {
			a := c.queue.head(KindRead)
			if a == nil || c.isHeld(a.parent) || !c.canAdmitHeadRead() {
				break
			}
			c.queue.remove(a)
			c.grant(a, true)
			progressed = true
		}
	}

	return progressed
}

func (c *lockCore) canAdmitHeadWrite() bool {
	return c.currentWriteRoot == nil && c.currentURRoot == nil && len(c.readHolders) == 0
}

func (c *lockCore) canAdmitHeadUR() bool {
	return c.currentWriteRoot == nil && c.currentURRoot == nil
}

func (c *lockCore) canAdmitHeadRead() bool {
	return c.currentWriteRoot == nil
}

// grant marks a as held and schedules its resumption. topLevel distinguishes
// a head-of-queue grant (which may establish a new currentURRoot) from a
// nested one (which never does: currentURRoot tracks only the single
// directly-held upgradeable-read lineage, not every Awaiter nested beneath
// something else that happens to itself be an upgradeable-read).
func (c *lockCore) grant(a *Awaiter, topLevel bool) {
	switch a.kind {
	case KindRead:
		c.readHolders[a] = struct{}{}
	case KindUpgradeableRead:
		c.urHolders[a] = struct{}{}
		if topLevel {
			c.currentURRoot = a
		}
	case KindWrite:
		c.writeHolders[a] = struct{}{}
		if c.currentWriteRoot == nil {
			c.currentWriteRoot = a
		}
	}
	c.logEvent("grant", a)
	c.post = append(c.post, a.sig.set)
}
