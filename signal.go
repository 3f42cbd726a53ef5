package arwl

import "sync"

// signal is the lock core's internal one-shot latch. Closing a channel is
// the one Go primitive that resumes every waiter without ever running
// inline on the closer's own goroutine, which is exactly the "always
// asynchronously, never synchronously on the setter" requirement this
// package's SignalPrimitive documents for its exported counterpart below.
type signal struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}

func (s *signal) wait() <-chan struct{} { return s.ch }

func (s *signal) isSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// SignalPrimitive is a latchable one-shot event, exported for callers that
// need the same "set once, many waiters resume asynchronously" contract
// LockCore relies on internally -- e.g. coordinating a pool of goroutines
// around an OnBeforeWriteLockReleased callback's own sub-work.
type SignalPrimitive struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewSignalPrimitive returns a SignalPrimitive, latched already if
// initiallySet is true.
func NewSignalPrimitive(initiallySet bool) *SignalPrimitive {
	p := &SignalPrimitive{ch: make(chan struct{})}
	if initiallySet {
		p.set = true
		close(p.ch)
	}
	return p
}

// Set latches the event. Idempotent.
func (p *SignalPrimitive) Set() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set {
		return
	}
	p.set = true
	close(p.ch)
}

// Reset un-latches the event, so a future Wait call blocks again. Has no
// effect on waiters already resumed by a prior Set.
func (p *SignalPrimitive) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.set {
		return
	}
	p.set = false
	p.ch = make(chan struct{})
}

// Wait returns a channel that is closed once the event is set. For an
// already-set event the returned channel is already closed, so a receive
// on it completes immediately.
func (p *SignalPrimitive) Wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch
}

// IsSet reports whether the event is currently latched.
func (p *SignalPrimitive) IsSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set
}

// CountdownEvent is an auxiliary N-party latch: it resolves once Signal has
// been called count times.
type CountdownEvent struct {
	mu     sync.Mutex
	remain int
	sig    *SignalPrimitive
}

// NewCountdownEvent returns a CountdownEvent requiring count signals before
// it latches. A non-positive count is already latched.
func NewCountdownEvent(count int) *CountdownEvent {
	if count < 0 {
		count = 0
	}
	return &CountdownEvent{remain: count, sig: NewSignalPrimitive(count == 0)}
}

// Signal decrements the remaining count by one, latching the event once it
// reaches zero. Signaling past zero is a no-op.
func (c *CountdownEvent) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remain <= 0 {
		return
	}
	c.remain--
	if c.remain == 0 {
		c.sig.Set()
	}
}

// AddCount increases the remaining count. Safe to call before the event has
// latched; has no effect afterward -- a latched countdown never re-opens.
func (c *CountdownEvent) AddCount(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remain == 0 && c.sig.IsSet() {
		return
	}
	c.remain += n
}

// Wait returns a channel that is closed once the countdown reaches zero.
func (c *CountdownEvent) Wait() <-chan struct{} { return c.sig.Wait() }

// Remaining reports the current outstanding count.
func (c *CountdownEvent) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remain
}
