// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package arwl implements an asynchronous reader/writer lock with three
// grades of access:
//
// A Read lock grants shared access: any number of readers may hold it
// concurrently, provided no writer holds the lock. An UpgradeableRead lock
// is also shared with readers, but at most one may be directly held at a
// time, and it is the only kind from which a caller may request a nested
// Write lock without first releasing its own hold. A Write lock grants
// exclusive access: while held, no other Read, UpgradeableRead, or Write
// may be outstanding anywhere else in the lock's ancestry.
//
// Unlike a plain sync.RWMutex, requests nest: a goroutine already holding a
// lock may request another lock "underneath" it (passing along the
// context.Context returned by its own acquisition), and that nested request
// is admitted ahead of unrelated queued requests whenever doing so does not
// violate the exclusivity rules above. This is what lets a goroutine holding
// an UpgradeableRead escalate to a Write lock without deadlocking against
// itself, and it is also how cancellation-safe recursive algorithms can walk
// a structure under a single top-level lock while still describing their
// traversal as a sequence of (possibly narrower) lock requests.
//
// Ambient context. Go has no implicit per-goroutine "currently held locks"
// state, so this package represents it explicitly: every successful lock
// request returns a derived context.Context carrying the newly granted
// Awaiter on an immutable stack. Callers that want nested-admission
// semantics and accurate isReadLockHeld/isWriteLockHeld/isUpgradeableReadLockHeld
// answers must thread that derived context into subsequent calls (including
// calls made on a spawned goroutine, which should simply be passed a copy of
// the context at the time of the go statement -- since context.Context
// values are immutable, this automatically gives a "child sees a snapshot
// at spawn time" behaviour without any special plumbing).
//
//	ctx, r, err := lock.ReadLockAsync(ctx)
//	if err != nil { ... }
//	defer r.Release()
//	// ctx now carries this Awaiter; nested requests made with it may be
//	// admitted immediately instead of queueing.
//
// Shutdown. Complete marks the lock as draining: new top-level requests
// begin failing with ErrLockCompleted, while requests already queued before
// Complete was called continue to be serviced normally. Completion resolves
// once every Awaiter has been released and every OnBeforeWriteLockReleased
// callback has run to completion.
package arwl
