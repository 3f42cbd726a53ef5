package arwl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmbientFromEmptyContext(t *testing.T) {
	amb := ambientFrom(context.Background())
	assert.Nil(t, amb.top)
	assert.Equal(t, 0, amb.suppressed)
}

func TestPushAwaiterAndRequestParent(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, requestParent(ctx))

	a := &Awaiter{id: 1}
	ctx = pushAwaiter(ctx, a)
	assert.Same(t, a, requestParent(ctx))

	b := &Awaiter{id: 2}
	ctx2 := pushAwaiter(ctx, b)
	assert.Same(t, b, requestParent(ctx2), "pushing again replaces top for the derived context")
	assert.Same(t, a, requestParent(ctx), "the original context is unaffected by further derivation")
}

func TestHideLocksSuppressesRequestParent(t *testing.T) {
	ctx := context.Background()
	a := &Awaiter{id: 1}
	ctx = pushAwaiter(ctx, a)
	assert.Same(t, a, requestParent(ctx))

	hidden, sup := HideLocks(ctx)
	assert.Nil(t, requestParent(hidden), "a new top-level request inside HideLocks records no ambient parent")
	assert.True(t, isSuppressed(hidden))
	assert.False(t, isSuppressed(ctx), "suppression does not retroactively affect the context it was derived from")

	sup.Dispose()
	assert.True(t, isSuppressed(hidden), "Dispose does not un-suppress an already-derived context")
}

func TestHideLocksOverlappingDisposeAnyOrder(t *testing.T) {
	ctx := context.Background()
	hidden1, sup1 := HideLocks(ctx)
	hidden2, sup2 := HideLocks(hidden1)

	assert.True(t, isSuppressed(hidden1))
	assert.True(t, isSuppressed(hidden2))

	// Disposing the inner handle first, then the outer, must not panic and
	// must not affect the other's context value.
	sup2.Dispose()
	sup1.Dispose()
	assert.True(t, isSuppressed(hidden2))
}

func TestSuppressionDisposeNilIsSafe(t *testing.T) {
	var s *Suppression
	assert.NotPanics(t, func() { s.Dispose() })
}

func TestLockStackContainsWalksChain(t *testing.T) {
	grandparent := &Awaiter{flags: FlagStickyWrite}
	parent := &Awaiter{parent: grandparent}
	child := &Awaiter{parent: parent}

	assert.True(t, lockStackContains(nil, child, FlagStickyWrite))
	assert.False(t, lockStackContains(nil, grandparent, LockFlags(1<<30)))

	ctx := pushAwaiter(context.Background(), child)
	assert.True(t, lockStackContains(ctx, nil, FlagStickyWrite))
}
