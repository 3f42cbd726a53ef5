package arwl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockFlagsHas(t *testing.T) {
	assert.True(t, FlagStickyWrite.Has(FlagStickyWrite))
	assert.False(t, FlagNone.Has(FlagStickyWrite))

	combined := FlagStickyWrite | LockFlags(1<<20)
	assert.True(t, combined.Has(FlagStickyWrite))
	assert.True(t, combined.Has(LockFlags(1<<20)))
	assert.False(t, combined.Has(LockFlags(1<<21)))
}

func TestLockKindString(t *testing.T) {
	assert.Equal(t, "read", KindRead.String())
	assert.Equal(t, "upgradeable-read", KindUpgradeableRead.String())
	assert.Equal(t, "write", KindWrite.String())
	assert.Equal(t, "unknown", LockKind(99).String())
}

func TestIsAncestorOf(t *testing.T) {
	grandparent := &Awaiter{kind: KindUpgradeableRead}
	parent := &Awaiter{kind: KindRead, parent: grandparent}
	child := &Awaiter{kind: KindRead, parent: parent}

	assert.True(t, isAncestorOf(grandparent, child))
	assert.True(t, isAncestorOf(parent, child))
	assert.False(t, isAncestorOf(child, parent), "a descendant is never its ancestor's ancestor")
	assert.False(t, isAncestorOf(grandparent, grandparent), "an Awaiter is not its own ancestor")
	assert.False(t, isAncestorOf(nil, child))
	assert.False(t, isAncestorOf(grandparent, nil))
}

func TestChainContains(t *testing.T) {
	grandparent := &Awaiter{kind: KindUpgradeableRead}
	parent := &Awaiter{kind: KindRead, parent: grandparent}
	child := &Awaiter{kind: KindRead, parent: parent}

	assert.True(t, chainContains(child, child), "chain includes itself")
	assert.True(t, chainContains(child, parent))
	assert.True(t, chainContains(child, grandparent))
	assert.False(t, chainContains(parent, child), "chain does not include descendants")
	assert.False(t, chainContains(child, nil))
}

func TestReleaserReleaseIsIdempotent(t *testing.T) {
	l := NewLock()
	ctx, r, err := l.ReadLockAsync(context.Background())
	assert.NoError(t, err)
	assert.True(t, l.IsReadLockHeld(ctx))

	assert.NoError(t, r.Release())
	assert.False(t, l.IsReadLockHeld(ctx))
	assert.NoError(t, r.Release(), "second release must be a silent no-op")
}

func TestReleaserNilIsSafe(t *testing.T) {
	var r *Releaser
	assert.NoError(t, r.Release())
	assert.Nil(t, r.Awaiter())
}
