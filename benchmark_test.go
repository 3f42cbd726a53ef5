package arwl

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	serialConcurrency = 1
	lowConcurrency    = 2
	mediumConcurrency = 10
	highConcurrency   = 20

	writeFrac      = 0.1
	heavyWriteFrac = 0.5
)

// testNonDecreasing asserts values never decreases: each writer increments
// its offset and every value after it, so a decreasing value anywhere means
// a write was not properly serialized against its neighbours.
func testNonDecreasing(b *testing.B, values []uint32) {
	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(b, values[i-1], values[i], "nondecreasing value")
	}
}

func BenchmarkSerial(b *testing.B) {
	testNonDecreasing(b, benchmarkLocking(b, serialConcurrency, int(writeFrac*100)))
}

func BenchmarkSerialHeavyLocking(b *testing.B) {
	testNonDecreasing(b, benchmarkLocking(b, serialConcurrency, int(heavyWriteFrac*100)))
}

func BenchmarkLowConcurrency(b *testing.B) {
	testNonDecreasing(b, benchmarkLocking(b, lowConcurrency, int(writeFrac*100)))
}

func BenchmarkMediumConcurrency(b *testing.B) {
	testNonDecreasing(b, benchmarkLocking(b, mediumConcurrency, int(writeFrac*100)))
}

func BenchmarkHighConcurrency(b *testing.B) {
	benchmarkLocking(b, highConcurrency, int(writeFrac*100))
}

func BenchmarkHighConcurrencyHeavyLocking(b *testing.B) {
	benchmarkLocking(b, highConcurrency, int(heavyWriteFrac*100))
}

// benchmarkLocking simulates `concurrency` actors acting on a chain of ten
// nested locks: locks[i] guards values[i] and, by nesting convention, every
// values[j] for j >= i that an actor holding locks[i] touches.
func benchmarkLocking(b *testing.B, concurrency int, writePerc int) []uint32 {
	barrier := make(chan bool, concurrency)

	var locks [10]*Lock
	var values [10]uint32
	for i := range locks {
		locks[i] = NewLock()
	}

	readHandler := func(offset int) {
		ctx := context.Background()
		var releasers []*Releaser
		for i := 0; i <= offset; i++ {
			var r *Releaser
			var err error
			ctx, r, err = locks[i].ReadLockAsync(ctx)
			if err != nil {
				b.Error(err)
				return
			}
			releasers = append(releasers, r)
		}
		for i := len(releasers) - 1; i >= 0; i-- {
			releasers[i].Release()
		}
		<-barrier
	}

	upgradeHandler := func(offset int) {
		ctx := context.Background()
		var releasers []*Releaser
		for i := 0; i < offset; i++ {
			var r *Releaser
			var err error
			ctx, r, err = locks[i].ReadLockAsync(ctx)
			if err != nil {
				b.Error(err)
				return
			}
			releasers = append(releasers, r)
		}
		_, rU, err := locks[offset].UpgradeableReadLockAsync(ctx, FlagNone)
		if err != nil {
			b.Error(err)
			return
		}
		rU.Release()
		for i := len(releasers) - 1; i >= 0; i-- {
			releasers[i].Release()
		}
		<-barrier
	}

	writeHandler := func(offset int) {
		ctx := context.Background()
		var releasers []*Releaser
		for i := 0; i < offset; i++ {
			var r *Releaser
			var err error
			ctx, r, err = locks[i].UpgradeableReadLockAsync(ctx, FlagNone)
			if err != nil {
				b.Error(err)
				return
			}
			releasers = append(releasers, r)
		}
		_, rW, err := locks[offset].WriteLockAsync(ctx)
		if err != nil {
			b.Error(err)
			return
		}
		for i := offset; i < len(values); i++ {
			values[i]++
		}
		rW.Release()
		for i := len(releasers) - 1; i >= 0; i-- {
			releasers[i].Release()
		}
		<-barrier
	}

	for i := 0; i < b.N; i++ {
		isWrite := rand.Intn(100) < writePerc
		offset := rand.Intn(len(locks))

		barrier <- true
		if isWrite {
			go writeHandler(offset)
		} else if rand.Intn(2) == 0 {
			go readHandler(offset)
		} else {
			go upgradeHandler(offset)
		}
	}

	for {
		select {
		case <-barrier:
		default:
			// The race detector would otherwise flag an unguarded read of
			// values; take the outermost write lock just to linearize the
			// final snapshot.
			_, rSnapshot, err := locks[0].WriteLockAsync(context.Background())
			if err != nil {
				b.Fatal(err)
			}
			ret := append([]uint32(nil), values[:]...)
			rSnapshot.Release()
			return ret
		}
	}
}
