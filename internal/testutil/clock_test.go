package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	clock := NewFakeClock()
	assert.Equal(t, Epoch, clock.Peek())
	assert.Equal(t, Epoch, clock.Now())
}

func TestFakeClock_NowAdvancesByStep(t *testing.T) {
	clock := NewFakeClock()

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, DefaultStep, second.Sub(first))
	assert.Equal(t, DefaultStep, third.Sub(second))
	assert.Equal(t, Epoch.Add(3*DefaultStep), clock.Peek())
}

func TestFakeClock_ZeroStepFreezes(t *testing.T) {
	start := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClockAt(start, 0)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_AdvanceAndReset(t *testing.T) {
	clock := NewFakeClock()

	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), clock.Peek())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock()
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every call got a distinct timestamp
	require.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*DefaultStep), clock.Peek())
}
