package testutil

import (
	"sync"
	"time"
)

// Epoch is where every FakeClock starts.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultStep is how far a FakeClock advances on each Now call.
const DefaultStep = time.Second

// FakeClock is a deterministic model.Clock for tests.
//
// Each call to Now returns the current time and then advances it by the
// step, so consecutive stamps are distinct and strictly increasing. Two
// runs of the same scenario stamp identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFakeClock creates a clock at Epoch advancing by DefaultStep.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch, step: DefaultStep}
}

// NewFakeClockAt creates a clock at start advancing by step.
// A zero step freezes the clock.
func NewFakeClockAt(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{now: start.UTC(), step: step}
}

// Now returns the current time and advances the clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the time the next Now call will return, without advancing.
func (c *FakeClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset returns the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
