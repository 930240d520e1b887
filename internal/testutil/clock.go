package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a wall clock that only moves when told to.
//
// Implements domain.Clock. Every call to Now returns the same instant until
// Advance or Set is called, so timestamps in journals and golden traces are
// reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// DefaultTime is where NewDeterministicClock starts: 10:00 in Jakarta on
// 15 October 2026.
var DefaultTime = time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)

// NewDeterministicClock creates a clock pinned at start. A zero start
// means DefaultTime.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	if start.IsZero() {
		start = DefaultTime
	}
	return &DeterministicClock{now: start.UTC()}
}

// Now returns the pinned instant.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock at t.
func (c *DeterministicClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
