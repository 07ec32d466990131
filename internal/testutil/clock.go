// Package testutil provides deterministic time and id helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a settable wall clock. Tests pin freshness boundaries and locator
// expiries by advancing it explicitly instead of sleeping.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start. A zero start uses a fixed
// reference instant so tests stay reproducible without coordination.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = time.Unix(1_700_000_000, 0).UTC()
	}
	return &Clock{now: start}
}

// Now returns the current frozen instant. Pass the method value (clock.Now)
// wherever a `func() time.Time` is injected.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
