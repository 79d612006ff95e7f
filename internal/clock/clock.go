// Package clock provides the time source used for note timestamps and
// rate-limit windows.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// systemClock reads the wall clock in UTC and strictly increases.
type systemClock struct {
	mu   sync.Mutex
	wall func() time.Time
	last time.Time
}

// System returns a Clock backed by time.Now. Every call returns a value
// strictly after the previous one, even within one clock tick or when the
// wall clock is stepped back, so a later write always carries a later
// timestamp.
func System() Clock {
	return &systemClock{wall: time.Now}
}

func (c *systemClock) Now() time.Time {
	now := c.wall().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}

// Fake is a controllable Clock for testing time-dependent behavior.
// Thread-safe for use across goroutines (e.g., test client + HTTP server).
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake frozen at the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

// Now returns the current fake time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *Fake) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t if t is not earlier than the current fake time.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		return
	}
	c.now = t.UTC()
}
