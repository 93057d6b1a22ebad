package tiercache

import "time"

// Clock provides the current instant. The default, real-time
// implementation is time.Now(); tests substitute a FakeClock so
// TTL-monotonicity assertions (§8) are deterministic, generalizing the
// teacher's cache.Clock/fakeClock pattern to the local tier, the manager and
// the publisher. The shared tier takes no Clock: its TTLs are kept by Redis.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the default Clock, backed by time.Now().
var RealClock Clock = realClock{}

// FakeClock is a manually-advanced Clock for deterministic tests.
type FakeClock struct {
	t time.Time
}

// NewFakeClock returns a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

// Now returns the fake clock's current instant.
func (c *FakeClock) Now() time.Time { return c.t }

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
