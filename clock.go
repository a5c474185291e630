package serdbg

import "time"

// Clock is the monotonic time source used by the matcher, sequencer and
// monitor. Now returns nanoseconds from an arbitrary fixed origin.
type Clock interface {
	Now() int64
}

type monotonicClock struct {
	origin time.Time
}

// NewClock returns a Clock backed by the runtime monotonic clock.
func NewClock() Clock {
	return &monotonicClock{origin: time.Now()}
}

func (c *monotonicClock) Now() int64 {
	return int64(time.Since(c.origin))
}

// ManualClock is a Clock that only moves when told to. It is safe for use by
// a single goroutine.
type ManualClock struct {
	T int64
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	return c.T
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.T += int64(d)
}
