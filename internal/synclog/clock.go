package synclog

import "sync/atomic"

// Clock is the monotonic logical clock that stamps shared_on.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next timestamp and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued timestamp without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe moves the clock forward to at least ts. It never moves backwards,
// so a clock shared by several writers of one database stays ahead of
// anything already persisted.
func (c *Clock) Observe(ts int64) {
	for {
		cur := c.seq.Load()
		if ts <= cur || c.seq.CompareAndSwap(cur, ts) {
			return
		}
	}
}
