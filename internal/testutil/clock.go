package testutil

import "sync"

// DeterministicClock is a device's local logical clock in tests. Every
// entry an EntryWriter records takes the next tick as its created_on.
//
// Writers sharing one clock stamp strictly increasing times across devices.
// Set models a device whose clock runs behind or ahead of the others.
type DeterministicClock struct {
	mu  sync.Mutex
	now int64
}

// NewDeterministicClock returns a clock whose first tick is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new time.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the last time handed out, 0 before the first tick.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts, backwards as well as forwards. The next tick
// is ts+1.
func (c *DeterministicClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}
