package test

import (
	"sync"
	"time"
)

// Clock is a simulated clock which advances by the requested duration
// whenever something waits on it, so polling loops run instantly.
type Clock struct {
	lock  sync.Mutex
	now   time.Time
	waits []time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(1_600_000_000, 0)}
}

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *Clock) TickAfter(duration time.Duration) <-chan time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(duration)
	c.waits = append(c.waits, duration)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *Clock) Advance(duration time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(duration)
}

// Waits returns every duration something waited for, in order.
func (c *Clock) Waits() []time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
