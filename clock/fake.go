package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock. Time only moves when Advance is called,
// and callbacks scheduled with AfterFunc run synchronously inside Advance.
//
// The zero value is not usable; use NewFake.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[*fakeTimer]struct{}
}

type fakeTimer struct {
	fake     *Fake
	deadline time.Time
	seq      uint64
	f        func()
}

// NewFake returns a Fake whose current time is start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:    start,
		timers: make(map[*fakeTimer]struct{}),
	}
}

// Now returns the fake's current time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// AfterFunc schedules f to run once the fake has been advanced by d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{
		fake:     c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		f:        f,
	}
	c.timers[t] = struct{}{}

	return t
}

// Advance moves the clock forward by d, running every timer that falls due
// in deadline order. Before each callback runs, Now reports that timer's
// deadline. Timers scheduled by a callback fire in the same call when their
// deadline is within the advanced range.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, next)
		c.now = next.deadline
		c.mu.Unlock()

		next.f()
	}
}

// Pending reports how many timers are scheduled and not yet fired or stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.timers)
}

// nextDue must be called with c.mu held.
func (c *Fake) nextDue(target time.Time) *fakeTimer {
	var next *fakeTimer
	for t := range c.timers {
		if t.deadline.After(target) {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.seq < next.seq) {
			next = t
		}
	}

	return next
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()

	if _, ok := t.fake.timers[t]; !ok {
		return false
	}
	delete(t.fake.timers, t)

	return true
}
