// Package clocktest provides a manually driven clock.AfterFunc for tests.
package clocktest

import (
	"sync"
	"time"

	"consult-transcript-service/internal/clock"
)

// Fake records scheduled callbacks and runs them only when told to.
type Fake struct {
	mu     sync.Mutex
	timers []*FakeTimer
}

// FakeTimer is a timer created by Fake.
type FakeTimer struct {
	Delay time.Duration

	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

// Stop implements clock.Timer.
func (t *FakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback synchronously unless the timer was stopped or
// already fired. It reports whether the callback ran.
func (t *FakeTimer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
	return true
}

// AfterFunc implements the AfterFunc signature.
func (c *Fake) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTimer{Delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns timers that have neither fired nor been stopped.
func (c *Fake) Pending() []*FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*FakeTimer
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
		t.mu.Unlock()
	}
	return out
}

// Created returns how many timers have been scheduled.
func (c *Fake) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// FirePending fires every pending timer and returns how many ran.
func (c *Fake) FirePending() int {
	n := 0
	for _, t := range c.Pending() {
		if t.Fire() {
			n++
		}
	}
	return n
}
