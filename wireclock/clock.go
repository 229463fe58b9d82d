// File: wireclock/clock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package wireclock provides the monotonic millisecond time source used to
// stamp and gate packets as they cross the simulated wire. Every ready_at_ms
// deadline in the module is produced and compared through a Clock so tests
// can inject a fake one instead of racing the wall clock.

package wireclock

import "time"

// Millis is a monotonic millisecond timestamp. It is only ever compared
// against other Millis values produced by the same Clock.
type Millis uint64

// Clock produces monotonic millisecond timestamps.
type Clock interface {
	NowMs() Millis
}

// System is the production Clock, backed by time.Now()'s monotonic reading.
type System struct {
	epoch time.Time
}

// NewSystem creates a System clock anchored to the current instant.
func NewSystem() *System {
	return &System{epoch: time.Now()}
}

// NowMs returns milliseconds elapsed since the clock was created.
func (c *System) NowMs() Millis {
	return Millis(time.Since(c.epoch).Milliseconds())
}

// Fake is a deterministic Clock for tests. Advance it explicitly with Set
// or Add; it never moves on its own.
type Fake struct {
	now Millis
}

// NewFake creates a Fake clock starting at the given instant.
func NewFake(start Millis) *Fake {
	return &Fake{now: start}
}

// NowMs returns the clock's current value.
func (c *Fake) NowMs() Millis {
	return c.now
}

// Set moves the clock to an absolute instant.
func (c *Fake) Set(ms Millis) {
	c.now = ms
}

// Add advances the clock by delta milliseconds.
func (c *Fake) Add(delta Millis) {
	c.now += delta
}
