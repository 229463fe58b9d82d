// File: wireclock/clock_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wireclock

import "testing"

func TestFakeClockAdvancesExplicitly(t *testing.T) {
	c := NewFake(100)
	if got := c.NowMs(); got != 100 {
		t.Fatalf("got %d want 100", got)
	}
	c.Add(50)
	if got := c.NowMs(); got != 150 {
		t.Fatalf("got %d want 150", got)
	}
	c.Set(0)
	if got := c.NowMs(); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

func TestSystemClockIsMonotonicNonDecreasing(t *testing.T) {
	c := NewSystem()
	first := c.NowMs()
	second := c.NowMs()
	if second < first {
		t.Fatalf("clock went backward: %d -> %d", first, second)
	}
}
