package testutil

import (
	"testing"
	"time"
)

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock()
	var order []string
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "b") })

	c.Advance(20 * time.Millisecond)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order after 20ms: %v", order)
	}

	c.Advance(10 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("unexpected order after 30ms: %v", order)
	}
}

func TestFakeClock_StopCancels(t *testing.T) {
	c := NewFakeClock()
	fired := false
	tm := c.AfterFunc(time.Millisecond, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("expected Stop on pending timer to return true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should return false")
	}
	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", c.Pending())
	}
}

func TestFakeClock_CallbackSchedulesWithinAdvance(t *testing.T) {
	c := NewFakeClock()
	start := c.Now()
	var at []time.Duration
	var tick func()
	tick = func() {
		at = append(at, c.Now().Sub(start))
		if len(at) < 3 {
			c.AfterFunc(100*time.Millisecond, tick)
		}
	}
	c.AfterFunc(100*time.Millisecond, tick)

	c.Advance(time.Second)
	if len(at) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(at))
	}
	for i, d := range at {
		if want := time.Duration(i+1) * 100 * time.Millisecond; d != want {
			t.Errorf("tick %d at %v, want %v", i, d, want)
		}
	}
	if got := c.Now().Sub(start); got != time.Second {
		t.Errorf("expected clock at 1s, got %v", got)
	}
}
