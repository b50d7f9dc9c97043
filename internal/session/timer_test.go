package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	var fired int32
	done := make(chan struct{})

	c := NewCountdown(3, nil, func() {
		if atomic.AddInt32(&fired, 1) == 1 {
			close(done)
		}
	})
	c.interval = time.Millisecond
	c.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown never expired")
	}

	// Jitter past zero must not fire again.
	c.fireExpire()
	c.fireExpire()
	time.Sleep(10 * time.Millisecond)

	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expiry fired %d times, want 1", n)
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %d after expiry", c.Remaining())
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	var fired int32
	c := NewCountdown(5, nil, func() { atomic.AddInt32(&fired, 1) })
	c.interval = time.Millisecond
	c.Start()

	time.Sleep(2 * time.Millisecond)
	c.Stop()
	remaining := c.Remaining()

	// Long enough for the 5 pre-stop ticks to have elapsed.
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("expiry fired after Stop")
	}
	if c.Remaining() != remaining {
		t.Fatal("clock kept ticking after Stop")
	}

	// Stop is idempotent.
	c.Stop()
}

func TestCountdownTicksDown(t *testing.T) {
	ticks := make(chan int, 16)
	c := NewCountdown(4, func(remaining int) { ticks <- remaining }, nil)
	c.interval = time.Millisecond
	c.Start()
	defer c.Stop()

	var seen []int
	deadline := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case r := <-ticks:
			seen = append(seen, r)
		case <-deadline:
			t.Fatalf("timed out after ticks %v", seen)
		}
	}

	for i, r := range seen {
		if want := 3 - i; r != want {
			t.Fatalf("tick %d reported %d remaining, want %d", i, r, want)
		}
	}
}
