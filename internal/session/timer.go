package session

import (
	"context"
	"sync"
	"time"
)

// Countdown is the one-second tick process driving a session's time
// limit. It decrements the remaining seconds on every tick and fires
// onExpire exactly once when they reach zero, then stops ticking.
// A sync.Once guards the expiry so scheduling jitter that pushes the
// counter past zero can never fire a second submission.
//
// Stop must be called when the session leaves the active state by any
// other path, or a stray expiry would fire against a session the
// student already submitted or left.
type Countdown struct {
	mu        sync.Mutex
	remaining int

	interval time.Duration
	onTick   func(remaining int)
	onExpire func()

	expireOnce sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewCountdown creates a countdown holding the given number of seconds.
// onTick (optional) is invoked after every decrement; onExpire is
// invoked exactly once when the counter reaches zero.
func NewCountdown(seconds int, onTick func(remaining int), onExpire func()) *Countdown {
	return &Countdown{
		remaining: seconds,
		interval:  time.Second,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking. Calling Start twice is a programming error.
func (c *Countdown) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.remaining > 0 {
				c.remaining--
			}
			remaining := c.remaining
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}

			if remaining <= 0 {
				c.fireExpire()
				return
			}
		}
	}
}

// fireExpire runs onExpire on its own goroutine so the expiry handler
// may call Stop without deadlocking against the tick loop.
func (c *Countdown) fireExpire() {
	c.expireOnce.Do(func() {
		if c.onExpire != nil {
			go c.onExpire()
		}
	})
}

// Stop cancels the tick loop and suppresses any future expiry. It is
// safe to call multiple times and after expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	// Expiry may never fire after Stop; exhaust the Once so a racing
	// fireExpire becomes a no-op.
	c.expireOnce.Do(func() {})
}

// Remaining returns the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
