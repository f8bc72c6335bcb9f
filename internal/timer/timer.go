// Package timer provides the one-second countdown and elapsed timers shown
// during stations and practice.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Format renders d as MM:SS. Partial seconds round up and negative values read 00:00.
func Format(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Countdown decrements a whole-second counter once per second of clock time.
// onTick runs after every decrement and onExpire runs once when the counter
// reaches zero. Callbacks run on the countdown's goroutine.
type Countdown struct {
	clock    clockwork.Clock
	onTick   func(remaining time.Duration)
	onExpire func()

	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewCountdown creates a stopped countdown of total (truncated to whole seconds).
func NewCountdown(clock clockwork.Clock, total time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	return &Countdown{
		clock:     clock,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: int(total / time.Second),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins ticking. Calling it again, or after Stop, does nothing.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	go c.run()
}

// Stop cancels the countdown. A callback already past its check may still
// run once; Stop does not wait for it. Use Done to wait for the goroutine.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	if !c.started {
		close(c.done)
	}
}

// Done is closed once the countdown goroutine has exited (or never started and was stopped).
func (c *Countdown) Done() <-chan struct{} { return c.done }

// Remaining returns the time left on the counter.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.remaining) * time.Second
}

// Running reports whether the countdown started and has neither expired nor been stopped.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped && c.remaining > 0
}

func (c *Countdown) run() {
	defer close(c.done)

	if c.Remaining() <= 0 {
		c.expire()
		return
	}

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining--
			left := time.Duration(c.remaining) * time.Second
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(left)
			}
			if left <= 0 {
				c.expire()
				return
			}
		}
	}
}

func (c *Countdown) expire() {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || c.onExpire == nil {
		return
	}
	c.onExpire()
}
