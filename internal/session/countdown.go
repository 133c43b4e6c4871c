package session

import (
	"sync"
	"time"
)

// Countdown drives the once-per-second session timer as an explicitly owned,
// cancellable resource. Stop is idempotent and safe to call from inside the
// tick callback, which is exactly what happens when the timer reaches zero
// and triggers submission.
type Countdown struct {
	mu       sync.Mutex
	interval time.Duration
	onTick   func()
	stop     chan struct{}
}

// NewCountdown creates a stopped countdown firing onTick every interval.
func NewCountdown(interval time.Duration, onTick func()) *Countdown {
	return &Countdown{interval: interval, onTick: onTick}
}

// Start launches the ticking goroutine. Starting an already-running
// countdown is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return
	}
	stop := make(chan struct{})
	c.stop = stop

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.onTick()
			}
		}
	}()
}

// Stop cancels the countdown. Idempotent.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
