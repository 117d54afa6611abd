// Package throttle paces classifier traffic with a mandatory pause after
// every fixed-size batch of calls.
package throttle

import (
	"context"
	"sync"
	"time"
)

// announceInterval is how often a running cooldown reports its remaining time.
const announceInterval = 1 * time.Second

// CountdownLogger receives cooldown announcements. A final call with
// remaining == 0 marks the end of the pause.
type CountdownLogger interface {
	LogCooldown(remaining time.Duration)
}

// Cooldown counts calls and blocks for Pause after every Every-th call.
type Cooldown struct {
	every  int
	pause  time.Duration
	logger CountdownLogger

	mu    sync.Mutex
	calls int

	// announce overrides announceInterval in tests.
	announce time.Duration
}

// NewCooldown creates a Cooldown. every and pause must be positive; a
// non-positive value is replaced by 1 call / 1 second so the pause is never skipped.
func NewCooldown(every int, pause time.Duration, logger CountdownLogger) *Cooldown {
	if every < 1 {
		every = 1
	}
	if pause <= 0 {
		pause = time.Second
	}
	return &Cooldown{
		every:    every,
		pause:    pause,
		logger:   logger,
		announce: announceInterval,
	}
}

// Calls returns the number of calls counted so far.
func (c *Cooldown) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Tick records one call. When the call completes a batch, Tick blocks for
// the pause and returns true. Returns the context error if cancelled mid-pause.
func (c *Cooldown) Tick(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.calls++
	due := c.calls%c.every == 0
	c.mu.Unlock()

	if !due {
		return false, nil
	}
	return true, c.wait(ctx)
}

// wait blocks for the pause with periodic countdown announcements.
func (c *Cooldown) wait(ctx context.Context) error {
	end := time.Now().Add(c.pause)

	ticker := time.NewTicker(c.announce)
	defer ticker.Stop()
	timer := time.NewTimer(c.pause)
	defer timer.Stop()

	if c.logger != nil {
		c.logger.LogCooldown(c.pause)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			remaining := end.Sub(now)
			if remaining <= 0 {
				continue
			}
			if c.logger != nil {
				c.logger.LogCooldown(remaining.Round(time.Second))
			}

		case <-timer.C:
			if c.logger != nil {
				c.logger.LogCooldown(0)
			}
			return nil
		}
	}
}
