package ratelimit

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
	"github.com/moltyfromclaw/molt-tv/internal/metrics"
)

// Client is the caller-side wrapper that makes throttling look synchronous.
// CheckLimit answers immediately from a local in-cooldown flag; the actual
// limiter call and the cooldown sleep happen in the background. If the
// handle has gone stale the client re-resolves it exactly once before
// surfacing the failure through reportError.
type Client struct {
	resolve     func() *Handle
	reportError func(error)
	clock       clockwork.Clock

	mu         sync.Mutex
	handle     *Handle
	inCooldown bool
}

// NewClient resolves an initial handle and returns a ready client.
// reportError is invoked at most once, when the limiter stays unreachable
// after a reconnect; the owner is expected to tear the session down.
func NewClient(resolve func() *Handle, reportError func(error), clock clockwork.Clock) *Client {
	return &Client{
		resolve:     resolve,
		reportError: reportError,
		clock:       clock,
		handle:      resolve(),
	}
}

// CheckLimit reports whether an action is allowed right now. The first
// call after a quiet period always succeeds; follow-up calls are gated by
// the background cooldown timer, never by blocking the caller.
func (c *Client) CheckLimit() bool {
	c.mu.Lock()
	if c.inCooldown {
		c.mu.Unlock()
		return false
	}
	c.inCooldown = true
	c.mu.Unlock()

	go c.consume()
	return true
}

func (c *Client) consume() {
	cooldown, err := c.handle.Consume(true)
	if err != nil {
		// Reconnect once, then give up.
		metrics.RateLimiterReconnectsTotal.Inc()
		c.handle = c.resolve()
		cooldown, err = c.handle.Consume(true)
		if err != nil {
			c.reportError(fmt.Errorf("%w: %w", domain.ErrLimiterUnreached, err))
			return
		}
	}

	c.clock.Sleep(cooldown)

	c.mu.Lock()
	c.inCooldown = false
	c.mu.Unlock()
}
