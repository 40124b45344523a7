package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// actionCost is how far one action pushes the watermark forward.
	actionCost = 5 * time.Second
	// gracePeriod is subtracted before a cooldown is reported, which
	// permits a burst of gracePeriod/actionCost actions with zero wait.
	gracePeriod = 20 * time.Second
)

// Limiter tracks the cooldown watermark for a single identity (an IP,
// typically). The watermark only ever moves forward: every action advances
// it by actionCost, and reading it never rewinds it.
type Limiter struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	nextAllowed time.Time
	lastUsed    time.Time
}

func NewLimiter(clock clockwork.Clock) *Limiter {
	return &Limiter{clock: clock, lastUsed: clock.Now()}
}

// Consume advances the watermark and reports how long the caller should
// wait before its next action. A zero return means the action is within
// the burst allowance.
func (l *Limiter) Consume(isAction bool) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.lastUsed = now
	if l.nextAllowed.Before(now) {
		l.nextAllowed = now
	}
	if isAction {
		l.nextAllowed = l.nextAllowed.Add(actionCost)
	}

	cooldown := l.nextAllowed.Sub(now) - gracePeriod
	if cooldown < 0 {
		cooldown = 0
	}
	return cooldown
}

// idleFor reports how long ago the limiter was last consulted.
func (l *Limiter) idleFor(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.lastUsed)
}
