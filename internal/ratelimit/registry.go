package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrHandleClosed is returned by a Handle whose limiter has been evicted.
// Callers recover by resolving a fresh handle from the registry.
var ErrHandleClosed = errors.New("rate limiter handle closed")

// Handle is a caller-held reference to one identity's limiter. It becomes
// invalid when the registry evicts the limiter; Consume then fails until
// the caller re-resolves.
type Handle struct {
	limiter *Limiter
	closed  atomic.Bool
}

// Consume forwards to the underlying limiter, or fails if the handle has
// been invalidated by eviction.
func (h *Handle) Consume(isAction bool) (time.Duration, error) {
	if h.closed.Load() {
		return 0, ErrHandleClosed
	}
	return h.limiter.Consume(isAction), nil
}

type registryEntry struct {
	limiter *Limiter
	handles []*Handle
}

// Registry owns one Limiter per identity, created lazily on first use.
type Registry struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*registryEntry
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:   clock,
		entries: make(map[string]*registryEntry),
	}
}

// Resolve returns a handle to the limiter for identity, creating the
// limiter if this is the first time the identity is seen.
func (r *Registry) Resolve(identity string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[identity]
	if !ok {
		entry = &registryEntry{limiter: NewLimiter(r.clock)}
		r.entries[identity] = entry
	}

	h := &Handle{limiter: entry.limiter}
	entry.handles = append(entry.handles, h)
	return h
}

// EvictIdle drops limiters that have not been consulted for at least
// maxIdle, invalidating any outstanding handles. Returns how many
// limiters were evicted.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	evicted := 0
	for identity, entry := range r.entries {
		if entry.limiter.idleFor(now) < maxIdle {
			continue
		}
		for _, h := range entry.handles {
			h.closed.Store(true)
		}
		delete(r.entries, identity)
		evicted++
	}
	return evicted
}

// Size reports how many identities currently hold a limiter.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
