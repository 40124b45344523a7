package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

func TestClientAllowsFirstActionImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(clock)

	// Even an identity deep in cooldown debt gets its first answer for
	// free; the throttle only bites from the second call on.
	burner := registry.Resolve("203.0.113.7")
	for i := 0; i < 10; i++ {
		_, err := burner.Consume(true)
		require.NoError(t, err)
	}

	client := NewClient(func() *Handle { return registry.Resolve("203.0.113.7") }, func(error) {
		t.Error("reportError should not fire")
	}, clock)

	assert.True(t, client.CheckLimit())
	assert.False(t, client.CheckLimit())
}

func TestClientClearsFlagAfterCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(clock)

	// Four prior actions leave exactly one action cost of debt.
	burner := registry.Resolve("203.0.113.7")
	for i := 0; i < 4; i++ {
		_, err := burner.Consume(true)
		require.NoError(t, err)
	}

	client := NewClient(func() *Handle { return registry.Resolve("203.0.113.7") }, func(error) {
		t.Error("reportError should not fire")
	}, clock)

	require.True(t, client.CheckLimit())

	// The background goroutine is now sleeping off the 5s cooldown.
	clock.BlockUntil(1)
	assert.False(t, client.CheckLimit())

	clock.Advance(5 * time.Second)
	require.Eventually(t, client.CheckLimit, time.Second, time.Millisecond)
}

func TestClientReconnectsOnceAfterEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(clock)

	client := NewClient(func() *Handle { return registry.Resolve("203.0.113.7") }, func(error) {
		t.Error("reportError should not fire")
	}, clock)

	// Eviction invalidates the handle the client resolved at creation.
	require.Equal(t, 1, registry.EvictIdle(0))

	require.True(t, client.CheckLimit())

	// The stale handle fails, the client re-resolves, and the fresh
	// limiter owes nothing; the flag clears without error.
	require.Eventually(t, client.CheckLimit, time.Second, time.Millisecond)
}

func TestClientSurfacesErrorWhenLimiterStaysDown(t *testing.T) {
	clock := clockwork.NewFakeClock()

	dead := &Handle{}
	dead.closed.Store(true)

	reported := make(chan error, 1)
	client := NewClient(func() *Handle { return dead }, func(err error) {
		reported <- err
	}, clock)

	require.True(t, client.CheckLimit())

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, domain.ErrLimiterUnreached)
		assert.ErrorIs(t, err, ErrHandleClosed)
	case <-time.After(time.Second):
		t.Fatal("expected the limiter failure to be surfaced")
	}

	// The in-cooldown flag is left set so the owner can tear down.
	assert.False(t, client.CheckLimit())
}
