package redis

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerHookNormalOperation(t *testing.T) {
	hook := NewCircuitBreakerHook()

	// Circuit starts closed
	assert.Equal(t, circuitbreaker.ClosedState, hook.GetState())

	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return nil
	})
	for i := 0; i < 10; i++ {
		err := process(ctx, goredis.NewStringCmd(ctx, "zadd", "room:1:messages"))
		assert.NoError(t, err)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.GetState())
}

func TestCircuitBreakerHookTreatsNilAsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook()

	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return goredis.Nil
	})
	for i := 0; i < 10; i++ {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	// Cache misses are not failures
	assert.Equal(t, circuitbreaker.ClosedState, hook.GetState())
}

func TestCircuitBreakerHookOpensAfterSustainedFailures(t *testing.T) {
	hook := NewCircuitBreakerHook()

	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return errors.New("connection refused")
	})
	for i := 0; i < 5; i++ {
		err := process(ctx, goredis.NewStringCmd(ctx, "zadd", "room:1:messages"))
		assert.Error(t, err)
	}

	assert.Equal(t, circuitbreaker.OpenState, hook.GetState())
}

func TestCircuitBreakerHookFailsFastWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook()

	ctx := context.Background()
	failing := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return errors.New("connection refused")
	})
	for i := 0; i < 5; i++ {
		_ = failing(ctx, goredis.NewStringCmd(ctx, "zadd", "room:1:messages"))
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.GetState())

	// No further commands reach the backend while the breaker is open.
	reached := false
	open := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		reached = true
		return nil
	})
	err := open(ctx, goredis.NewStringCmd(ctx, "zrangebyscore", "room:1:messages"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, reached)
}

func TestCircuitBreakerHookDialFailsFastWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook()

	ctx := context.Background()
	failing := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return errors.New("connection refused")
	})
	for i := 0; i < 5; i++ {
		_ = failing(ctx, goredis.NewStringCmd(ctx, "ping"))
	}

	dialed := false
	dial := hook.DialHook(func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = true
		return nil, nil
	})
	_, err := dial(ctx, "tcp", "localhost:6379")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, dialed)
}
