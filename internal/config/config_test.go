package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("AGENT_SECRET", "test-agent-secret")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "test-agent-secret", cfg.AgentSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.LimiterIdleTimeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing DATABASE_URL", "DATABASE_URL", "DATABASE_URL is required"},
		{"missing REDIS_URL", "REDIS_URL", "REDIS_URL is required"},
		{"missing AGENT_SECRET", "AGENT_SECRET", "AGENT_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Timeouts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ROOM_IDLE_TIMEOUT", "5m")
	t.Setenv("LIMITER_IDLE_TIMEOUT", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, time.Hour, cfg.LimiterIdleTimeout)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	setRequiredEnv(t)

	t.Run("unparseable", func(t *testing.T) {
		t.Setenv("ROOM_IDLE_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ROOM_IDLE_TIMEOUT")
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv("LIMITER_IDLE_TIMEOUT", "-5m")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})
}
