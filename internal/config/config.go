package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	AgentSecret string
	LogLevel    string
	LogFormat   string

	// RoomIdleTimeout is how long a room may sit quiet before its actor
	// is evicted (connections survive and are rehydrated on demand).
	RoomIdleTimeout time.Duration
	// LimiterIdleTimeout is how long an identity's rate limiter may go
	// unconsulted before it is dropped.
	LimiterIdleTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		AgentSecret: getEnv("AGENT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.AgentSecret == "" {
		return nil, fmt.Errorf("AGENT_SECRET is required")
	}

	var err error
	if cfg.RoomIdleTimeout, err = getDuration("ROOM_IDLE_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LimiterIdleTimeout, err = getDuration("LIMITER_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 10m): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
