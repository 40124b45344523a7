package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/moltyfromclaw/molt-tv/internal/config"
	"github.com/moltyfromclaw/molt-tv/internal/database"
	"github.com/moltyfromclaw/molt-tv/internal/logging"
	"github.com/moltyfromclaw/molt-tv/internal/metrics"
	"github.com/moltyfromclaw/molt-tv/internal/ratelimit"
	"github.com/moltyfromclaw/molt-tv/internal/redis"
	"github.com/moltyfromclaw/molt-tv/internal/room"
	"github.com/moltyfromclaw/molt-tv/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	return client
}

// runEvictionLoops reclaims idle room actors and rate limiter state on a
// fixed cadence until ctx is cancelled.
func runEvictionLoops(ctx context.Context, cfg *config.Config, manager *room.Manager, registry *ratelimit.Registry, clock clockwork.Clock) {
	go func() {
		ticker := clock.NewTicker(cfg.RoomIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if n := manager.EvictIdle(cfg.RoomIdleTimeout); n > 0 {
					slog.Info("Evicted idle rooms", "count", n)
				}
			}
		}
	}()

	go func() {
		ticker := clock.NewTicker(cfg.LimiterIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				registry.EvictIdle(cfg.LimiterIdleTimeout)
				metrics.RateLimitersActive.Set(float64(registry.Size()))
			}
		}
	}()
}

func runGracefulShutdown(srv *server.Server, manager *room.Manager, stopEviction context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopEviction()
		manager.Stop("Server shutting down")

		close(done)
	}()

	return done
}

func main() {
	_ = godotenv.Load()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer redisClient.Close()

	clock := clockwork.NewRealClock()

	registry := ratelimit.NewRegistry(clock)
	limiters := func(identity string, reportError func(error)) room.LimiterClient {
		return ratelimit.NewClient(func() *ratelimit.Handle {
			return registry.Resolve(identity)
		}, reportError, clock)
	}

	messageLog := redis.NewMessageLog(redisClient)
	manager := room.NewManager(messageLog, limiters, clock)

	evictionCtx, stopEviction := context.WithCancel(context.Background())
	runEvictionLoops(evictionCtx, cfg, manager, registry, clock)

	streams := database.NewStreamRepo(pool)
	prompts := database.NewPromptRepo(pool)

	srv := server.NewServer(cfg, manager, streams, prompts, pool, redisClient, clock)

	done := runGracefulShutdown(srv, manager, stopEviction)

	slog.Info("Starting chat server", "port", cfg.Port, "env", cfg.AppEnv)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
