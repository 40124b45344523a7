// Package metrics defines the Prometheus collectors for the chat backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Room metrics
var (
	// RoomActiveSessions tracks live sessions per room.
	RoomActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "room_active_sessions",
			Help: "Current live sessions per room",
		},
		[]string{"room_id"},
	)

	// RoomBroadcastsTotal counts broadcast sweeps across all rooms.
	RoomBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_broadcasts_total",
			Help: "Total broadcast sweeps performed by room actors",
		},
	)

	// RoomMessagesTotal counts accepted messages by kind.
	RoomMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_messages_total",
			Help: "Total messages accepted by rooms, by kind",
		},
		[]string{"kind"},
	)

	// RoomRateLimitedFramesTotal counts frames discarded by throttling.
	RoomRateLimitedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_rate_limited_frames_total",
			Help: "Total inbound frames discarded because the sender was throttled",
		},
	)

	// RoomStorageFailuresTotal counts non-fatal message log failures.
	RoomStorageFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_storage_failures_total",
			Help: "Total message log reads/writes that failed (delivery unaffected)",
		},
	)

	// RoomsEvictedTotal counts idle room actors torn down for rehydration.
	RoomsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rooms_evicted_total",
			Help: "Total idle room actors evicted",
		},
	)
)

// WebSocket metrics
var (
	// WebSocketPingFailures counts keepalive pings that failed.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client likely disconnected)",
		},
	)

	// WebSocketUpgradesTotal counts accepted websocket upgrades.
	WebSocketUpgradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_upgrades_total",
			Help: "Total successful WebSocket upgrades",
		},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Rate limiter metrics
var (
	// RateLimitersActive tracks how many identities hold a limiter.
	RateLimitersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiters_active",
			Help: "Current number of per-identity rate limiters",
		},
	)

	// RateLimiterReconnectsTotal counts handle re-resolutions after eviction.
	RateLimiterReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limiter_reconnects_total",
			Help: "Total limiter handle re-resolutions after a dropped handle",
		},
	)
)
