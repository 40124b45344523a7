package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/moltyfromclaw/molt-tv/internal/config"
	"github.com/moltyfromclaw/molt-tv/internal/domain"
	apperrors "github.com/moltyfromclaw/molt-tv/internal/errors"
	"github.com/moltyfromclaw/molt-tv/internal/redis"
	"github.com/moltyfromclaw/molt-tv/internal/room"
)

// roomResolver maps room ids to live actors (implemented by room.Manager).
type roomResolver interface {
	Resolve(roomID string) (*room.Room, error)
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	clock     clockwork.Clock
	rooms     roomResolver
	streams   domain.StreamRepository
	prompts   domain.PromptAuditRepository
	pool      *pgxpool.Pool
	redis     *redis.Client
	startTime time.Time
}

func NewServer(cfg *config.Config, rooms roomResolver, streams domain.StreamRepository, prompts domain.PromptAuditRepository, pool *pgxpool.Pool, redisClient *redis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	// The chat widget and agent tooling are served from other origins.
	e.Use(middleware.CORS())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		clock:     clock,
		rooms:     rooms,
		streams:   streams,
		prompts:   prompts,
		pool:      pool,
		redis:     redisClient,
		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
