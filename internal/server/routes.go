package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	// Stream directory
	api.GET("/streams", s.handleListStreams)
	api.POST("/streams", s.handleCreateStream)
	api.GET("/streams/:id", s.handleGetStream)
	api.DELETE("/streams/:id", s.handleDeleteStream)

	// Room surface
	api.GET("/streams/:id/chat", s.handleChatSocket)
	api.GET("/streams/:id/messages", s.handleMessages)
	api.POST("/streams/:id/prompt", s.handlePaidPrompt)
	api.POST("/streams/:id/agent-response", s.handleAgentResponse)
}
