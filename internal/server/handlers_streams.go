package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/moltyfromclaw/molt-tv/internal/errors"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

type createStreamRequest struct {
	AgentName   string `json:"agentName"`
	OwnerUserID string `json:"ownerUserId"`
	PlaybackID  string `json:"playbackId"`
}

func (s *Server) handleListStreams(c echo.Context) error {
	streams, err := s.streams.ListActive(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list streams", err)
	}
	if streams == nil {
		streams = []domain.Stream{}
	}
	return c.JSON(http.StatusOK, map[string]any{"streams": streams})
}

func (s *Server) handleCreateStream(c echo.Context) error {
	var req createStreamRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.AgentName == "" || req.OwnerUserID == "" {
		return apperrors.ValidationError("agentName and ownerUserId required")
	}

	now := s.clock.Now().UTC()
	stream := domain.Stream{
		ID:          uuid.NewString(),
		AgentName:   req.AgentName,
		OwnerUserID: req.OwnerUserID,
		PlaybackID:  req.PlaybackID,
		Status:      domain.StatusLive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.streams.Create(c.Request().Context(), stream); err != nil {
		return apperrors.InternalError("failed to create stream", err).
			WithContext("agent_name", req.AgentName)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":           stream.ID,
		"agentName":    stream.AgentName,
		"ownerUserId":  stream.OwnerUserID,
		"playbackId":   stream.PlaybackID,
		"status":       stream.Status,
		"createdAt":    stream.CreatedAt,
		"websocketUrl": fmt.Sprintf("/api/streams/%s/chat", stream.ID),
	})
}

func (s *Server) handleGetStream(c echo.Context) error {
	stream, err := s.streams.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperrors.AsStructuredError(err).WithContext("stream_id", c.Param("id"))
	}
	return c.JSON(http.StatusOK, stream)
}

func (s *Server) handleDeleteStream(c echo.Context) error {
	streamID := c.Param("id")

	if err := s.streams.MarkEnded(c.Request().Context(), streamID); err != nil {
		return apperrors.AsStructuredError(err).WithContext("stream_id", streamID)
	}

	// Tell whoever is still watching; a room failure must not undo the delete.
	if rm, err := s.rooms.Resolve(streamID); err == nil {
		payload, _ := json.Marshal(domain.ChatMessage{
			Kind:      domain.KindSystem,
			Body:      "Stream has ended",
			Timestamp: s.clock.Now().UnixMilli(),
		})
		if err := rm.Inject(payload); err != nil {
			slog.Warn("failed to announce stream end", "stream_id", streamID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Stream ended"})
}
