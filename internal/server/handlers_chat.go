package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
	apperrors "github.com/moltyfromclaw/molt-tv/internal/errors"
	"github.com/moltyfromclaw/molt-tv/internal/metrics"
	"github.com/moltyfromclaw/molt-tv/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Chat is a public surface; CORS is handled at the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleChatSocket(c echo.Context) error {
	roomID := c.Param("id")

	rm, err := s.rooms.Resolve(roomID)
	if err != nil {
		return apperrors.AsStructuredError(err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return nil
	}
	metrics.WebSocketUpgradesTotal.Inc()

	conn := room.NewWSConn(ws, s.clock)
	identity := c.RealIP()
	if identity == "" {
		identity = "unknown"
	}

	if err := rm.Join(conn, identity); err != nil {
		slog.Warn("room rejected connection", "room_id", roomID, "error", err)
		conn.Shutdown(websocket.CloseTryAgainLater, err.Error())
		return nil
	}

	// Read pump: each frame is its own unit of work for the room actor.
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		err = rm.HandleFrame(conn, payload)
		if errors.Is(err, domain.ErrRoomStopped) {
			// The actor was evicted under us; the replacement adopts
			// this connection during rehydration.
			if rm, err = s.rooms.Resolve(roomID); err != nil {
				break
			}
			err = rm.HandleFrame(conn, payload)
		}
		if errors.Is(err, domain.ErrSessionUnknown) {
			// Session already reaped; the close frame is on the wire.
			break
		}
	}

	if err := rm.Leave(conn); errors.Is(err, domain.ErrRoomStopped) {
		if rm, err = s.rooms.Resolve(roomID); err == nil {
			_ = rm.Leave(conn)
		}
	}
	conn.Shutdown(websocket.CloseNormalClosure, "")
	return nil
}

func (s *Server) handleMessages(c echo.Context) error {
	rm, err := s.rooms.Resolve(c.Param("id"))
	if err != nil {
		return apperrors.AsStructuredError(err)
	}

	var query room.BacklogQuery
	if v := c.QueryParam("since"); v != "" {
		since, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperrors.ValidationError("since must be a unix millisecond timestamp")
		}
		query.Since = &since
	}
	if v := c.QueryParam("before"); v != "" {
		before, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperrors.ValidationError("before must be a unix millisecond timestamp")
		}
		query.Before = &before
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return apperrors.ValidationError("limit must be a positive integer")
		}
		query.Limit = limit
	}

	messages, err := rm.Backlog(query)
	if err != nil {
		return apperrors.InternalError("failed to read messages", err).
			WithContext("room_id", rm.ID())
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}

type paidPromptRequest struct {
	Prompt      string `json:"prompt"`
	SenderName  string `json:"senderName"`
	PaymentType string `json:"paymentType"`
	PaymentRef  string `json:"paymentRef"`
}

func (s *Server) handlePaidPrompt(c echo.Context) error {
	streamID := c.Param("id")

	var req paidPromptRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Prompt == "" || req.PaymentType == "" || req.PaymentRef == "" {
		return apperrors.ValidationError("prompt, paymentType, and paymentRef required")
	}

	kind := domain.PaymentKind(req.PaymentType)
	if kind != domain.PaymentX402 && kind != domain.PaymentStripe {
		return apperrors.ValidationError("paymentType must be 'x402' or 'stripe'")
	}
	if !verifyPayment(kind, req.PaymentRef) {
		return apperrors.PaymentError("payment verification failed")
	}

	sender := req.SenderName
	if sender == "" {
		sender = "Anonymous"
	}

	promptID := uuid.NewString()
	now := s.clock.Now()

	// Audit record is best effort; the prompt is still delivered.
	audit := domain.PaidPrompt{
		ID:          promptID,
		StreamID:    streamID,
		Prompt:      req.Prompt,
		SenderName:  sender,
		PaymentKind: kind,
		PaymentRef:  req.PaymentRef,
		CreatedAt:   now.UTC(),
	}
	if err := s.prompts.Record(c.Request().Context(), audit); err != nil {
		slog.Warn("failed to record paid prompt", "stream_id", streamID, "prompt_id", promptID, "error", err)
	}

	rm, err := s.rooms.Resolve(streamID)
	if err != nil {
		return apperrors.AsStructuredError(err)
	}

	payload, _ := json.Marshal(domain.ChatMessage{
		Kind:        domain.KindPaidPrompt,
		Name:        sender,
		Body:        req.Prompt,
		Timestamp:   now.UnixMilli(),
		PromptID:    promptID,
		PaymentKind: req.PaymentType,
	})
	if err := rm.Inject(payload); err != nil {
		return apperrors.InternalError("failed to deliver prompt", err).
			WithContext("stream_id", streamID).
			WithContext("prompt_id", promptID)
	}
	if err := rm.Store(payload); err != nil {
		slog.Warn("failed to persist paid prompt", "stream_id", streamID, "prompt_id", promptID, "error", err)
	}
	metrics.RoomMessagesTotal.WithLabelValues(string(domain.KindPaidPrompt)).Inc()

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"promptId": promptID,
		"message":  "Prompt delivered",
	})
}

type agentResponseRequest struct {
	Message   string `json:"message"`
	InReplyTo string `json:"inReplyTo"`
}

func (s *Server) handleAgentResponse(c echo.Context) error {
	if c.Request().Header.Get("X-Agent-Secret") != s.config.AgentSecret {
		return apperrors.UnauthorizedError("unauthorized")
	}

	var req agentResponseRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Message == "" {
		return apperrors.ValidationError("message required")
	}

	rm, err := s.rooms.Resolve(c.Param("id"))
	if err != nil {
		return apperrors.AsStructuredError(err)
	}

	payload, _ := json.Marshal(domain.ChatMessage{
		Kind:      domain.KindAgentResponse,
		Name:      "Agent",
		Body:      req.Message,
		Timestamp: s.clock.Now().UnixMilli(),
		InReplyTo: req.InReplyTo,
	})
	if err := rm.Inject(payload); err != nil {
		return apperrors.InternalError("failed to deliver response", err).
			WithContext("stream_id", rm.ID())
	}
	metrics.RoomMessagesTotal.WithLabelValues(string(domain.KindAgentResponse)).Inc()

	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Response delivered"})
}

// verifyPayment is a stub: it shape-checks the reference per rail until
// real provider verification lands.
func verifyPayment(kind domain.PaymentKind, ref string) bool {
	switch kind {
	case domain.PaymentX402:
		return ref != ""
	case domain.PaymentStripe:
		// TODO: verify the PaymentIntent against Stripe once keys are provisioned.
		return ref != ""
	default:
		return false
	}
}
