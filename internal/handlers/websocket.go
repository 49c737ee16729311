package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // clients authenticate with a token
	},
}

// ClientFrame is a frame sent by a websocket client
type ClientFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *services.WSHub
	verifier       middleware.TokenVerifier
	sessionService *services.SessionService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	verifier middleware.TokenVerifier,
	sessionService *services.SessionService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		verifier:       verifier,
		sessionService: sessionService,
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := h.hub.Register(userID, conn)
	go client.WritePump()

	ctx := r.Context()
	h.sendSessionStatus(ctx, client)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	client.ReadPump(func(c *services.WSClient, data []byte) {
		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Error().Err(err).Str("user_id", c.UserID).Msg("Failed to parse WebSocket message")
			sendError(c, "Invalid message format")
			return
		}
		h.handleMessage(ctx, c, frame)
	})
}

// handleMessage processes incoming WebSocket frames
func (h *WebSocketHandler) handleMessage(ctx context.Context, c *services.WSClient, frame ClientFrame) {
	switch frame.Type {
	case "join_session":
		h.handleJoinSession(ctx, c, frame.SessionID)
	case "leave_session":
		h.hub.LeaveSession(c)
	case "ping":
		c.Send(services.WSMessage{Event: "pong"})
	default:
		sendError(c, "Unknown message type")
	}
}

// handleJoinSession subscribes the connection to a session room the user
// participates in
func (h *WebSocketHandler) handleJoinSession(ctx context.Context, c *services.WSClient, sessionID string) {
	if sessionID == "" {
		sendError(c, "session_id is required")
		return
	}
	if _, err := h.sessionService.Get(ctx, sessionID, c.UserID); err != nil {
		if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrUnauthorized) {
			log.Error().Err(err).Str("user_id", c.UserID).Str("session_id", sessionID).Msg("Failed to load session")
		}
		sendError(c, "Session not found")
		return
	}

	h.hub.JoinSession(c, sessionID)
	c.Send(services.WSMessage{
		Event: "joined",
		Data:  map[string]any{"session_id": sessionID},
	})
}

// sendSessionStatus tells a new connection about the user's active session
// and joins its room
func (h *WebSocketHandler) sendSessionStatus(ctx context.Context, c *services.WSClient) {
	sess, err := h.sessionService.GetActive(ctx, c.UserID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error().Err(err).Str("user_id", c.UserID).Msg("Failed to load active session")
		}
		c.Send(services.WSMessage{
			Event: "session_status",
			Data:  map[string]any{"has_session": false},
		})
		return
	}

	h.hub.JoinSession(c, sess.ID)
	c.Send(services.WSMessage{
		Event: "session_status",
		Data: map[string]any{
			"has_session": true,
			"session":     h.sessionService.View(ctx, sess, c.UserID),
		},
	})
}

// sendError sends an error frame to one connection
func sendError(c *services.WSClient, message string) {
	c.Send(services.WSMessage{
		Event:   "error",
		Message: message,
	})
}
