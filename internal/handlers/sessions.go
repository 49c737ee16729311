package handlers

import (
	"errors"
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	sessionService    *services.SessionService
	transcriptService *services.TranscriptService
}

// NewSessionHandler creates a new session handler. transcriptService may be
// nil when no export bucket is configured.
func NewSessionHandler(sessionService *services.SessionService, transcriptService *services.TranscriptService) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		transcriptService: transcriptService,
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SessionActionResponse is returned by session actions
type SessionActionResponse struct {
	Outcome       string                `json:"outcome"`
	Session       *services.SessionView `json:"session,omitempty"`
	FriendRequest *models.FriendRequest `json:"friend_request,omitempty"`
}

// GetActiveSession handles GET /api/v1/sessions/active
func (h *SessionHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sess, err := h.sessionService.GetActive(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		respondJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	if err != nil {
		writeDomainError(w, err, userID, "Failed to get active session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": h.sessionService.View(ctx, sess, userID)})
}

// GetSession handles GET /api/v1/sessions/{session_id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sess, err := h.sessionService.Get(ctx, chi.URLParam(r, "session_id"), userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to get session")
		return
	}
	respondJSON(w, http.StatusOK, h.sessionService.View(ctx, sess, userID))
}

// ListMessages handles GET /api/v1/sessions/{session_id}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	messages, err := h.sessionService.Messages(ctx, chi.URLParam(r, "session_id"), userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// SendMessage handles POST /api/v1/sessions/{session_id}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.sessionService.AddMessage(ctx, chi.URLParam(r, "session_id"), userID, req.Text)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to send message")
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

// SessionAction handles POST /api/v1/sessions/{session_id}/actions
func (h *SessionHandler) SessionAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	sessionID := chi.URLParam(r, "session_id")

	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		resp SessionActionResponse
		sess *models.ChatSession
		err  error
	)
	switch req.Action {
	case "continue":
		var outcome services.ContinueOutcome
		outcome, sess, err = h.sessionService.RequestContinue(ctx, sessionID, userID)
		resp.Outcome = string(outcome)
	case "leave":
		var outcome services.LeaveOutcome
		outcome, sess, err = h.sessionService.Leave(ctx, sessionID, userID)
		resp.Outcome = string(outcome)
	case "approve_exit", "deny_exit":
		approved := req.Action == "approve_exit"
		sess, err = h.sessionService.RespondEarlyExit(ctx, sessionID, userID, approved)
		resp.Outcome = "denied"
		if approved {
			resp.Outcome = "ended"
		}
	case "friend_request":
		resp.FriendRequest, err = h.sessionService.RequestFriendship(ctx, sessionID, userID)
		resp.Outcome = "requested"
	default:
		respondError(w, "action must be continue, leave, approve_exit, deny_exit or friend_request", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err, userID, "Failed to apply session action")
		return
	}

	if sess != nil {
		resp.Session = h.sessionService.View(ctx, sess, userID)
	}
	respondJSON(w, http.StatusOK, resp)
}

// ExportTranscript handles POST /api/v1/sessions/{session_id}/transcript
func (h *SessionHandler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if h.transcriptService == nil {
		respondError(w, "transcript export is not configured", http.StatusNotImplemented)
		return
	}

	export, err := h.transcriptService.Export(ctx, chi.URLParam(r, "session_id"), userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to export transcript")
		return
	}
	respondJSON(w, http.StatusOK, export)
}
