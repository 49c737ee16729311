package handlers

import (
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// InviteHandler handles invite-related HTTP requests
type InviteHandler struct {
	inviteService  *services.InviteService
	sessionService *services.SessionService
}

// NewInviteHandler creates a new invite handler
func NewInviteHandler(inviteService *services.InviteService, sessionService *services.SessionService) *InviteHandler {
	return &InviteHandler{
		inviteService:  inviteService,
		sessionService: sessionService,
	}
}

// CreateInviteRequest represents the request body for sending an invite
type CreateInviteRequest struct {
	ReceiverID string `json:"receiver_id"`
	PromptText string `json:"prompt_text"`
}

// InviteActionResponse is returned by invite actions; Session is set on accept
type InviteActionResponse struct {
	Invite  *models.Invite        `json:"invite"`
	Session *services.SessionView `json:"session,omitempty"`
}

// ListInvites handles GET /api/v1/invites?direction=incoming|outgoing
func (h *InviteHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	dir, err := models.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeDomainError(w, err, userID, "Invalid direction")
		return
	}

	invites, err := h.inviteService.ListPending(ctx, userID, dir)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to list invites")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

// CreateInvite handles POST /api/v1/invites
func (h *InviteHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReceiverID == "" {
		respondError(w, "receiver_id is required", http.StatusBadRequest)
		return
	}

	inv, err := h.inviteService.Create(ctx, userID, req.ReceiverID, req.PromptText)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to create invite")
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// InviteAction handles POST /api/v1/invites/{invite_id}/actions
func (h *InviteHandler) InviteAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	inviteID := chi.URLParam(r, "invite_id")

	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		inv  *models.Invite
		sess *models.ChatSession
		err  error
	)
	switch req.Action {
	case "accept":
		inv, sess, err = h.inviteService.Accept(ctx, inviteID, userID)
	case "decline":
		inv, err = h.inviteService.Decline(ctx, inviteID, userID)
	case "cancel":
		inv, err = h.inviteService.Cancel(ctx, inviteID, userID)
	default:
		respondError(w, "action must be accept, decline or cancel", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err, userID, "Failed to resolve invite")
		return
	}

	resp := InviteActionResponse{Invite: inv}
	if sess != nil {
		resp.Session = h.sessionService.View(ctx, sess, userID)
	}
	respondJSON(w, http.StatusOK, resp)
}
