package handlers

import (
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// FriendHandler handles friendships and friend requests
type FriendHandler struct {
	directoryService     *services.DirectoryService
	friendRequestService *services.FriendRequestService
	sessionService       *services.SessionService
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(
	directoryService *services.DirectoryService,
	friendRequestService *services.FriendRequestService,
	sessionService *services.SessionService,
) *FriendHandler {
	return &FriendHandler{
		directoryService:     directoryService,
		friendRequestService: friendRequestService,
		sessionService:       sessionService,
	}
}

// SendFriendRequestRequest represents the request body for a friend request
type SendFriendRequestRequest struct {
	ReceiverID string `json:"receiver_id"`
}

// ListFriends handles GET /api/v1/friends
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	friends, err := h.directoryService.ListFriends(ctx, userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to list friends")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

// StartChat handles POST /api/v1/friends/{friend_id}/chat
func (h *FriendHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sess, err := h.sessionService.StartFriendChat(ctx, userID, chi.URLParam(r, "friend_id"))
	if err != nil {
		writeDomainError(w, err, userID, "Failed to start friend chat")
		return
	}
	respondJSON(w, http.StatusOK, h.sessionService.View(ctx, sess, userID))
}

// Unfriend handles DELETE /api/v1/friends/{friend_id}
func (h *FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.directoryService.Unfriend(ctx, userID, chi.URLParam(r, "friend_id")); err != nil {
		writeDomainError(w, err, userID, "Failed to remove friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFriendRequests handles GET /api/v1/friend-requests?direction=incoming|outgoing
func (h *FriendHandler) ListFriendRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	dir, err := models.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeDomainError(w, err, userID, "Invalid direction")
		return
	}

	requests, err := h.friendRequestService.ListPending(ctx, userID, dir)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to list friend requests")
		return
	}
	if requests == nil {
		requests = []*models.FriendRequest{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"friend_requests": requests})
}

// SendFriendRequest handles POST /api/v1/friend-requests
func (h *FriendHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendFriendRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReceiverID == "" {
		respondError(w, "receiver_id is required", http.StatusBadRequest)
		return
	}

	fr, err := h.friendRequestService.Send(ctx, userID, req.ReceiverID, nil)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to send friend request")
		return
	}
	respondJSON(w, http.StatusCreated, fr)
}

// FriendRequestAction handles POST /api/v1/friend-requests/{request_id}/actions
func (h *FriendHandler) FriendRequestAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requestID := chi.URLParam(r, "request_id")

	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		fr  *models.FriendRequest
		err error
	)
	switch req.Action {
	case "accept":
		fr, err = h.friendRequestService.Accept(ctx, requestID, userID)
	case "decline":
		fr, err = h.friendRequestService.Decline(ctx, requestID, userID)
	default:
		respondError(w, "action must be accept or decline", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err, userID, "Failed to resolve friend request")
		return
	}
	respondJSON(w, http.StatusOK, fr)
}
