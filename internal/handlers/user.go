package handlers

import (
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/services"
)

// UserHandler handles requests about the caller's own record
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UpdatePushTokenRequest represents the request body for registering a device
type UpdatePushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// GetMe handles GET /api/v1/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	me, err := h.userService.GetMe(ctx, userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to get user")
		return
	}
	respondJSON(w, http.StatusOK, me)
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdatePushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		writeDomainError(w, err, userID, "Failed to update push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
