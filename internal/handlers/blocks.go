package handlers

import (
	"net/http"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// BlockHandler handles block-related HTTP requests
type BlockHandler struct {
	directoryService *services.DirectoryService
}

// NewBlockHandler creates a new block handler
func NewBlockHandler(directoryService *services.DirectoryService) *BlockHandler {
	return &BlockHandler{directoryService: directoryService}
}

// CreateBlockRequest represents the request body for blocking a user
type CreateBlockRequest struct {
	UserID string `json:"user_id"`
}

// ListBlocks handles GET /api/v1/blocks
func (h *BlockHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	blocks, err := h.directoryService.ListBlocks(ctx, userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to list blocks")
		return
	}
	if blocks == nil {
		blocks = []*models.Block{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// CreateBlock handles POST /api/v1/blocks
func (h *BlockHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		respondError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	block, err := h.directoryService.Block(ctx, userID, req.UserID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to block user")
		return
	}
	respondJSON(w, http.StatusCreated, block)
}

// DeleteBlock handles DELETE /api/v1/blocks/{user_id}
func (h *BlockHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.directoryService.Unblock(ctx, userID, chi.URLParam(r, "user_id")); err != nil {
		writeDomainError(w, err, userID, "Failed to unblock user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
