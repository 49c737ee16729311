package handlers

import (
	"net/http"

	"kindred-backend/internal/compat"
	"kindred-backend/internal/middleware"
	"kindred-backend/internal/services"
)

// MatchHandler handles prompt submission and match listing
type MatchHandler struct {
	matchService *services.MatchService
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// SubmitPromptRequest represents the request body for submitting a prompt
type SubmitPromptRequest struct {
	Prompt string `json:"prompt"`
}

// MatchesResponse lists ranked matches
type MatchesResponse struct {
	Matches []compat.Match `json:"matches"`
}

// SubmitPrompt handles POST /api/v1/prompt
func (h *MatchHandler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SubmitPromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	matches, err := h.matchService.SubmitPrompt(ctx, userID, req.Prompt)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to submit prompt")
		return
	}
	respondJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}

// ClearPrompt handles DELETE /api/v1/prompt
func (h *MatchHandler) ClearPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.matchService.ClearPrompt(ctx, userID); err != nil {
		writeDomainError(w, err, userID, "Failed to clear prompt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMatches handles GET /api/v1/matches
func (h *MatchHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	matches, err := h.matchService.FindMatches(ctx, userID)
	if err != nil {
		writeDomainError(w, err, userID, "Failed to find matches")
		return
	}
	respondJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}
