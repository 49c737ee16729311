package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"kindred-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 * 1024

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string     `json:"error"`
	Code  string     `json:"code,omitempty"`
	Field string     `json:"field,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// ActionRequest is the body of the .../actions endpoints
type ActionRequest struct {
	Action string `json:"action"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON decodes the request body into v
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// writeDomainError maps service errors to status codes. A resource the
// caller may not see is reported exactly like a missing one.
func writeDomainError(w http.ResponseWriter, err error, userID, msg string) {
	var invalid *models.InvalidArgumentError
	var penalty *models.PenaltyError

	switch {
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: invalid.Error(), Code: "invalid_argument", Field: invalid.Field})
	case errors.Is(err, models.ErrInvalidArgument):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid argument", Code: "invalid_argument"})
	case errors.As(err, &penalty):
		until := penalty.Until
		respondJSON(w, http.StatusForbidden, ErrorResponse{Error: "pairing is paused", Code: "penalized", Until: &until})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrUnauthorized):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Code: "not_found"})
	case errors.Is(err, models.ErrAlreadyResolved):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "already resolved", Code: "already_resolved"})
	case errors.Is(err, models.ErrConflict):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "conflict", Code: "conflict"})
	case errors.Is(err, models.ErrSessionInactive):
		respondJSON(w, http.StatusConflict, ErrorResponse{Error: "session has ended", Code: "session_inactive"})
	case errors.Is(err, models.ErrExpired):
		respondJSON(w, http.StatusGone, ErrorResponse{Error: "expired", Code: "expired"})
	default:
		log.Error().Err(err).Str("user_id", userID).Msg(msg)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
	}
}
