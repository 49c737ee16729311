package services

import (
	"context"
	"strings"
	"time"

	"kindred-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const maxPushTokenLength = 200

// MeView is the caller's own engine state
type MeView struct {
	UserID        string                `json:"user_id"`
	Profile       models.ProfilePreview `json:"profile"`
	CurrentPrompt *string               `json:"current_prompt,omitempty"`
	Penalized     bool                  `json:"penalized"`
	PenaltyEndsAt *time.Time            `json:"penalty_ends_at,omitempty"`
	PushEnabled   bool                  `json:"push_enabled"`
}

// UserService exposes the engine-owned fields of the caller's user record
type UserService struct {
	users UserStore
	Now   func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users, Now: time.Now}
}

// GetMe returns the caller's state. An expired penalty is reported as none.
func (s *UserService) GetMe(ctx context.Context, userID string) (*MeView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &MeView{
		UserID:        user.ID,
		Profile:       user.Preview(true),
		CurrentPrompt: user.CurrentPrompt,
		PushEnabled:   user.PushToken != nil,
	}
	if user.IsPenalized(s.Now()) {
		view.Penalized = true
		view.PenaltyEndsAt = user.PenaltyEndsAt
	}
	return view, nil
}

// UpdatePushToken stores the device token used for offline alerts. An empty
// token unregisters the device.
func (s *UserService) UpdatePushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if len(token) > maxPushTokenLength {
		return models.NewInvalidArgument("push_token", "too long")
	}

	var ptr *string
	if token != "" {
		ptr = &token
	}
	if err := s.users.UpdatePushToken(ctx, userID, ptr); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID).
		Bool("registered", ptr != nil).
		Msg("Push token updated")
	return nil
}
