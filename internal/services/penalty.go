package services

import (
	"context"
	"fmt"
	"time"

	"kindred-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// PenaltyClock places and checks time-boxed pairing restrictions
type PenaltyClock struct {
	users    UserStore
	duration time.Duration
	Now      func() time.Time
}

// NewPenaltyClock creates a penalty clock
func NewPenaltyClock(users UserStore, duration time.Duration) *PenaltyClock {
	return &PenaltyClock{
		users:    users,
		duration: duration,
		Now:      time.Now,
	}
}

// Apply restricts userID for the penalty duration measured from now.
// Repeated calls move the window forward; they never stack.
func (p *PenaltyClock) Apply(ctx context.Context, userID string) (time.Time, error) {
	endsAt := p.EndsAt()
	if err := p.users.SetPenalty(ctx, userID, endsAt); err != nil {
		return time.Time{}, fmt.Errorf("failed to apply penalty: %w", err)
	}
	logPenalty(userID, endsAt)
	return endsAt, nil
}

// EndsAt is when a penalty placed now would lift
func (p *PenaltyClock) EndsAt() time.Time {
	return p.Now().Add(p.duration)
}

func logPenalty(userID string, endsAt time.Time) {
	log.Info().
		Str("user_id", userID).
		Time("ends_at", endsAt).
		Msg("Penalty applied")
}

// Check returns a PenaltyError if the user is currently penalized
func (p *PenaltyClock) Check(user *models.User) error {
	if user.IsPenalized(p.Now()) {
		return &models.PenaltyError{Until: *user.PenaltyEndsAt}
	}
	return nil
}

// CheckUser loads a user and checks their penalty
func (p *PenaltyClock) CheckUser(ctx context.Context, userID string) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	return p.Check(user)
}
