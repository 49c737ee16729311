package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kindred-backend/internal/compat"
	"kindred-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// MatchService ranks seeking users against a prompt
type MatchService struct {
	users     UserStore
	blocks    BlockStore
	invites   InviteStore
	sessions  SessionStore
	penalties *PenaltyClock
	pub       Publisher
	settings  Settings
	Now       func() time.Time
}

// NewMatchService creates a new match service
func NewMatchService(
	users UserStore,
	blocks BlockStore,
	invites InviteStore,
	sessions SessionStore,
	penalties *PenaltyClock,
	pub Publisher,
	settings Settings,
) *MatchService {
	return &MatchService{
		users:     users,
		blocks:    blocks,
		invites:   invites,
		sessions:  sessions,
		penalties: penalties,
		pub:       pub,
		settings:  settings,
		Now:       time.Now,
	}
}

// SubmitPrompt makes the user a seeker under a new prompt. Pending invites
// sent or received under the old prompt are cancelled first.
func (s *MatchService) SubmitPrompt(ctx context.Context, userID, prompt string) ([]compat.Match, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, models.NewInvalidArgument("prompt", "required")
	}
	if len([]rune(prompt)) > s.settings.MaxPromptLength {
		return nil, models.NewInvalidArgument("prompt", "too long")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.penalties.Check(user); err != nil {
		return nil, err
	}

	if err := s.cancelInvites(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.users.SetCurrentPrompt(ctx, userID, &prompt); err != nil {
		return nil, fmt.Errorf("failed to set prompt: %w", err)
	}
	user.CurrentPrompt = &prompt

	log.Info().Str("user_id", userID).Msg("Prompt submitted")

	return s.rank(ctx, user, prompt)
}

// ClearPrompt stops the user seeking and withdraws their pending invites
func (s *MatchService) ClearPrompt(ctx context.Context, userID string) error {
	if err := s.cancelInvites(ctx, userID); err != nil {
		return err
	}
	if err := s.users.SetCurrentPrompt(ctx, userID, nil); err != nil {
		return fmt.Errorf("failed to clear prompt: %w", err)
	}
	return nil
}

// FindMatches ranks the pool against the seeker's current prompt
func (s *MatchService) FindMatches(ctx context.Context, seekerID string) ([]compat.Match, error) {
	seeker, err := s.users.GetByID(ctx, seekerID)
	if err != nil {
		return nil, err
	}
	if !seeker.IsSeeking() {
		return nil, models.NewInvalidArgument("prompt", "submit a prompt first")
	}
	if err := s.penalties.Check(seeker); err != nil {
		return nil, err
	}
	return s.rank(ctx, seeker, *seeker.CurrentPrompt)
}

func (s *MatchService) rank(ctx context.Context, seeker *models.User, prompt string) ([]compat.Match, error) {
	pool, err := s.users.ListSeeking(ctx, seeker.ID, s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list seekers: %w", err)
	}
	related, err := relatedSet(ctx, s.blocks, seeker.ID)
	if err != nil {
		return nil, err
	}

	candidates := make([]compat.Candidate, 0, len(pool))
	for _, u := range pool {
		if related[u.ID] {
			continue
		}
		recent, err := s.RecentPrompt(ctx, u)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, compat.Candidate{User: u, RecentPrompt: recent})
	}

	matches := compat.Rank(seeker, prompt, candidates, s.settings.MaxMatches)

	log.Debug().
		Str("user_id", seeker.ID).
		Int("pool", len(pool)).
		Int("matches", len(matches)).
		Msg("Matches ranked")

	return matches, nil
}

// RecentPrompt resolves what a candidate is talking about: their current
// prompt, else their newest pending outgoing invite, else their active session.
func (s *MatchService) RecentPrompt(ctx context.Context, u *models.User) (string, error) {
	if u.IsSeeking() {
		return *u.CurrentPrompt, nil
	}
	prompt, err := s.invites.LatestPendingPrompt(ctx, u.ID, s.Now())
	if err != nil {
		return "", fmt.Errorf("failed to resolve invite prompt: %w", err)
	}
	if prompt != "" {
		return prompt, nil
	}
	prompt, err = s.sessions.LatestActivePrompt(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session prompt: %w", err)
	}
	return prompt, nil
}

func (s *MatchService) cancelInvites(ctx context.Context, userID string) error {
	cancelled, err := s.invites.CancelAllForUser(ctx, userID, s.Now())
	if err != nil {
		return fmt.Errorf("failed to cancel invites: %w", err)
	}
	notifyCancelled(ctx, s.pub, cancelled)
	return nil
}

// notifyCancelled tells both ends of each cancelled invite
func notifyCancelled(ctx context.Context, pub Publisher, cancelled []*models.Invite) {
	for _, inv := range cancelled {
		payload := map[string]any{"invite_id": inv.ID}
		notify(ctx, pub, UserChannel(inv.SenderID), EventInviteCancelled, payload)
		notify(ctx, pub, UserChannel(inv.ReceiverID), EventInviteCancelled, payload)
	}
}
