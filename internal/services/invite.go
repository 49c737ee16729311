package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kindred-backend/internal/compat"
	"kindred-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InviteView is an invite as listed to one of its parties
type InviteView struct {
	*models.Invite
	// Counterpart is the pseudonym the viewer sees for the other party
	Counterpart string `json:"counterpart"`
}

// InviteService brokers short-lived proposals to start an anonymous session
type InviteService struct {
	invites   InviteStore
	users     UserStore
	blocks    BlockStore
	sessions  *SessionService
	penalties *PenaltyClock
	pub       Publisher
	settings  Settings
	Now       func() time.Time
}

// NewInviteService creates a new invite service
func NewInviteService(
	invites InviteStore,
	users UserStore,
	blocks BlockStore,
	sessions *SessionService,
	penalties *PenaltyClock,
	pub Publisher,
	settings Settings,
) *InviteService {
	return &InviteService{
		invites:   invites,
		users:     users,
		blocks:    blocks,
		sessions:  sessions,
		penalties: penalties,
		pub:       pub,
		settings:  settings,
		Now:       time.Now,
	}
}

// Create sends an invite. An empty prompt falls back to the sender's current
// prompt. An invite between blocked users is stored but never delivered.
func (s *InviteService) Create(ctx context.Context, senderID, receiverID, prompt string) (*models.Invite, error) {
	if senderID == receiverID {
		return nil, models.NewInvalidArgument("receiver_id", "cannot invite yourself")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if err := s.penalties.Check(sender); err != nil {
		return nil, err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" && sender.IsSeeking() {
		prompt = *sender.CurrentPrompt
	}
	if prompt == "" {
		return nil, models.NewInvalidArgument("prompt_text", "required")
	}
	if len([]rune(prompt)) > s.settings.MaxPromptLength {
		return nil, models.NewInvalidArgument("prompt_text", "too long")
	}

	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}
	if err := s.ensureIdle(ctx, senderID); err != nil {
		return nil, err
	}

	blocked, err := s.blocks.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block: %w", err)
	}

	now := s.Now()
	inv := &models.Invite{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		PromptText: prompt,
		Status:     models.InviteStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.settings.InviteTTL),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	log.Info().
		Str("invite_id", inv.ID).
		Str("sender_id", senderID).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invite created")

	if !blocked {
		notify(ctx, s.pub, UserChannel(receiverID), EventInviteReceived, InviteView{
			Invite:      inv,
			Counterpart: compat.Pseudonym(receiverID, senderID),
		})
	}
	return inv, nil
}

// Accept accepts an invite on behalf of its receiver and starts the session.
// The invite's own state is judged first: ErrNotFound, then
// ErrAlreadyResolved, then ErrExpired (marking it expired). Of several
// concurrent accepts touching the same users exactly one wins; the others
// see ErrAlreadyResolved or ErrConflict.
func (s *InviteService) Accept(ctx context.Context, inviteID, actorID string) (*models.Invite, *models.ChatSession, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, nil, err
	}
	if inv.ReceiverID != actorID {
		return nil, nil, models.ErrUnauthorized
	}
	if err := s.checkPending(ctx, inv); err != nil {
		return nil, nil, err
	}
	blocked, err := s.blocks.IsBlocked(ctx, inv.SenderID, inv.ReceiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check block: %w", err)
	}
	if blocked {
		return nil, nil, models.ErrUnauthorized
	}
	for _, userID := range []string{inv.ReceiverID, inv.SenderID} {
		if err := s.penalties.CheckUser(ctx, userID); err != nil {
			return nil, nil, err
		}
		if err := s.ensureIdle(ctx, userID); err != nil {
			return nil, nil, err
		}
	}

	accepted, cancelled, err := s.invites.Accept(ctx, inviteID, s.Now())
	if err != nil {
		return nil, nil, err
	}
	notifyCancelled(ctx, s.pub, cancelled)

	sess, err := s.sessions.StartAnonymous(ctx, accepted)
	if err != nil {
		log.Warn().
			Err(err).
			Str("invite_id", accepted.ID).
			Msg("Invite accepted but session could not start")
		return nil, nil, err
	}

	log.Info().
		Str("invite_id", accepted.ID).
		Str("session_id", sess.ID).
		Int("cancelled", len(cancelled)).
		Msg("Invite accepted")

	notify(ctx, s.pub, UserChannel(accepted.SenderID), EventInviteAccepted, map[string]any{
		"invite_id":  accepted.ID,
		"session_id": sess.ID,
	})
	return accepted, sess, nil
}

// Decline rejects an invite on behalf of its receiver
func (s *InviteService) Decline(ctx context.Context, inviteID, actorID string) (*models.Invite, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.ReceiverID != actorID {
		return nil, models.ErrUnauthorized
	}

	inv, err = s.invites.Resolve(ctx, inviteID, models.InviteStatusDeclined, s.Now())
	if err != nil {
		return nil, err
	}

	notify(ctx, s.pub, UserChannel(inv.SenderID), EventInviteDeclined, map[string]any{"invite_id": inv.ID})
	return inv, nil
}

// Cancel withdraws an invite on behalf of its sender
func (s *InviteService) Cancel(ctx context.Context, inviteID, actorID string) (*models.Invite, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.SenderID != actorID {
		return nil, models.ErrUnauthorized
	}

	inv, err = s.invites.Resolve(ctx, inviteID, models.InviteStatusCancelled, s.Now())
	if err != nil {
		return nil, err
	}

	notify(ctx, s.pub, UserChannel(inv.ReceiverID), EventInviteCancelled, map[string]any{"invite_id": inv.ID})
	return inv, nil
}

// CancelAll cancels every pending invite sent or received by userID
func (s *InviteService) CancelAll(ctx context.Context, userID string) (int, error) {
	cancelled, err := s.invites.CancelAllForUser(ctx, userID, s.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel invites: %w", err)
	}
	notifyCancelled(ctx, s.pub, cancelled)
	return len(cancelled), nil
}

// ListPending lists live invites in one direction. Incoming invites from
// users in a block relationship are never shown.
func (s *InviteService) ListPending(ctx context.Context, userID string, dir models.Direction) ([]InviteView, error) {
	invites, err := s.invites.ListPending(ctx, userID, dir, s.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	related, err := relatedSet(ctx, s.blocks, userID)
	if err != nil {
		return nil, err
	}

	views := make([]InviteView, 0, len(invites))
	for _, inv := range invites {
		other := inv.ReceiverID
		if dir == models.DirectionIncoming {
			other = inv.SenderID
			if related[other] {
				continue
			}
		}
		views = append(views, InviteView{Invite: inv, Counterpart: compat.Pseudonym(userID, other)})
	}
	return views, nil
}

// ExpireStale marks pending invites past their deadline as expired
func (s *InviteService) ExpireStale(ctx context.Context) (int64, error) {
	return s.invites.ExpireStale(ctx, s.Now())
}

// checkPending reports a resolved invite as ErrAlreadyResolved and an
// overdue one as ErrExpired, recording the expiry.
func (s *InviteService) checkPending(ctx context.Context, inv *models.Invite) error {
	now := s.Now()
	if inv.Status != models.InviteStatusPending {
		return models.ErrAlreadyResolved
	}
	if !models.IsExpired(now, inv.ExpiresAt) {
		return nil
	}
	if _, err := s.invites.Resolve(ctx, inv.ID, models.InviteStatusExpired, now); err != nil {
		return err
	}
	return models.ErrExpired
}

func (s *InviteService) ensureIdle(ctx context.Context, userID string) error {
	_, err := s.sessions.GetActive(ctx, userID)
	if err == nil {
		return models.ErrConflict
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("failed to get active session: %w", err)
}
