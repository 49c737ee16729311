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

// ContinueOutcome is the result of a continue request
type ContinueOutcome string

const (
	ContinueWaiting ContinueOutcome = "waiting"
	ContinueMutual  ContinueOutcome = "mutual"
)

// LeaveOutcome is the result of asking to leave a session
type LeaveOutcome string

const (
	LeaveEnded            LeaveOutcome = "ended"
	LeaveApprovalRequired LeaveOutcome = "approval_required"
)

// SessionService owns the timed conversation state machine
type SessionService struct {
	sessions    SessionStore
	messages    MessageStore
	users       UserStore
	blocks      BlockStore
	friendships FriendshipStore
	friends     *FriendRequestService
	penalties   *PenaltyClock
	pub         Publisher
	settings    Settings
	Now         func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(
	sessions SessionStore,
	messages MessageStore,
	users UserStore,
	blocks BlockStore,
	friendships FriendshipStore,
	friends *FriendRequestService,
	penalties *PenaltyClock,
	pub Publisher,
	settings Settings,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		messages:    messages,
		users:       users,
		blocks:      blocks,
		friendships: friendships,
		friends:     friends,
		penalties:   penalties,
		pub:         pub,
		settings:    settings,
		Now:         time.Now,
	}
}

// StartAnonymous materializes the session for an accepted invite.
// ErrConflict means one of the parties already holds an active session.
func (s *SessionService) StartAnonymous(ctx context.Context, inv *models.Invite) (*models.ChatSession, error) {
	prompt := inv.PromptText
	sess := s.newSession(inv.SenderID, inv.ReceiverID, models.SessionTypeAnonymous, &prompt)

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	// Both parties stop seeking once they are paired
	for _, userID := range []string{sess.UserAID, sess.UserBID} {
		if err := s.users.SetCurrentPrompt(ctx, userID, nil); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to clear prompt")
		}
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("invite_id", inv.ID).
		Msg("Anonymous session started")

	s.publishStarted(ctx, sess)
	return sess, nil
}

// StartFriendChat opens a friend-type session, reusing an active one between the pair
func (s *SessionService) StartFriendChat(ctx context.Context, userID, friendID string) (*models.ChatSession, error) {
	if userID == friendID {
		return nil, models.NewInvalidArgument("friend_id", "cannot chat with yourself")
	}

	friends, err := s.friendships.Exists(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if !friends {
		return nil, models.ErrUnauthorized
	}
	blocked, err := s.blocks.IsBlocked(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block: %w", err)
	}
	if blocked {
		return nil, models.ErrUnauthorized
	}

	existing, err := s.sessions.GetActiveFriendSession(ctx, userID, friendID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get friend session: %w", err)
	}

	sess := s.newSession(userID, friendID, models.SessionTypeFriend, nil)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("user_id", userID).
		Msg("Friend session started")

	s.publishStarted(ctx, sess)
	return sess, nil
}

func (s *SessionService) newSession(userA, userB string, typ models.SessionType, prompt *string) *models.ChatSession {
	id := uuid.New().String()
	return &models.ChatSession{
		ID:      id,
		UserAID: userA,
		UserBID: userB,
		DisplayNames: map[string]string{
			userA: compat.SessionPseudonym(id, userB, userA),
			userB: compat.SessionPseudonym(id, userA, userB),
		},
		Type:       typ,
		PromptText: prompt,
		StartedAt:  s.Now(),
		IsActive:   true,
	}
}

// Get returns a session if userID is one of its participants
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(userID) {
		return nil, models.ErrUnauthorized
	}
	return sess, nil
}

// GetActive returns the user's active session
func (s *SessionService) GetActive(ctx context.Context, userID string) (*models.ChatSession, error) {
	return s.sessions.GetActiveForUser(ctx, userID)
}

// MinimumTimeSatisfied reports whether the engagement window no longer applies
func (s *SessionService) MinimumTimeSatisfied(sess *models.ChatSession, now time.Time) bool {
	return sess.MinimumTimeMet || now.Sub(sess.StartedAt) >= s.settings.MinimumEngagement
}

func (s *SessionService) canLeaveFreely(sess *models.ChatSession, now time.Time) bool {
	return sess.Type == models.SessionTypeFriend || now.Sub(sess.StartedAt) >= s.settings.MinimumEngagement
}

// SessionView is a session as seen by one participant. The partner's id
// is only revealed in friend sessions.
type SessionView struct {
	ID                 string                `json:"id"`
	Type               models.SessionType    `json:"type"`
	PromptText         *string               `json:"prompt_text,omitempty"`
	StartedAt          time.Time             `json:"started_at"`
	EndedAt            *time.Time            `json:"ended_at,omitempty"`
	IsActive           bool                  `json:"is_active"`
	BecameFriends      bool                  `json:"became_friends"`
	YourName           string                `json:"your_name"`
	PartnerName        string                `json:"partner_name"`
	PartnerID          string                `json:"partner_id,omitempty"`
	PartnerProfile     models.ProfilePreview `json:"partner_profile"`
	MinimumTimeMet     bool                  `json:"minimum_time_met"`
	SecondsRemaining   int                   `json:"seconds_remaining"`
	ContinueRequested  string                `json:"continue_requested,omitempty"`
	EarlyExitRequested string                `json:"early_exit_requested,omitempty"`
	FriendRequested    string                `json:"friend_requested,omitempty"`
}

// View renders sess for viewerID
func (s *SessionService) View(ctx context.Context, sess *models.ChatSession, viewerID string) *SessionView {
	now := s.Now()
	partnerID := sess.OtherUser(viewerID)
	asFriend := sess.Type == models.SessionTypeFriend

	v := &SessionView{
		ID:                 sess.ID,
		Type:               sess.Type,
		PromptText:         sess.PromptText,
		StartedAt:          sess.StartedAt,
		EndedAt:            sess.EndedAt,
		IsActive:           sess.IsActive,
		BecameFriends:      sess.BecameFriends,
		YourName:           sess.DisplayNames[viewerID],
		PartnerName:        sess.DisplayNames[partnerID],
		MinimumTimeMet:     s.MinimumTimeSatisfied(sess, now),
		ContinueRequested:  whoAsked(sess.ContinueRequestedBy, viewerID),
		EarlyExitRequested: whoAsked(sess.EarlyExitRequestedBy, viewerID),
		FriendRequested:    whoAsked(sess.FriendRequestedBy, viewerID),
	}
	if asFriend {
		v.PartnerID = partnerID
	}
	if sess.IsActive && sess.Type == models.SessionTypeAnonymous && !v.MinimumTimeMet {
		remaining := s.settings.MinimumEngagement - now.Sub(sess.StartedAt)
		v.SecondsRemaining = int(remaining.Seconds() + 0.999)
	}

	partner, err := s.users.GetByID(ctx, partnerID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to load partner profile")
	} else {
		v.PartnerProfile = partner.Preview(asFriend)
	}
	return v
}

func whoAsked(requester *string, viewerID string) string {
	switch {
	case requester == nil:
		return ""
	case *requester == viewerID:
		return "you"
	default:
		return "partner"
	}
}

// AddMessage appends a message and pushes it to the counterpart
func (s *SessionService) AddMessage(ctx context.Context, sessionID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewInvalidArgument("text", "required")
	}
	if len([]rune(text)) > s.settings.MaxMessageLength {
		return nil, models.NewInvalidArgument("text", "too long")
	}

	sess, err := s.Get(ctx, sessionID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Text:      text,
		SentAt:    s.Now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}

	// The message itself goes to the room only; the counterpart's user
	// channel gets a notice so a client outside the room knows to join.
	notify(ctx, s.pub, SessionChannel(sessionID), EventNewMessage, map[string]any{
		"message":     msg,
		"sender_name": sess.DisplayNames[senderID],
	})
	notify(ctx, s.pub, UserChannel(sess.OtherUser(senderID)), EventMessageNotice, map[string]any{
		"session_id":  sessionID,
		"message_id":  msg.ID,
		"sender_name": sess.DisplayNames[senderID],
	})

	return msg, nil
}

// Messages returns the visible history of a session to a participant
func (s *SessionService) Messages(ctx context.Context, sessionID, userID string) ([]*models.Message, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListBySession(ctx, sessionID)
}

// RequestContinue records a wish to keep talking; two requests make a mutual match
func (s *SessionService) RequestContinue(ctx context.Context, sessionID, userID string) (ContinueOutcome, *models.ChatSession, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return "", nil, err
	}

	var outcome ContinueOutcome
	updated, err := s.sessions.Update(ctx, sessionID, func(cs *models.ChatSession) error {
		if !cs.IsActive {
			return models.ErrSessionInactive
		}
		other := cs.OtherUser(userID)
		if cs.ContinueRequestedBy != nil && *cs.ContinueRequestedBy == other {
			cs.ContinueRequestedBy = nil
			cs.MinimumTimeMet = true
			outcome = ContinueMutual
			return nil
		}
		cs.ContinueRequestedBy = models.StringPtr(userID)
		outcome = ContinueWaiting
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	if outcome == ContinueMutual {
		log.Info().Str("session_id", sessionID).Msg("Mutual continue agreed")
		s.publishUpdate(ctx, updated, SessionMinimumTimeMet, userID, nil)
	} else {
		s.publishUpdate(ctx, updated, SessionContinueRequested, userID, nil)
	}
	return outcome, updated, nil
}

// Leave ends the session when allowed, otherwise files an early-exit request
// the partner must answer. A friend session or one past the engagement window
// ends immediately, as does a leave while the partner is also asking to exit.
func (s *SessionService) Leave(ctx context.Context, sessionID, userID string) (LeaveOutcome, *models.ChatSession, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return "", nil, err
	}

	now := s.Now()
	var outcome LeaveOutcome
	updated, err := s.sessions.Update(ctx, sessionID, func(cs *models.ChatSession) error {
		if !cs.IsActive {
			return models.ErrSessionInactive
		}
		partnerWantsOut := cs.EarlyExitRequestedBy != nil && *cs.EarlyExitRequestedBy != userID
		if s.canLeaveFreely(cs, now) || partnerWantsOut {
			endSession(cs, now)
			outcome = LeaveEnded
			return nil
		}
		cs.EarlyExitRequestedBy = models.StringPtr(userID)
		outcome = LeaveApprovalRequired
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	if outcome == LeaveEnded {
		s.logEnded(updated, userID)
		s.publishUpdate(ctx, updated, SessionEnded, userID, nil)
	} else {
		log.Info().
			Str("session_id", sessionID).
			Str("user_id", userID).
			Msg("Early exit requested")
		s.publishUpdate(ctx, updated, SessionEarlyExitRequested, userID, nil)
	}
	return outcome, updated, nil
}

// RespondEarlyExit answers the partner's early-exit request. Approval ends the
// session without penalty; denial keeps it running and penalizes the requester.
// A denial and its penalty are stored together or not at all.
func (s *SessionService) RespondEarlyExit(ctx context.Context, sessionID, approverID string, approved bool) (*models.ChatSession, error) {
	if _, err := s.Get(ctx, sessionID, approverID); err != nil {
		return nil, err
	}

	now := s.Now()
	endsAt := s.penalties.EndsAt()
	var requesterID string
	updated, err := s.sessions.UpdateWithPenalty(ctx, sessionID, endsAt, func(cs *models.ChatSession) (string, error) {
		if !cs.IsActive {
			return "", models.ErrSessionInactive
		}
		if cs.EarlyExitRequestedBy == nil {
			return "", models.ErrAlreadyResolved
		}
		if *cs.EarlyExitRequestedBy == approverID {
			return "", models.NewInvalidArgument("action", "cannot answer your own exit request")
		}
		requesterID = cs.OtherUser(approverID)
		cs.EarlyExitRequestedBy = nil
		if approved {
			endSession(cs, now)
			return "", nil
		}
		return requesterID, nil
	})
	if err != nil {
		return nil, err
	}

	if approved {
		s.logEnded(updated, approverID)
		s.publishUpdate(ctx, updated, SessionEnded, approverID, map[string]any{"early_exit": true})
		return updated, nil
	}

	logPenalty(requesterID, endsAt)
	s.publishUpdate(ctx, updated, SessionEarlyExitDenied, approverID, map[string]any{
		"penalty_ends_at": endsAt,
	})
	return updated, nil
}

// RequestFriendship forwards a friend request from inside a session
func (s *SessionService) RequestFriendship(ctx context.Context, sessionID, userID string) (*models.FriendRequest, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	updated, err := s.sessions.Update(ctx, sessionID, func(cs *models.ChatSession) error {
		cs.FriendRequestedBy = models.StringPtr(userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fr, err := s.friends.Send(ctx, userID, updated.OtherUser(userID), &sessionID)
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, updated, SessionFriendRequested, userID, map[string]any{"request_id": fr.ID})
	return fr, nil
}

// EndBetween ends any active session shared by a and b
func (s *SessionService) EndBetween(ctx context.Context, a, b, actorID string) error {
	sess, err := s.sessions.GetActiveForUser(ctx, a)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get active session: %w", err)
	}
	if !sess.HasParticipant(b) {
		return nil
	}

	now := s.Now()
	updated, err := s.sessions.Update(ctx, sess.ID, func(cs *models.ChatSession) error {
		if !cs.IsActive {
			return models.ErrSessionInactive
		}
		endSession(cs, now)
		return nil
	})
	if errors.Is(err, models.ErrSessionInactive) {
		return nil
	}
	if err != nil {
		return err
	}

	s.logEnded(updated, actorID)
	s.publishUpdate(ctx, updated, SessionEnded, actorID, nil)
	return nil
}

func endSession(cs *models.ChatSession, now time.Time) {
	at := now
	cs.IsActive = false
	cs.EndedAt = &at
	cs.EarlyExitRequestedBy = nil
	cs.ContinueRequestedBy = nil
}

func (s *SessionService) logEnded(sess *models.ChatSession, actorID string) {
	log.Info().
		Str("session_id", sess.ID).
		Str("user_id", actorID).
		Bool("became_friends", sess.BecameFriends).
		Msg("Session ended")
}

func (s *SessionService) publishStarted(ctx context.Context, sess *models.ChatSession) {
	for _, userID := range []string{sess.UserAID, sess.UserBID} {
		notify(ctx, s.pub, UserChannel(userID), EventSessionUpdate, SessionUpdate{
			Type:      SessionStarted,
			SessionID: sess.ID,
			At:        sess.StartedAt,
		})
	}
}

// publishUpdate sends a session-update to the session room and to both users,
// so participants who have not joined the room still hear about it.
func (s *SessionService) publishUpdate(ctx context.Context, sess *models.ChatSession, typ, actorID string, detail any) {
	ev := SessionUpdate{
		Type:      typ,
		SessionID: sess.ID,
		Actor:     sess.DisplayNames[actorID],
		At:        s.Now(),
		Detail:    detail,
	}
	notify(ctx, s.pub, SessionChannel(sess.ID), EventSessionUpdate, ev)
	for _, userID := range []string{sess.UserAID, sess.UserBID} {
		notify(ctx, s.pub, UserChannel(userID), EventSessionUpdate, ev)
	}
}
