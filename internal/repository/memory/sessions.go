package memory

import (
	"context"
	"time"

	"kindred-backend/internal/models"
)

// SessionRepository is the in-memory chat session table
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a session repository over db
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores an active session unless either participant already has one
func (r *SessionRepository) Create(ctx context.Context, s *models.ChatSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.activeFor(s.UserAID) != nil || r.activeFor(s.UserBID) != nil {
		return models.ErrConflict
	}
	r.db.sessions[s.ID] = s.Clone()
	r.db.sessionOrder = append(r.db.sessionOrder, s.ID)
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.Clone(), nil
}

// GetActiveForUser retrieves the user's active session
func (r *SessionRepository) GetActiveForUser(ctx context.Context, userID string) (*models.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s := r.activeFor(userID)
	if s == nil {
		return nil, models.ErrNotFound
	}
	return s.Clone(), nil
}

// GetActiveFriendSession retrieves the active friend session between a and b
func (r *SessionRepository) GetActiveFriendSession(ctx context.Context, a, b string) (*models.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := newPairKey(a, b)
	for _, id := range r.db.sessionOrder {
		s := r.db.sessions[id]
		if s.IsActive && s.Type == models.SessionTypeFriend && newPairKey(s.UserAID, s.UserBID) == key {
			return s.Clone(), nil
		}
	}
	return nil, models.ErrNotFound
}

// LatestActivePrompt returns the prompt of the user's newest active session, or ""
func (r *SessionRepository) LatestActivePrompt(ctx context.Context, userID string) (string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for i := len(r.db.sessionOrder) - 1; i >= 0; i-- {
		s := r.db.sessions[r.db.sessionOrder[i]]
		if s.IsActive && s.HasParticipant(userID) && s.PromptText != nil {
			return *s.PromptText, nil
		}
	}
	return "", nil
}

// Update applies fn to a copy of the session and stores it if fn succeeds
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(s *models.ChatSession) error) (*models.ChatSession, error) {
	return r.UpdateWithPenalty(ctx, id, time.Time{}, func(s *models.ChatSession) (string, error) {
		return "", fn(s)
	})
}

// UpdateWithPenalty is Update that also penalizes the user fn names until
// endsAt. Nothing is stored unless both writes can be made.
func (r *SessionRepository) UpdateWithPenalty(ctx context.Context, id string, endsAt time.Time, fn func(s *models.ChatSession) (string, error)) (*models.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	next := current.Clone()
	penalized, err := fn(next)
	if err != nil {
		return nil, err
	}
	if penalized != "" {
		u, ok := r.db.users[penalized]
		if !ok {
			return nil, models.ErrNotFound
		}
		c := *u
		c.PenaltyEndsAt = &endsAt
		r.db.users[penalized] = &c
	}

	r.db.sessions[id] = next
	if current.IsActive && !next.IsActive && !next.RetainsHistory() {
		r.db.softDeleteMessages(id, true)
	}
	return next.Clone(), nil
}

// MarkFriends converts the session to a friend session and restores its history
func (r *SessionRepository) MarkFriends(ctx context.Context, id string) (*models.ChatSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.Type = models.SessionTypeFriend
	s.BecameFriends = true
	r.db.softDeleteMessages(id, false)
	return s.Clone(), nil
}

func (r *SessionRepository) activeFor(userID string) *models.ChatSession {
	for _, s := range r.db.sessions {
		if s.IsActive && s.HasParticipant(userID) {
			return s
		}
	}
	return nil
}

// MessageRepository is the in-memory message table
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a message repository over db
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores a message if its session is active
func (r *MessageRepository) Append(ctx context.Context, m *models.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[m.SessionID]
	if !ok {
		return models.ErrNotFound
	}
	if !s.IsActive {
		return models.ErrSessionInactive
	}
	c := *m
	r.db.messages[m.SessionID] = append(r.db.messages[m.SessionID], &c)
	return nil
}

// ListBySession lists the visible messages of a session in send order
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.Message
	for _, m := range r.db.messages[sessionID] {
		if m.IsDeleted {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

// ListAll returns every message of a session including soft-deleted ones
func (r *MessageRepository) ListAll(sessionID string) []*models.Message {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]*models.Message, 0, len(r.db.messages[sessionID]))
	for _, m := range r.db.messages[sessionID] {
		c := *m
		out = append(out, &c)
	}
	return out
}
