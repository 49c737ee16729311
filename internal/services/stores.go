package services

import (
	"context"
	"time"

	"kindred-backend/internal/models"
)

// UserStore reads user snapshots and writes the few fields the engine owns
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// ListSeeking returns users holding a non-empty prompt who are not penalized at now
	ListSeeking(ctx context.Context, excludeID string, now time.Time) ([]*models.User, error)
	SetCurrentPrompt(ctx context.Context, userID string, prompt *string) error
	SetPenalty(ctx context.Context, userID string, endsAt time.Time) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// BlockStore persists blocks
type BlockStore interface {
	// Create is an idempotent upsert
	Create(ctx context.Context, block *models.Block) error
	Delete(ctx context.Context, blockerID, blockedID string) error
	// IsBlocked checks both directions
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	// ListRelatedIDs returns every user who blocks or is blocked by userID
	ListRelatedIDs(ctx context.Context, userID string) ([]string, error)
	ListByBlocker(ctx context.Context, blockerID string) ([]*models.Block, error)
}

// FriendshipStore persists undirected friendships
type FriendshipStore interface {
	// Create returns false when the pair is already friends
	Create(ctx context.Context, f *models.Friendship) (bool, error)
	Exists(ctx context.Context, a, b string) (bool, error)
	// Delete removes the edge and soft-deletes friend-type history between the pair
	Delete(ctx context.Context, a, b string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Friendship, error)
}

// InviteStore persists invites. Every status change is a compare-and-swap on pending.
type InviteStore interface {
	Create(ctx context.Context, inv *models.Invite) error
	GetByID(ctx context.Context, id string) (*models.Invite, error)
	// Accept marks the invite accepted and, in the same transaction, cancels
	// every other pending invite touching either party. The cancelled invites
	// are returned. An invite past its deadline is marked expired and ErrExpired
	// is returned.
	Accept(ctx context.Context, id string, now time.Time) (*models.Invite, []*models.Invite, error)
	// Resolve moves a single pending invite to a terminal status
	Resolve(ctx context.Context, id string, status models.InviteStatus, now time.Time) (*models.Invite, error)
	// CancelAllForUser cancels pending invites sent or received by userID
	CancelAllForUser(ctx context.Context, userID string, now time.Time) ([]*models.Invite, error)
	CancelBetween(ctx context.Context, a, b string, now time.Time) (int64, error)
	ListPending(ctx context.Context, userID string, dir models.Direction, now time.Time) ([]*models.Invite, error)
	// LatestPendingPrompt returns the prompt of the user's newest live outgoing invite, or ""
	LatestPendingPrompt(ctx context.Context, userID string, now time.Time) (string, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore persists chat sessions
type SessionStore interface {
	// Create inserts an active session only if neither participant already
	// has one; otherwise ErrConflict.
	Create(ctx context.Context, s *models.ChatSession) error
	GetByID(ctx context.Context, id string) (*models.ChatSession, error)
	GetActiveForUser(ctx context.Context, userID string) (*models.ChatSession, error)
	GetActiveFriendSession(ctx context.Context, a, b string) (*models.ChatSession, error)
	// LatestActivePrompt returns the prompt of the user's newest active session, or ""
	LatestActivePrompt(ctx context.Context, userID string) (string, error)
	// Update applies fn to the locked row and saves the result atomically.
	// When fn ends a session that did not become a friendship, its messages
	// are soft-deleted in the same transaction.
	Update(ctx context.Context, id string, fn func(s *models.ChatSession) error) (*models.ChatSession, error)
	// UpdateWithPenalty is Update that, in the same transaction, sets the
	// penalty of the user fn returns to endsAt. An empty id sets nothing.
	UpdateWithPenalty(ctx context.Context, id string, endsAt time.Time, fn func(s *models.ChatSession) (string, error)) (*models.ChatSession, error)
	// MarkFriends flips the session to friend type and restores its messages
	MarkFriends(ctx context.Context, id string) (*models.ChatSession, error)
}

// MessageStore persists chat messages
type MessageStore interface {
	// Append inserts the message if its session exists and is active
	Append(ctx context.Context, m *models.Message) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

// FriendRequestStore persists friend requests
type FriendRequestStore interface {
	// CreateOrGetPending returns an existing pending request between the
	// unordered pair instead of inserting a duplicate.
	CreateOrGetPending(ctx context.Context, fr *models.FriendRequest) (*models.FriendRequest, bool, error)
	GetByID(ctx context.Context, id string) (*models.FriendRequest, error)
	Resolve(ctx context.Context, id string, status models.FriendRequestStatus, now time.Time) (*models.FriendRequest, error)
	ListPending(ctx context.Context, userID string, dir models.Direction) ([]*models.FriendRequest, error)
}
