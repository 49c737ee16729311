package services

import (
	"context"
	"fmt"
	"time"

	"kindred-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// FriendView is a friend as listed to the user
type FriendView struct {
	UserID          string                `json:"user_id"`
	Profile         models.ProfilePreview `json:"profile"`
	OriginSessionID *string               `json:"origin_session_id,omitempty"`
	Since           time.Time             `json:"since"`
}

// DirectoryService manages blocks and friendships
type DirectoryService struct {
	blocks      BlockStore
	friendships FriendshipStore
	invites     InviteStore
	users       UserStore
	sessions    *SessionService
	Now         func() time.Time
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(
	blocks BlockStore,
	friendships FriendshipStore,
	invites InviteStore,
	users UserStore,
	sessions *SessionService,
) *DirectoryService {
	return &DirectoryService{
		blocks:      blocks,
		friendships: friendships,
		invites:     invites,
		users:       users,
		sessions:    sessions,
		Now:         time.Now,
	}
}

// IsBlocked reports whether either user blocks the other
func (s *DirectoryService) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	return s.blocks.IsBlocked(ctx, a, b)
}

// AreFriends reports whether a friendship edge exists
func (s *DirectoryService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return s.friendships.Exists(ctx, a, b)
}

// Block records a block and severs every live connection between the pair:
// the friendship, any active session and pending invites.
func (s *DirectoryService) Block(ctx context.Context, blockerID, blockedID string) (*models.Block, error) {
	if blockerID == blockedID {
		return nil, models.NewInvalidArgument("user_id", "cannot block yourself")
	}
	if _, err := s.users.GetByID(ctx, blockedID); err != nil {
		return nil, err
	}

	now := s.Now()
	block := &models.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: now}
	if err := s.blocks.Create(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}

	if _, err := s.friendships.Delete(ctx, blockerID, blockedID); err != nil {
		return nil, fmt.Errorf("failed to remove friendship: %w", err)
	}
	if err := s.sessions.EndBetween(ctx, blockerID, blockedID, blockerID); err != nil {
		return nil, err
	}
	cancelled, err := s.invites.CancelBetween(ctx, blockerID, blockedID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel invites: %w", err)
	}

	log.Info().
		Str("blocker_id", blockerID).
		Str("blocked_id", blockedID).
		Int64("invites_cancelled", cancelled).
		Msg("User blocked")

	return block, nil
}

// Unblock removes a block placed by blockerID
func (s *DirectoryService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.blocks.Delete(ctx, blockerID, blockedID); err != nil {
		return err
	}
	log.Info().
		Str("blocker_id", blockerID).
		Str("blocked_id", blockedID).
		Msg("User unblocked")
	return nil
}

// ListBlocks lists the blocks placed by blockerID
func (s *DirectoryService) ListBlocks(ctx context.Context, blockerID string) ([]*models.Block, error) {
	return s.blocks.ListByBlocker(ctx, blockerID)
}

// ListFriends returns the user's friends with friend-visible profiles
func (s *DirectoryService) ListFriends(ctx context.Context, userID string) ([]FriendView, error) {
	friendships, err := s.friendships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}

	views := make([]FriendView, 0, len(friendships))
	for _, f := range friendships {
		friendID := f.OtherUser(userID)
		friend, err := s.users.GetByID(ctx, friendID)
		if err != nil {
			log.Warn().Err(err).Str("friend_id", friendID).Msg("Skipping friend without profile")
			continue
		}
		views = append(views, FriendView{
			UserID:          friendID,
			Profile:         friend.Preview(true),
			OriginSessionID: f.OriginSessionID,
			Since:           f.CreatedAt,
		})
	}
	return views, nil
}

// Unfriend removes the friendship, hides friend chat history and ends any
// active session between the pair.
func (s *DirectoryService) Unfriend(ctx context.Context, userID, friendID string) error {
	existed, err := s.friendships.Delete(ctx, userID, friendID)
	if err != nil {
		return fmt.Errorf("failed to remove friendship: %w", err)
	}
	if !existed {
		return models.ErrNotFound
	}

	if err := s.sessions.EndBetween(ctx, userID, friendID, userID); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID).
		Str("friend_id", friendID).
		Msg("Friendship removed")
	return nil
}
