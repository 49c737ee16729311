package services

import (
	"context"
	"fmt"
	"time"

	"kindred-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FriendRequestService runs the consent handshake that ends in a friendship
type FriendRequestService struct {
	requests    FriendRequestStore
	friendships FriendshipStore
	sessions    SessionStore
	blocks      BlockStore
	users       UserStore
	pub         Publisher
	Now         func() time.Time
}

// NewFriendRequestService creates a new friend request service
func NewFriendRequestService(
	requests FriendRequestStore,
	friendships FriendshipStore,
	sessions SessionStore,
	blocks BlockStore,
	users UserStore,
	pub Publisher,
) *FriendRequestService {
	return &FriendRequestService{
		requests:    requests,
		friendships: friendships,
		sessions:    sessions,
		blocks:      blocks,
		users:       users,
		pub:         pub,
		Now:         time.Now,
	}
}

// Send files a friend request. A pending request between the pair in either
// direction is returned instead of creating a duplicate.
func (s *FriendRequestService) Send(ctx context.Context, senderID, receiverID string, originSessionID *string) (*models.FriendRequest, error) {
	if senderID == receiverID {
		return nil, models.NewInvalidArgument("receiver_id", "cannot befriend yourself")
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}

	friends, err := s.friendships.Exists(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if friends {
		return nil, models.ErrConflict
	}

	blocked, err := s.blocks.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block: %w", err)
	}

	fr, created, err := s.requests.CreateOrGetPending(ctx, &models.FriendRequest{
		ID:              uuid.New().String(),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		OriginSessionID: originSessionID,
		Status:          models.FriendRequestPending,
		CreatedAt:       s.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}
	if !created {
		return fr, nil
	}

	log.Info().
		Str("request_id", fr.ID).
		Str("sender_id", senderID).
		Bool("blocked", blocked).
		Msg("Friend request sent")

	// A blocked receiver never hears about it
	if !blocked {
		notify(ctx, s.pub, UserChannel(receiverID), EventFriendRequestReceived, fr)
	}
	return fr, nil
}

// Accept resolves the request, creates the friendship and converts the
// originating session so its history survives.
func (s *FriendRequestService) Accept(ctx context.Context, requestID, actorID string) (*models.FriendRequest, error) {
	fr, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if fr.ReceiverID != actorID {
		return nil, models.ErrUnauthorized
	}
	blocked, err := s.blocks.IsBlocked(ctx, fr.SenderID, fr.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block: %w", err)
	}
	if blocked {
		return nil, models.ErrUnauthorized
	}

	now := s.Now()
	fr, err = s.requests.Resolve(ctx, requestID, models.FriendRequestAccepted, now)
	if err != nil {
		return nil, err
	}

	a, b := models.CanonicalPair(fr.SenderID, fr.ReceiverID)
	if _, err := s.friendships.Create(ctx, &models.Friendship{
		UserAID:         a,
		UserBID:         b,
		OriginSessionID: fr.OriginSessionID,
		CreatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("failed to create friendship: %w", err)
	}

	log.Info().
		Str("request_id", fr.ID).
		Str("user_a_id", a).
		Str("user_b_id", b).
		Msg("Friendship created")

	notify(ctx, s.pub, UserChannel(fr.SenderID), EventFriendRequestAccepted, fr)

	if fr.OriginSessionID != nil {
		sess, err := s.sessions.MarkFriends(ctx, *fr.OriginSessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to convert session: %w", err)
		}
		ev := SessionUpdate{Type: SessionBecameFriends, SessionID: sess.ID, At: now}
		notify(ctx, s.pub, SessionChannel(sess.ID), EventSessionUpdate, ev)
		for _, userID := range []string{sess.UserAID, sess.UserBID} {
			notify(ctx, s.pub, UserChannel(userID), EventSessionUpdate, ev)
		}
	}

	return fr, nil
}

// Decline resolves the request without creating a friendship
func (s *FriendRequestService) Decline(ctx context.Context, requestID, actorID string) (*models.FriendRequest, error) {
	fr, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if fr.ReceiverID != actorID {
		return nil, models.ErrUnauthorized
	}
	return s.requests.Resolve(ctx, requestID, models.FriendRequestDeclined, s.Now())
}

// ListPending lists pending requests; incoming ones from blocked users are hidden
func (s *FriendRequestService) ListPending(ctx context.Context, userID string, dir models.Direction) ([]*models.FriendRequest, error) {
	requests, err := s.requests.ListPending(ctx, userID, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	if dir != models.DirectionIncoming {
		return requests, nil
	}

	related, err := relatedSet(ctx, s.blocks, userID)
	if err != nil {
		return nil, err
	}
	out := requests[:0]
	for _, fr := range requests {
		if !related[fr.SenderID] {
			out = append(out, fr)
		}
	}
	return out, nil
}

// relatedSet returns every user with a block in either direction with userID
func relatedSet(ctx context.Context, blocks BlockStore, userID string) (map[string]bool, error) {
	ids, err := blocks.ListRelatedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
