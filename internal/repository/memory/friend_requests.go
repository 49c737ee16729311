package memory

import (
	"context"
	"time"

	"kindred-backend/internal/models"
)

// FriendRequestRepository is the in-memory friend request table
type FriendRequestRepository struct {
	db *DB
}

// NewFriendRequestRepository creates a friend request repository over db
func NewFriendRequestRepository(db *DB) *FriendRequestRepository {
	return &FriendRequestRepository{db: db}
}

// CreateOrGetPending returns the pending request between the pair, creating fr if there is none
func (r *FriendRequestRepository) CreateOrGetPending(ctx context.Context, fr *models.FriendRequest) (*models.FriendRequest, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := newPairKey(fr.SenderID, fr.ReceiverID)
	for _, id := range r.db.requestOrder {
		existing := r.db.friendRequests[id]
		if existing.Status == models.FriendRequestPending && newPairKey(existing.SenderID, existing.ReceiverID) == key {
			return copyRequest(existing), false, nil
		}
	}

	r.db.friendRequests[fr.ID] = copyRequest(fr)
	r.db.requestOrder = append(r.db.requestOrder, fr.ID)
	return copyRequest(fr), true, nil
}

// GetByID retrieves a friend request by ID
func (r *FriendRequestRepository) GetByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	fr, ok := r.db.friendRequests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyRequest(fr), nil
}

// Resolve moves a pending request to a terminal status
func (r *FriendRequestRepository) Resolve(ctx context.Context, id string, status models.FriendRequestStatus, now time.Time) (*models.FriendRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	fr, ok := r.db.friendRequests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if fr.Status != models.FriendRequestPending {
		return nil, models.ErrAlreadyResolved
	}
	at := now
	fr.Status = status
	fr.ResolvedAt = &at
	return copyRequest(fr), nil
}

// ListPending lists pending requests in one direction, newest first
func (r *FriendRequestRepository) ListPending(ctx context.Context, userID string, dir models.Direction) ([]*models.FriendRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.FriendRequest
	for i := len(r.db.requestOrder) - 1; i >= 0; i-- {
		fr := r.db.friendRequests[r.db.requestOrder[i]]
		if fr.Status != models.FriendRequestPending {
			continue
		}
		if (dir == models.DirectionIncoming && fr.ReceiverID == userID) ||
			(dir == models.DirectionOutgoing && fr.SenderID == userID) {
			out = append(out, copyRequest(fr))
		}
	}
	return out, nil
}
