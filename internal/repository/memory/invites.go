package memory

import (
	"context"
	"time"

	"kindred-backend/internal/models"
)

// InviteRepository is the in-memory invite table
type InviteRepository struct {
	db *DB
}

// NewInviteRepository creates an invite repository over db
func NewInviteRepository(db *DB) *InviteRepository {
	return &InviteRepository{db: db}
}

// Create stores a new invite
func (r *InviteRepository) Create(ctx context.Context, inv *models.Invite) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.invites[inv.ID] = copyInvite(inv)
	r.db.inviteOrder = append(r.db.inviteOrder, inv.ID)
	return nil
}

// GetByID retrieves an invite by ID
func (r *InviteRepository) GetByID(ctx context.Context, id string) (*models.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	inv, ok := r.db.invites[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyInvite(inv), nil
}

// Accept accepts a live pending invite and cancels the other pending invites of both parties
func (r *InviteRepository) Accept(ctx context.Context, id string, now time.Time) (*models.Invite, []*models.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	inv, ok := r.db.invites[id]
	if !ok {
		return nil, nil, models.ErrNotFound
	}
	if inv.Status != models.InviteStatusPending {
		return nil, nil, models.ErrAlreadyResolved
	}
	if models.IsExpired(now, inv.ExpiresAt) {
		r.resolve(inv, models.InviteStatusExpired, now)
		return nil, nil, models.ErrExpired
	}

	var cancelled []*models.Invite
	for _, otherID := range r.db.inviteOrder {
		other := r.db.invites[otherID]
		if other.ID == id || other.Status != models.InviteStatusPending {
			continue
		}
		if !other.Involves(inv.SenderID) && !other.Involves(inv.ReceiverID) {
			continue
		}
		if models.IsExpired(now, other.ExpiresAt) {
			r.resolve(other, models.InviteStatusExpired, now)
			continue
		}
		r.resolve(other, models.InviteStatusCancelled, now)
		cancelled = append(cancelled, copyInvite(other))
	}

	r.resolve(inv, models.InviteStatusAccepted, now)
	return copyInvite(inv), cancelled, nil
}

// Resolve moves a live pending invite to status; an overdue one is marked expired
func (r *InviteRepository) Resolve(ctx context.Context, id string, status models.InviteStatus, now time.Time) (*models.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	inv, ok := r.db.invites[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if inv.Status != models.InviteStatusPending {
		return nil, models.ErrAlreadyResolved
	}
	if models.IsExpired(now, inv.ExpiresAt) {
		r.resolve(inv, models.InviteStatusExpired, now)
		return nil, models.ErrExpired
	}
	r.resolve(inv, status, now)
	return copyInvite(inv), nil
}

// CancelAllForUser cancels the live pending invites sent or received by userID
func (r *InviteRepository) CancelAllForUser(ctx context.Context, userID string, now time.Time) ([]*models.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.Invite
	for _, id := range r.db.inviteOrder {
		inv := r.db.invites[id]
		if inv.Status != models.InviteStatusPending || !inv.Involves(userID) {
			continue
		}
		if models.IsExpired(now, inv.ExpiresAt) {
			r.resolve(inv, models.InviteStatusExpired, now)
			continue
		}
		r.resolve(inv, models.InviteStatusCancelled, now)
		out = append(out, copyInvite(inv))
	}
	return out, nil
}

// CancelBetween cancels the live pending invites between a and b
func (r *InviteRepository) CancelBetween(ctx context.Context, a, b string, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, id := range r.db.inviteOrder {
		inv := r.db.invites[id]
		if inv.Status != models.InviteStatusPending || !inv.Involves(a) || !inv.Involves(b) {
			continue
		}
		if models.IsExpired(now, inv.ExpiresAt) {
			r.resolve(inv, models.InviteStatusExpired, now)
			continue
		}
		r.resolve(inv, models.InviteStatusCancelled, now)
		n++
	}
	return n, nil
}

// ListPending lists live pending invites in one direction, newest first
func (r *InviteRepository) ListPending(ctx context.Context, userID string, dir models.Direction, now time.Time) ([]*models.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.Invite
	for i := len(r.db.inviteOrder) - 1; i >= 0; i-- {
		inv := r.db.invites[r.db.inviteOrder[i]]
		if inv.EffectiveStatus(now) != models.InviteStatusPending {
			continue
		}
		if (dir == models.DirectionIncoming && inv.ReceiverID == userID) ||
			(dir == models.DirectionOutgoing && inv.SenderID == userID) {
			out = append(out, copyInvite(inv))
		}
	}
	return out, nil
}

// LatestPendingPrompt returns the prompt of the newest live invite sent by userID, or ""
func (r *InviteRepository) LatestPendingPrompt(ctx context.Context, userID string, now time.Time) (string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for i := len(r.db.inviteOrder) - 1; i >= 0; i-- {
		inv := r.db.invites[r.db.inviteOrder[i]]
		if inv.SenderID == userID && inv.EffectiveStatus(now) == models.InviteStatusPending {
			return inv.PromptText, nil
		}
	}
	return "", nil
}

// ExpireStale marks overdue pending invites expired
func (r *InviteRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, inv := range r.db.invites {
		if inv.Status == models.InviteStatusPending && models.IsExpired(now, inv.ExpiresAt) {
			r.resolve(inv, models.InviteStatusExpired, now)
			n++
		}
	}
	return n, nil
}

func (r *InviteRepository) resolve(inv *models.Invite, status models.InviteStatus, now time.Time) {
	at := now
	inv.Status = status
	inv.ResolvedAt = &at
}
