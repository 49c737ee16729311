package memory

import (
	"context"
	"sort"

	"kindred-backend/internal/models"
)

// BlockRepository is the in-memory block table
type BlockRepository struct {
	db *DB
}

// NewBlockRepository creates a block repository over db
func NewBlockRepository(db *DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Create records a block; blocking twice is a no-op
func (r *BlockRepository) Create(ctx context.Context, block *models.Block) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := blockKey{blocker: block.BlockerID, blocked: block.BlockedID}
	if _, ok := r.db.blocks[key]; ok {
		return nil
	}
	c := *block
	r.db.blocks[key] = &c
	return nil
}

// Delete removes a block placed by blockerID
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.blocks, blockKey{blocker: blockerID, blocked: blockedID})
	return nil
}

// IsBlocked checks for a block in either direction
func (r *BlockRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, ab := r.db.blocks[blockKey{blocker: a, blocked: b}]
	_, ba := r.db.blocks[blockKey{blocker: b, blocked: a}]
	return ab || ba, nil
}

// ListRelatedIDs returns every user with a block in either direction with userID
func (r *BlockRepository) ListRelatedIDs(ctx context.Context, userID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for key := range r.db.blocks {
		var other string
		switch userID {
		case key.blocker:
			other = key.blocked
		case key.blocked:
			other = key.blocker
		default:
			continue
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	sort.Strings(out)
	return out, nil
}

// ListByBlocker lists the blocks placed by blockerID
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID string) ([]*models.Block, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.Block
	for key, b := range r.db.blocks {
		if key.blocker == blockerID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FriendshipRepository is the in-memory friendship table
type FriendshipRepository struct {
	db *DB
}

// NewFriendshipRepository creates a friendship repository over db
func NewFriendshipRepository(db *DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Create stores the friendship under its canonical pair; false if it already existed
func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := newPairKey(f.UserAID, f.UserBID)
	if _, ok := r.db.friendships[key]; ok {
		return false, nil
	}
	c := *f
	c.UserAID, c.UserBID = key.a, key.b
	r.db.friendships[key] = &c
	return true, nil
}

// Exists reports whether a and b are friends
func (r *FriendshipRepository) Exists(ctx context.Context, a, b string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, ok := r.db.friendships[newPairKey(a, b)]
	return ok, nil
}

// Delete removes the friendship and hides friend-session history between the pair
func (r *FriendshipRepository) Delete(ctx context.Context, a, b string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := newPairKey(a, b)
	if _, ok := r.db.friendships[key]; !ok {
		return false, nil
	}
	delete(r.db.friendships, key)

	for id, s := range r.db.sessions {
		if s.Type == models.SessionTypeFriend && newPairKey(s.UserAID, s.UserBID) == key {
			r.db.softDeleteMessages(id, true)
		}
	}
	return true, nil
}

// ListForUser lists the friendships userID belongs to
func (r *FriendshipRepository) ListForUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.Friendship
	for key, f := range r.db.friendships {
		if key.a == userID || key.b == userID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
