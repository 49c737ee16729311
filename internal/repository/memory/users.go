package memory

import (
	"context"
	"sort"
	"time"

	"kindred-backend/internal/models"
)

// UserRepository is the in-memory user table
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository over db
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Put inserts or replaces a user snapshot
func (r *UserRepository) Put(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c := *user
	r.db.users[user.ID] = &c
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

// ListSeeking lists unpenalized users with a current prompt, excluding excludeID
func (r *UserRepository) ListSeeking(ctx context.Context, excludeID string, now time.Time) ([]*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*models.User
	for _, u := range r.db.users {
		if u.ID == excludeID || !u.IsSeeking() || u.IsPenalized(now) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetCurrentPrompt sets or clears the user's prompt
func (r *UserRepository) SetCurrentPrompt(ctx context.Context, userID string, prompt *string) error {
	return r.update(userID, func(u *models.User) { u.CurrentPrompt = prompt })
}

// SetPenalty sets the time the user's penalty lifts
func (r *UserRepository) SetPenalty(ctx context.Context, userID string, endsAt time.Time) error {
	return r.update(userID, func(u *models.User) { u.PenaltyEndsAt = &endsAt })
}

// UpdatePushToken updates the APNs device token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	return r.update(userID, func(u *models.User) { u.PushToken = pushToken })
}

func (r *UserRepository) update(userID string, fn func(u *models.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	c := *u
	fn(&c)
	r.db.users[userID] = &c
	return nil
}
