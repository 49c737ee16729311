package repository

import (
	"context"
	"fmt"

	"kindred-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlockRepository handles database operations for blocks
type BlockRepository struct {
	db *pgxpool.Pool
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *pgxpool.Pool) *BlockRepository {
	return &BlockRepository{db: db}
}

// Create records a block; repeating it is a no-op
func (r *BlockRepository) Create(ctx context.Context, block *models.Block) error {
	query := `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, block.BlockerID, block.BlockedID, block.CreatedAt); err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}
	return nil
}

// Delete removes a block
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	query := `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`
	if _, err := r.db.Exec(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// IsBlocked checks for a block in either direction
func (r *BlockRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1)
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, a, b).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

// ListRelatedIDs returns everyone who blocks or is blocked by userID
func (r *BlockRepository) ListRelatedIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT blocked_id FROM blocks WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM blocks WHERE blocked_id = $1
		ORDER BY 1
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list related users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan related users: %w", err)
	}
	return ids, nil
}

// ListByBlocker returns the blocks placed by blockerID, newest first
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID string) ([]*models.Block, error) {
	query := `
		SELECT blocker_id, blocked_id, created_at
		FROM blocks
		WHERE blocker_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, blockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}
	return blocks, nil
}

// FriendshipRepository handles database operations for friendships
type FriendshipRepository struct {
	db *pgxpool.Pool
}

// NewFriendshipRepository creates a new friendship repository
func NewFriendshipRepository(db *pgxpool.Pool) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Create inserts the edge; false means the pair was already friends
func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) (bool, error) {
	a, b := models.CanonicalPair(f.UserAID, f.UserBID)
	query := `
		INSERT INTO friendships (user_a_id, user_b_id, origin_session_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_a_id, user_b_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, a, b, f.OriginSessionID, f.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create friendship: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Exists reports whether a and b are friends
func (r *FriendshipRepository) Exists(ctx context.Context, a, b string) (bool, error) {
	a, b = models.CanonicalPair(a, b)
	query := `SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a_id = $1 AND user_b_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, a, b).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// Delete removes the edge and soft-deletes the pair's friend-chat history
func (r *FriendshipRepository) Delete(ctx context.Context, a, b string) (bool, error) {
	a, b = models.CanonicalPair(a, b)

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `DELETE FROM friendships WHERE user_a_id = $1 AND user_b_id = $2`, a, b)
	if err != nil {
		return false, fmt.Errorf("failed to delete friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	query := `
		UPDATE messages SET is_deleted = TRUE
		WHERE session_id IN (
			SELECT id FROM chat_sessions
			WHERE type = 'friend'
				AND ((user_a_id = $1 AND user_b_id = $2) OR (user_a_id = $2 AND user_b_id = $1))
		)
	`
	if _, err := tx.Exec(ctx, query, a, b); err != nil {
		return false, fmt.Errorf("failed to hide friend history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListForUser returns the user's friendships, newest first
func (r *FriendshipRepository) ListForUser(ctx context.Context, userID string) ([]*models.Friendship, error) {
	query := `
		SELECT user_a_id, user_b_id, origin_session_id, created_at
		FROM friendships
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	defer rows.Close()

	var friendships []*models.Friendship
	for rows.Next() {
		var f models.Friendship
		if err := rows.Scan(&f.UserAID, &f.UserBID, &f.OriginSessionID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		friendships = append(friendships, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friendships: %w", err)
	}
	return friendships, nil
}
