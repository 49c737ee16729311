package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kindred-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const friendRequestColumns = `id, sender_id, receiver_id, origin_session_id, status, created_at, resolved_at`

// FriendRequestRepository handles database operations for friend requests
type FriendRequestRepository struct {
	db *pgxpool.Pool
}

// NewFriendRequestRepository creates a new friend request repository
func NewFriendRequestRepository(db *pgxpool.Pool) *FriendRequestRepository {
	return &FriendRequestRepository{db: db}
}

// CreateOrGetPending inserts fr unless a pending request already links the
// pair, in which case the existing one is returned with created false.
func (r *FriendRequestRepository) CreateOrGetPending(ctx context.Context, fr *models.FriendRequest) (*models.FriendRequest, bool, error) {
	insert := `
		INSERT INTO friend_requests (` + friendRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING ` + friendRequestColumns
	created, err := scanFriendRequest(r.db.QueryRow(ctx, insert,
		fr.ID, fr.SenderID, fr.ReceiverID, fr.OriginSessionID, fr.Status, fr.CreatedAt, fr.ResolvedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create friend request: %w", err)
	}

	existing := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE status = 'pending'
			AND LEAST(sender_id, receiver_id) = LEAST($1, $2)
			AND GREATEST(sender_id, receiver_id) = GREATEST($1, $2)
	`
	pending, err := scanFriendRequest(r.db.QueryRow(ctx, existing, fr.SenderID, fr.ReceiverID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pending friend request: %w", err)
	}
	return pending, false, nil
}

// GetByID retrieves a friend request by ID
func (r *FriendRequestRepository) GetByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE id = $1`
	fr, err := scanFriendRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get friend request: %w", err)
	}
	return fr, nil
}

// Resolve moves a pending request to status; anything else is ErrAlreadyResolved
func (r *FriendRequestRepository) Resolve(ctx context.Context, id string, status models.FriendRequestStatus, now time.Time) (*models.FriendRequest, error) {
	query := `
		UPDATE friend_requests SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + friendRequestColumns
	fr, err := scanFriendRequest(r.db.QueryRow(ctx, query, id, status, now))
	if err == nil {
		return fr, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve friend request: %w", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, models.ErrAlreadyResolved
}

// ListPending lists pending requests in one direction, newest first
func (r *FriendRequestRepository) ListPending(ctx context.Context, userID string, dir models.Direction) ([]*models.FriendRequest, error) {
	column := "receiver_id"
	if dir == models.DirectionOutgoing {
		column = "sender_id"
	}
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE ` + column + ` = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.FriendRequest
	for rows.Next() {
		fr, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend requests: %w", err)
	}
	return requests, nil
}

func scanFriendRequest(row pgx.Row) (*models.FriendRequest, error) {
	var fr models.FriendRequest
	err := row.Scan(
		&fr.ID, &fr.SenderID, &fr.ReceiverID, &fr.OriginSessionID, &fr.Status,
		&fr.CreatedAt, &fr.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}
