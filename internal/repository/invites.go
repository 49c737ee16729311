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

const inviteColumns = `id, sender_id, receiver_id, prompt_text, status, created_at, expires_at, resolved_at`

// InviteRepository handles database operations for invites
type InviteRepository struct {
	db *pgxpool.Pool
}

// NewInviteRepository creates a new invite repository
func NewInviteRepository(db *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{db: db}
}

// Create creates a new invite
func (r *InviteRepository) Create(ctx context.Context, inv *models.Invite) error {
	query := `
		INSERT INTO invites (` + inviteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		inv.ID, inv.SenderID, inv.ReceiverID, inv.PromptText, inv.Status,
		inv.CreatedAt, inv.ExpiresAt, inv.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// GetByID retrieves an invite by ID
func (r *InviteRepository) GetByID(ctx context.Context, id string) (*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE id = $1`
	inv, err := scanInvite(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

// Accept accepts the invite and cancels every other pending invite touching
// either party, all in one transaction. Pending invites of both parties are
// locked in id order first so concurrent accepts serialize instead of deadlocking.
func (r *InviteRepository) Accept(ctx context.Context, id string, now time.Time) (*models.Invite, []*models.Invite, error) {
	inv, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `
		SELECT id FROM invites
		WHERE status = 'pending'
			AND (sender_id IN ($1, $2) OR receiver_id IN ($1, $2))
		ORDER BY id
		FOR UPDATE
	`
	if _, err := tx.Exec(ctx, lockQuery, inv.SenderID, inv.ReceiverID); err != nil {
		return nil, nil, fmt.Errorf("failed to lock invites: %w", err)
	}

	inv, err = scanInvite(tx.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get invite: %w", err)
	}
	if inv.Status != models.InviteStatusPending {
		return nil, nil, models.ErrAlreadyResolved
	}
	if models.IsExpired(now, inv.ExpiresAt) {
		if err := setInviteStatus(ctx, tx, id, models.InviteStatusExpired, now); err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, nil, models.ErrExpired
	}

	if err := setInviteStatus(ctx, tx, id, models.InviteStatusAccepted, now); err != nil {
		return nil, nil, err
	}

	cancelQuery := `
		UPDATE invites
		SET status = CASE WHEN expires_at <= $4 THEN 'expired' ELSE 'cancelled' END,
			resolved_at = $4
		WHERE status = 'pending' AND id <> $1
			AND (sender_id IN ($2, $3) OR receiver_id IN ($2, $3))
		RETURNING ` + inviteColumns
	rows, err := tx.Query(ctx, cancelQuery, id, inv.SenderID, inv.ReceiverID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to cancel competing invites: %w", err)
	}
	cancelled, err := collectInvites(rows, models.InviteStatusCancelled)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	resolvedAt := now
	inv.Status = models.InviteStatusAccepted
	inv.ResolvedAt = &resolvedAt
	return inv, cancelled, nil
}

// Resolve moves a pending invite to status
func (r *InviteRepository) Resolve(ctx context.Context, id string, status models.InviteStatus, now time.Time) (*models.Invite, error) {
	query := `
		UPDATE invites SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending' AND expires_at > $3
		RETURNING ` + inviteColumns
	inv, err := scanInvite(r.db.QueryRow(ctx, query, id, status, now))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve invite: %w", err)
	}

	// Nothing updated: missing, already resolved or past its deadline
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.InviteStatusPending {
		return nil, models.ErrAlreadyResolved
	}
	expireQuery := `UPDATE invites SET status = 'expired', resolved_at = $2 WHERE id = $1 AND status = 'pending'`
	if _, err := r.db.Exec(ctx, expireQuery, id, now); err != nil {
		return nil, fmt.Errorf("failed to expire invite: %w", err)
	}
	return nil, models.ErrExpired
}

// CancelAllForUser cancels the live pending invites sent or received by userID
func (r *InviteRepository) CancelAllForUser(ctx context.Context, userID string, now time.Time) ([]*models.Invite, error) {
	query := `
		UPDATE invites
		SET status = CASE WHEN expires_at <= $2 THEN 'expired' ELSE 'cancelled' END,
			resolved_at = $2
		WHERE status = 'pending' AND (sender_id = $1 OR receiver_id = $1)
		RETURNING ` + inviteColumns
	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel invites: %w", err)
	}
	return collectInvites(rows, models.InviteStatusCancelled)
}

// CancelBetween cancels pending invites between a and b in either direction
func (r *InviteRepository) CancelBetween(ctx context.Context, a, b string, now time.Time) (int64, error) {
	query := `
		UPDATE invites SET status = 'cancelled', resolved_at = $3
		WHERE status = 'pending' AND expires_at > $3
			AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
	`
	result, err := r.db.Exec(ctx, query, a, b, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel invites: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListPending lists live pending invites, newest first
func (r *InviteRepository) ListPending(ctx context.Context, userID string, dir models.Direction, now time.Time) ([]*models.Invite, error) {
	column := "receiver_id"
	if dir == models.DirectionOutgoing {
		column = "sender_id"
	}
	query := `
		SELECT ` + inviteColumns + `
		FROM invites
		WHERE ` + column + ` = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return collectInvites(rows, "")
}

// LatestPendingPrompt returns the prompt of the newest live outgoing invite, or ""
func (r *InviteRepository) LatestPendingPrompt(ctx context.Context, userID string, now time.Time) (string, error) {
	query := `
		SELECT prompt_text FROM invites
		WHERE sender_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var prompt string
	err := r.db.QueryRow(ctx, query, userID, now).Scan(&prompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get pending prompt: %w", err)
	}
	return prompt, nil
}

// ExpireStale marks overdue pending invites expired
func (r *InviteRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE invites SET status = 'expired', resolved_at = $1 WHERE status = 'pending' AND expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invites: %w", err)
	}
	return result.RowsAffected(), nil
}

func setInviteStatus(ctx context.Context, tx pgx.Tx, id string, status models.InviteStatus, now time.Time) error {
	if _, err := tx.Exec(ctx, `UPDATE invites SET status = $2, resolved_at = $3 WHERE id = $1`, id, status, now); err != nil {
		return fmt.Errorf("failed to update invite: %w", err)
	}
	return nil
}

// collectInvites scans rows, keeping only those with status when it is set
func collectInvites(rows pgx.Rows, status models.InviteStatus) ([]*models.Invite, error) {
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		if status == "" || inv.Status == status {
			invites = append(invites, inv)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}
	return invites, nil
}

func scanInvite(row pgx.Row) (*models.Invite, error) {
	var inv models.Invite
	err := row.Scan(
		&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.PromptText, &inv.Status,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
