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

const sessionColumns = `
	id, user_a_id, user_b_id, display_names, type, prompt_text, started_at, ended_at,
	minimum_time_met, is_active, became_friends, early_exit_requested_by,
	continue_requested_by, friend_requested_by
`

// SessionRepository handles database operations for chat sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts an active session. The active_participants primary key
// rejects a second active session for either user with ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, s *models.ChatSession) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO chat_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if _, err := tx.Exec(ctx, query,
		s.ID, s.UserAID, s.UserBID, s.DisplayNames, s.Type, s.PromptText, s.StartedAt,
		s.EndedAt, s.MinimumTimeMet, s.IsActive, s.BecameFriends, s.EarlyExitRequestedBy,
		s.ContinueRequestedBy, s.FriendRequestedBy,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	participants := `INSERT INTO active_participants (user_id, session_id) VALUES ($1, $3), ($2, $3)`
	if _, err := tx.Exec(ctx, participants, s.UserAID, s.UserBID, s.ID); err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to register participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ChatSession, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id)
}

// GetActiveForUser retrieves the user's active session
func (r *SessionRepository) GetActiveForUser(ctx context.Context, userID string) (*models.ChatSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE id = (SELECT session_id FROM active_participants WHERE user_id = $1)
	`
	return r.getOne(ctx, query, userID)
}

// GetActiveFriendSession retrieves the active friend session between a and b
func (r *SessionRepository) GetActiveFriendSession(ctx context.Context, a, b string) (*models.ChatSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE is_active AND type = 'friend'
			AND ((user_a_id = $1 AND user_b_id = $2) OR (user_a_id = $2 AND user_b_id = $1))
		ORDER BY started_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, a, b)
}

// LatestActivePrompt returns the prompt of the user's newest active session, or ""
func (r *SessionRepository) LatestActivePrompt(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT prompt_text FROM chat_sessions
		WHERE is_active AND prompt_text IS NOT NULL AND (user_a_id = $1 OR user_b_id = $1)
		ORDER BY started_at DESC
		LIMIT 1
	`
	var prompt string
	err := r.db.QueryRow(ctx, query, userID).Scan(&prompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session prompt: %w", err)
	}
	return prompt, nil
}

// Update locks the row, applies fn and saves the result. Ending a session
// frees its participants and hides anonymous history.
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(s *models.ChatSession) error) (*models.ChatSession, error) {
	return r.update(ctx, id, time.Time{}, func(s *models.ChatSession) (string, error) {
		return "", fn(s)
	})
}

// UpdateWithPenalty is Update that also sets penalty_ends_at of the user fn
// names, in the same transaction. An empty name skips the penalty.
func (r *SessionRepository) UpdateWithPenalty(ctx context.Context, id string, endsAt time.Time, fn func(s *models.ChatSession) (string, error)) (*models.ChatSession, error) {
	return r.update(ctx, id, endsAt, fn)
}

func (r *SessionRepository) update(ctx context.Context, id string, endsAt time.Time, fn func(s *models.ChatSession) (string, error)) (*models.ChatSession, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	next := current.Clone()
	penalized, err := fn(next)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE chat_sessions SET
			type = $2, ended_at = $3, minimum_time_met = $4, is_active = $5,
			became_friends = $6, early_exit_requested_by = $7,
			continue_requested_by = $8, friend_requested_by = $9
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		id, next.Type, next.EndedAt, next.MinimumTimeMet, next.IsActive, next.BecameFriends,
		next.EarlyExitRequestedBy, next.ContinueRequestedBy, next.FriendRequestedBy,
	); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	if penalized != "" {
		result, err := tx.Exec(ctx, `UPDATE users SET penalty_ends_at = $2 WHERE id = $1`, penalized, endsAt)
		if err != nil {
			return nil, fmt.Errorf("failed to set penalty: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil, models.ErrNotFound
		}
	}

	if current.IsActive && !next.IsActive {
		if _, err := tx.Exec(ctx, `DELETE FROM active_participants WHERE session_id = $1`, id); err != nil {
			return nil, fmt.Errorf("failed to release participants: %w", err)
		}
		if !next.RetainsHistory() {
			if err := setMessagesDeleted(ctx, tx, id, true); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// MarkFriends converts the session to a friend session and restores its history
func (r *SessionRepository) MarkFriends(ctx context.Context, id string) (*models.ChatSession, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE chat_sessions SET type = 'friend', became_friends = TRUE
		WHERE id = $1
		RETURNING ` + sessionColumns
	s, err := scanSession(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark session: %w", err)
	}
	if err := setMessagesDeleted(ctx, tx, id, false); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, args ...any) (*models.ChatSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func setMessagesDeleted(ctx context.Context, tx pgx.Tx, sessionID string, deleted bool) error {
	if _, err := tx.Exec(ctx, `UPDATE messages SET is_deleted = $2 WHERE session_id = $1`, sessionID, deleted); err != nil {
		return fmt.Errorf("failed to update message visibility: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.ChatSession, error) {
	var s models.ChatSession
	err := row.Scan(
		&s.ID, &s.UserAID, &s.UserBID, &s.DisplayNames, &s.Type, &s.PromptText, &s.StartedAt,
		&s.EndedAt, &s.MinimumTimeMet, &s.IsActive, &s.BecameFriends, &s.EarlyExitRequestedBy,
		&s.ContinueRequestedBy, &s.FriendRequestedBy,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a message while holding a share lock on an active session
func (r *MessageRepository) Append(ctx context.Context, m *models.Message) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active bool
	err = tx.QueryRow(ctx, `SELECT is_active FROM chat_sessions WHERE id = $1 FOR SHARE`, m.SessionID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to get session: %w", err)
	}
	if !active {
		return models.ErrSessionInactive
	}

	query := `
		INSERT INTO messages (id, session_id, sender_id, text, sent_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`
	if _, err := tx.Exec(ctx, query, m.ID, m.SessionID, m.SenderID, m.Text, m.SentAt); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListBySession returns the visible messages of a session, oldest first
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	query := `
		SELECT id, session_id, sender_id, text, sent_at, is_deleted
		FROM messages
		WHERE session_id = $1 AND NOT is_deleted
		ORDER BY sent_at, id
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Text, &m.SentAt, &m.IsDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
