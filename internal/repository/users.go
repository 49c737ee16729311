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

const userColumns = `
	id, age, marital_status, employment, hobbies, location, has_baby,
	baby_birth_date, career_field, visibility, current_prompt, penalty_ends_at,
	push_token, created_at
`

// UserRepository handles database operations for user snapshots
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Put inserts or replaces a user's profile fields. Engine-owned columns
// (prompt, penalty, push token) are left untouched on conflict.
func (r *UserRepository) Put(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			age = EXCLUDED.age,
			marital_status = EXCLUDED.marital_status,
			employment = EXCLUDED.employment,
			hobbies = EXCLUDED.hobbies,
			location = EXCLUDED.location,
			has_baby = EXCLUDED.has_baby,
			baby_birth_date = EXCLUDED.baby_birth_date,
			career_field = EXCLUDED.career_field,
			visibility = EXCLUDED.visibility
	`
	hobbies := user.Hobbies
	if hobbies == nil {
		hobbies = []string{}
	}
	visibility := user.Visibility
	if visibility == nil {
		visibility = map[string]models.Visibility{}
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Age, user.MaritalStatus, user.Employment, hobbies, user.Location,
		user.HasBaby, user.BabyBirthDate, user.CareerField, visibility, user.CurrentPrompt,
		user.PenaltyEndsAt, user.PushToken, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListSeeking returns users with a non-empty prompt who are not penalized at now
func (r *UserRepository) ListSeeking(ctx context.Context, excludeID string, now time.Time) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE current_prompt IS NOT NULL AND current_prompt <> ''
			AND id <> $1
			AND (penalty_ends_at IS NULL OR penalty_ends_at <= $2)
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, excludeID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeking users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// SetCurrentPrompt sets or clears the user's prompt
func (r *UserRepository) SetCurrentPrompt(ctx context.Context, userID string, prompt *string) error {
	return r.exec(ctx, "set prompt", `UPDATE users SET current_prompt = $2 WHERE id = $1`, userID, prompt)
}

// SetPenalty sets the time the user's penalty lifts
func (r *UserRepository) SetPenalty(ctx context.Context, userID string, endsAt time.Time) error {
	return r.exec(ctx, "set penalty", `UPDATE users SET penalty_ends_at = $2 WHERE id = $1`, userID, endsAt)
}

// UpdatePushToken updates the APNs device token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	return r.exec(ctx, "update push token", `UPDATE users SET push_token = $2 WHERE id = $1`, userID, pushToken)
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Age, &user.MaritalStatus, &user.Employment, &user.Hobbies,
		&user.Location, &user.HasBaby, &user.BabyBirthDate, &user.CareerField,
		&user.Visibility, &user.CurrentPrompt, &user.PenaltyEndsAt, &user.PushToken,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
