package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"kindred-backend/internal/models"
	"kindred-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDSNEnv names a disposable PostgreSQL database for these tests
const testDSNEnv = "KINDRED_TEST_DATABASE_DSN"

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx := context.Background()
	pool, err := repository.Open(ctx, dsn, 20)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, repository.Migrate(ctx, pool))
	return pool
}

// newUsers stores fresh users with unique ids so runs never collide
func newUsers(t *testing.T, pool *pgxpool.Pool, n int) []string {
	t.Helper()

	users := repository.NewUserRepository(pool)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "u-" + uuid.New().String()
		require.NoError(t, users.Put(context.Background(), &models.User{ID: ids[i], CreatedAt: time.Now()}))
	}
	return ids
}

func newInvite(t *testing.T, invites *repository.InviteRepository, sender, receiver string, now time.Time) *models.Invite {
	t.Helper()

	inv := &models.Invite{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		PromptText: "sleep training",
		Status:     models.InviteStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(2 * time.Minute),
	}
	require.NoError(t, invites.Create(context.Background(), inv))
	return inv
}

func newSession(a, b string, now time.Time) *models.ChatSession {
	prompt := "sleep training"
	return &models.ChatSession{
		ID:           uuid.New().String(),
		UserAID:      a,
		UserBID:      b,
		DisplayNames: map[string]string{a: "GoldenMaple21", b: "SilverHarbor64"},
		Type:         models.SessionTypeAnonymous,
		PromptText:   &prompt,
		StartedAt:    now,
		IsActive:     true,
	}
}

func TestPostgresConcurrentAcceptOfOneInvite(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	invites := repository.NewInviteRepository(pool)
	ids := newUsers(t, pool, 2)
	now := time.Now()
	inv := newInvite(t, invites, ids[0], ids[1], now)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = invites.Accept(ctx, inv.ID, now)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, wins)

	stored, err := invites.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusAccepted, stored.Status)
}

func TestPostgresCompetingInvitesForOneReceiver(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	invites := repository.NewInviteRepository(pool)
	ids := newUsers(t, pool, 3)
	now := time.Now()
	first := newInvite(t, invites, ids[0], ids[2], now)
	second := newInvite(t, invites, ids[1], ids[2], now)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, inv := range []*models.Invite{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = invites.Accept(ctx, inv.ID, now)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, wins)

	statuses := map[models.InviteStatus]int{}
	for _, inv := range []*models.Invite{first, second} {
		stored, err := invites.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		statuses[stored.Status]++
	}
	assert.Equal(t, map[models.InviteStatus]int{models.InviteStatusAccepted: 1, models.InviteStatusCancelled: 1}, statuses)
}

func TestPostgresAcceptExpiresOverdueInvite(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	invites := repository.NewInviteRepository(pool)
	ids := newUsers(t, pool, 2)
	now := time.Now()
	inv := newInvite(t, invites, ids[0], ids[1], now)

	_, _, err := invites.Accept(ctx, inv.ID, now.Add(3*time.Minute))
	assert.ErrorIs(t, err, models.ErrExpired)

	stored, err := invites.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusExpired, stored.Status)
}

func TestPostgresOneActiveSessionPerUser(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	sessions := repository.NewSessionRepository(pool)
	ids := newUsers(t, pool, 5)
	shared := ids[0]
	now := time.Now()

	errs := make([]error, len(ids)-1)
	var wg sync.WaitGroup
	for i, other := range ids[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sessions.Create(ctx, newSession(shared, other, now))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConflict)
	}
	assert.Equal(t, 1, created)

	active, err := sessions.GetActiveForUser(ctx, shared)
	require.NoError(t, err)

	// ending the session frees both participants
	_, err = sessions.Update(ctx, active.ID, func(s *models.ChatSession) error {
		s.IsActive = false
		ended := now.Add(time.Minute)
		s.EndedAt = &ended
		return nil
	})
	require.NoError(t, err)
	_, err = sessions.GetActiveForUser(ctx, shared)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, sessions.Create(ctx, newSession(shared, active.OtherUser(shared), now)))
}

func TestPostgresSessionHistoryRetention(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	sessions := repository.NewSessionRepository(pool)
	messages := repository.NewMessageRepository(pool)
	ids := newUsers(t, pool, 2)
	now := time.Now()

	sess := newSession(ids[0], ids[1], now)
	require.NoError(t, sessions.Create(ctx, sess))
	require.NoError(t, messages.Append(ctx, &models.Message{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		SenderID:  ids[0],
		Text:      "hello",
		SentAt:    now,
	}))

	_, err := sessions.Update(ctx, sess.ID, func(s *models.ChatSession) error {
		s.IsActive = false
		s.EndedAt = &now
		return nil
	})
	require.NoError(t, err)

	visible, err := messages.ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)

	converted, err := sessions.MarkFriends(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeFriend, converted.Type)
	visible, err = messages.ListBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestPostgresUpdateWithPenaltyIsAtomic(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	sessions := repository.NewSessionRepository(pool)
	users := repository.NewUserRepository(pool)
	ids := newUsers(t, pool, 2)
	now := time.Now()

	sess := newSession(ids[0], ids[1], now)
	sess.EarlyExitRequestedBy = models.StringPtr(ids[0])
	require.NoError(t, sessions.Create(ctx, sess))

	endsAt := now.Add(24 * time.Hour)
	deny := func(penalized string) error {
		_, err := sessions.UpdateWithPenalty(ctx, sess.ID, endsAt, func(s *models.ChatSession) (string, error) {
			if s.EarlyExitRequestedBy == nil {
				return "", models.ErrAlreadyResolved
			}
			s.EarlyExitRequestedBy = nil
			return penalized, nil
		})
		return err
	}

	// an unknown user rolls the whole denial back
	err := deny("missing-" + uuid.New().String())
	require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
	stored, err := sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EarlyExitRequestedBy)

	require.NoError(t, deny(ids[0]))
	stored, err = sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EarlyExitRequestedBy)

	u, err := users.GetByID(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, u.PenaltyEndsAt)
	assert.WithinDuration(t, endsAt, *u.PenaltyEndsAt, time.Millisecond)
}
