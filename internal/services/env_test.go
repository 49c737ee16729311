package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"kindred-backend/internal/models"
	"kindred-backend/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

// Compile-time checks that the in-memory store satisfies every interface
var (
	_ UserStore          = (*memory.UserRepository)(nil)
	_ BlockStore         = (*memory.BlockRepository)(nil)
	_ FriendshipStore    = (*memory.FriendshipRepository)(nil)
	_ InviteStore        = (*memory.InviteRepository)(nil)
	_ SessionStore       = (*memory.SessionRepository)(nil)
	_ MessageStore       = (*memory.MessageRepository)(nil)
	_ FriendRequestStore = (*memory.FriendRequestRepository)(nil)
)

type event struct {
	Channel string
	Event   string
	Payload any
}

// recorder is a Publisher that keeps every event
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(_ context.Context, channel, name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{Channel: channel, Event: name, Payload: payload})
	return nil
}

func (r *recorder) find(channel, name string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.Channel == channel && e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) sessionUpdates(channel, typ string) []SessionUpdate {
	var out []SessionUpdate
	for _, e := range r.find(channel, EventSessionUpdate) {
		if u, ok := e.Payload.(SessionUpdate); ok && u.Type == typ {
			out = append(out, u)
		}
	}
	return out
}

// clock is a manually advanced time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires every service over one in-memory database
type testEnv struct {
	t     *testing.T
	ctx   context.Context
	clock *clock
	pub   *recorder

	db          *memory.DB
	users       *memory.UserRepository
	blocksRepo  *memory.BlockRepository
	friendships *memory.FriendshipRepository
	invitesRepo *memory.InviteRepository
	sessionRepo *memory.SessionRepository
	messages    *memory.MessageRepository
	requests    *memory.FriendRequestRepository

	penalties   *PenaltyClock
	friends     *FriendRequestService
	sessions    *SessionService
	invites     *InviteService
	matches     *MatchService
	directory   *DirectoryService
	userService *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memory.New()
	e := &testEnv{
		t:           t,
		ctx:         context.Background(),
		clock:       &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		pub:         &recorder{},
		db:          db,
		users:       memory.NewUserRepository(db),
		blocksRepo:  memory.NewBlockRepository(db),
		friendships: memory.NewFriendshipRepository(db),
		invitesRepo: memory.NewInviteRepository(db),
		sessionRepo: memory.NewSessionRepository(db),
		messages:    memory.NewMessageRepository(db),
		requests:    memory.NewFriendRequestRepository(db),
	}

	settings := DefaultSettings()
	e.penalties = NewPenaltyClock(e.users, settings.PenaltyDuration)
	e.friends = NewFriendRequestService(e.requests, e.friendships, e.sessionRepo, e.blocksRepo, e.users, e.pub)
	e.sessions = NewSessionService(e.sessionRepo, e.messages, e.users, e.blocksRepo, e.friendships, e.friends, e.penalties, e.pub, settings)
	e.invites = NewInviteService(e.invitesRepo, e.users, e.blocksRepo, e.sessions, e.penalties, e.pub, settings)
	e.matches = NewMatchService(e.users, e.blocksRepo, e.invitesRepo, e.sessionRepo, e.penalties, e.pub, settings)
	e.directory = NewDirectoryService(e.blocksRepo, e.friendships, e.invitesRepo, e.users, e.sessions)
	e.userService = NewUserService(e.users)

	e.penalties.Now = e.clock.Now
	e.friends.Now = e.clock.Now
	e.sessions.Now = e.clock.Now
	e.invites.Now = e.clock.Now
	e.matches.Now = e.clock.Now
	e.directory.Now = e.clock.Now
	e.userService.Now = e.clock.Now
	return e
}

func (e *testEnv) addUser(id string, opts ...func(u *models.User)) *models.User {
	e.t.Helper()
	u := &models.User{ID: id, CreatedAt: e.clock.Now()}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(e.t, e.users.Put(e.ctx, u))
	return u
}

func (e *testEnv) user(id string) *models.User {
	e.t.Helper()
	u, err := e.users.GetByID(e.ctx, id)
	require.NoError(e.t, err)
	return u
}

// startSession pairs a and b through an accepted invite
func (e *testEnv) startSession(a, b string) *models.ChatSession {
	e.t.Helper()
	inv, err := e.invites.Create(e.ctx, a, b, "how do you cope with night feeds")
	require.NoError(e.t, err)
	_, sess, err := e.invites.Accept(e.ctx, inv.ID, b)
	require.NoError(e.t, err)
	return sess
}

// befriend makes a and b friends directly
func (e *testEnv) befriend(a, b string) {
	e.t.Helper()
	fr, err := e.friends.Send(e.ctx, a, b, nil)
	require.NoError(e.t, err)
	_, err = e.friends.Accept(e.ctx, fr.ID, b)
	require.NoError(e.t, err)
}

func withPrompt(p string) func(u *models.User) {
	return func(u *models.User) { u.CurrentPrompt = &p }
}

func withAge(age int) func(u *models.User) {
	return func(u *models.User) { u.Age = &age }
}

func withLocation(loc string) func(u *models.User) {
	return func(u *models.User) { u.Location = &loc }
}

func withPenaltyUntil(t time.Time) func(u *models.User) {
	return func(u *models.User) { u.PenaltyEndsAt = &t }
}

func withPushToken(tok string) func(u *models.User) {
	return func(u *models.User) { u.PushToken = &tok }
}
