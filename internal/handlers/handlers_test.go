package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kindred-backend/internal/middleware"
	"kindred-backend/internal/models"
	"kindred-backend/internal/repository/memory"
	"kindred-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type testServer struct {
	t        *testing.T
	handler  http.Handler
	verifier *services.TokenVerifier
	users    *memory.UserRepository
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()

	db := memory.New()
	users := memory.NewUserRepository(db)
	blocks := memory.NewBlockRepository(db)
	friendships := memory.NewFriendshipRepository(db)
	invites := memory.NewInviteRepository(db)
	sessions := memory.NewSessionRepository(db)
	messages := memory.NewMessageRepository(db)
	requests := memory.NewFriendRequestRepository(db)

	pub := services.NopPublisher{}
	settings := services.DefaultSettings()
	verifier := services.NewTokenVerifier("test-secret")
	penalties := services.NewPenaltyClock(users, settings.PenaltyDuration)
	friendService := services.NewFriendRequestService(requests, friendships, sessions, blocks, users, pub)
	sessionService := services.NewSessionService(sessions, messages, users, blocks, friendships, friendService, penalties, pub, settings)
	inviteService := services.NewInviteService(invites, users, blocks, sessionService, penalties, pub, settings)
	matchService := services.NewMatchService(users, blocks, invites, sessions, penalties, pub, settings)
	directoryService := services.NewDirectoryService(blocks, friendships, invites, users, sessionService)

	handler := NewRouter(Router{
		Match:    NewMatchHandler(matchService),
		Invite:   NewInviteHandler(inviteService, sessionService),
		Session:  NewSessionHandler(sessionService, nil),
		Friend:   NewFriendHandler(directoryService, friendService, sessionService),
		Block:    NewBlockHandler(directoryService),
		User:     NewUserHandler(services.NewUserService(users)),
		Verifier: verifier,
		Limiter:  limiter,
	})

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Put(context.Background(), &models.User{ID: id, CreatedAt: time.Now()}))
	}

	return &testServer{t: t, handler: handler, verifier: verifier, users: users}
}

func (s *testServer) do(userID, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.verifier.Issue(userID, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAndAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("", http.MethodGet, "/api/v1/matches", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPairingFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("bob", http.MethodPost, "/api/v1/prompt", SubmitPromptRequest{Prompt: "toddler will not eat vegetables"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("alice", http.MethodPost, "/api/v1/prompt", SubmitPromptRequest{Prompt: "picky eater toddler"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	matches := decode[MatchesResponse](t, rec)
	require.Len(t, matches.Matches, 1)
	assert.Equal(t, "bob", matches.Matches[0].CandidateID)

	rec = s.do("alice", http.MethodGet, "/api/v1/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("alice", http.MethodPost, "/api/v1/invites", CreateInviteRequest{ReceiverID: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[models.Invite](t, rec)
	assert.Equal(t, "picky eater toddler", inv.PromptText)

	rec = s.do("bob", http.MethodGet, "/api/v1/invites?direction=incoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[struct {
		Invites []services.InviteView `json:"invites"`
	}](t, rec)
	require.Len(t, listed.Invites, 1)

	rec = s.do("bob", http.MethodPost, "/api/v1/invites/"+inv.ID+"/actions", ActionRequest{Action: "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[InviteActionResponse](t, rec)
	require.NotNil(t, accepted.Session)
	sessionID := accepted.Session.ID
	assert.True(t, accepted.Session.IsActive)
	assert.Empty(t, accepted.Session.PartnerID)

	rec = s.do("bob", http.MethodPost, "/api/v1/invites/"+inv.ID+"/actions", ActionRequest{Action: "accept"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do("alice", http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", SendMessageRequest{Text: "hello!"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("bob", http.MethodGet, "/api/v1/sessions/"+sessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[struct {
		Messages []models.Message `json:"messages"`
	}](t, rec)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, "hello!", msgs.Messages[0].Text)

	rec = s.do("carol", http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("alice", http.MethodGet, "/api/v1/sessions/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[struct {
		Session *services.SessionView `json:"session"`
	}](t, rec)
	require.NotNil(t, active.Session)
	assert.Equal(t, sessionID, active.Session.ID)
	assert.Positive(t, active.Session.SecondsRemaining)

	// an early leave needs approval, and a denial penalizes the leaver
	rec = s.do("alice", http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", ActionRequest{Action: "leave"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(services.LeaveApprovalRequired), decode[SessionActionResponse](t, rec).Outcome)

	rec = s.do("bob", http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", ActionRequest{Action: "deny_exit"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	denied := decode[SessionActionResponse](t, rec)
	assert.Equal(t, "denied", denied.Outcome)
	require.NotNil(t, denied.Session)
	assert.True(t, denied.Session.IsActive)

	rec = s.do("alice", http.MethodPost, "/api/v1/prompt", SubmitPromptRequest{Prompt: "anything"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "penalized", errResp.Code)
	require.NotNil(t, errResp.Until)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *errResp.Until, time.Minute)
}

func TestSessionContinueAndFriendship(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodPost, "/api/v1/invites", CreateInviteRequest{ReceiverID: "bob", PromptText: "returning to work"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[models.Invite](t, rec)
	rec = s.do("bob", http.MethodPost, "/api/v1/invites/"+inv.ID+"/actions", ActionRequest{Action: "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := decode[InviteActionResponse](t, rec).Session.ID

	actions := "/api/v1/sessions/" + sessionID + "/actions"
	rec = s.do("alice", http.MethodPost, actions, ActionRequest{Action: "continue"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(services.ContinueWaiting), decode[SessionActionResponse](t, rec).Outcome)

	rec = s.do("bob", http.MethodPost, actions, ActionRequest{Action: "continue"})
	require.Equal(t, http.StatusOK, rec.Code)
	mutual := decode[SessionActionResponse](t, rec)
	assert.Equal(t, string(services.ContinueMutual), mutual.Outcome)
	assert.True(t, mutual.Session.MinimumTimeMet)

	rec = s.do("bob", http.MethodPost, actions, ActionRequest{Action: "friend_request"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fr := decode[SessionActionResponse](t, rec).FriendRequest
	require.NotNil(t, fr)

	rec = s.do("alice", http.MethodGet, "/api/v1/friend-requests?direction=incoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[struct {
		Requests []models.FriendRequest `json:"friend_requests"`
	}](t, rec)
	require.Len(t, pending.Requests, 1)

	rec = s.do("alice", http.MethodPost, "/api/v1/friend-requests/"+fr.ID+"/actions", ActionRequest{Action: "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do("alice", http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[services.SessionView](t, rec)
	assert.True(t, view.BecameFriends)
	assert.Equal(t, models.SessionTypeFriend, view.Type)
	assert.Equal(t, "bob", view.PartnerID)

	rec = s.do("alice", http.MethodGet, "/api/v1/friends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	friends := decode[struct {
		Friends []services.FriendView `json:"friends"`
	}](t, rec)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, "bob", friends.Friends[0].UserID)

	// friend sessions end without approval
	rec = s.do("alice", http.MethodPost, actions, ActionRequest{Action: "leave"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(services.LeaveEnded), decode[SessionActionResponse](t, rec).Outcome)

	rec = s.do("bob", http.MethodPost, "/api/v1/friends/alice/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	chat := decode[services.SessionView](t, rec)
	assert.Equal(t, models.SessionTypeFriend, chat.Type)
	assert.Equal(t, "alice", chat.PartnerID)

	rec = s.do("bob", http.MethodPost, "/api/v1/sessions/"+chat.ID+"/transcript", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = s.do("bob", http.MethodDelete, "/api/v1/friends/alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do("bob", http.MethodDelete, "/api/v1/friends/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodPost, "/api/v1/blocks", CreateBlockRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do("alice", http.MethodPost, "/api/v1/blocks", CreateBlockRequest{UserID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, rec).Code)

	rec = s.do("alice", http.MethodPost, "/api/v1/blocks", CreateBlockRequest{UserID: "bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("alice", http.MethodGet, "/api/v1/blocks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	blocks := decode[struct {
		Blocks []models.Block `json:"blocks"`
	}](t, rec)
	require.Len(t, blocks.Blocks, 1)

	rec = s.do("bob", http.MethodPost, "/api/v1/friend-requests", SendFriendRequestRequest{ReceiverID: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do("alice", http.MethodGet, "/api/v1/friend-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"friend_requests":[]}`, rec.Body.String())

	rec = s.do("alice", http.MethodDelete, "/api/v1/blocks/bob", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown invite action", http.MethodPost, "/api/v1/invites/x/actions", ActionRequest{Action: "maybe"}, http.StatusBadRequest},
		{"unknown invite", http.MethodPost, "/api/v1/invites/x/actions", ActionRequest{Action: "accept"}, http.StatusNotFound},
		{"missing receiver", http.MethodPost, "/api/v1/invites", CreateInviteRequest{}, http.StatusBadRequest},
		{"bad direction", http.MethodGet, "/api/v1/invites?direction=sideways", nil, http.StatusBadRequest},
		{"matches without prompt", http.MethodGet, "/api/v1/matches", nil, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/v1/sessions/nope", nil, http.StatusNotFound},
		{"unknown session action", http.MethodPost, "/api/v1/sessions/nope/actions", ActionRequest{Action: "dance"}, http.StatusBadRequest},
		{"chat with stranger", http.MethodPost, "/api/v1/friends/bob/chat", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("alice", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := s.do("alice", http.MethodGet, "/api/v1/sessions/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session":null}`, rec.Body.String())
}

func TestMeEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodPut, "/api/v1/me/push-token", UpdatePushTokenRequest{PushToken: "device"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do("alice", http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[services.MeView](t, rec)
	assert.Equal(t, "alice", me.UserID)
	assert.True(t, me.PushEnabled)
	assert.False(t, me.Penalized)
}

func TestWriteEndpointsAreRateLimited(t *testing.T) {
	s := newTestServer(t, middleware.NewRateLimiter(rate.Limit(0.001), 2))

	for i := 0; i < 2; i++ {
		rec := s.do("alice", http.MethodDelete, "/api/v1/prompt", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec := s.do("alice", http.MethodDelete, "/api/v1/prompt", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads are not throttled
	rec = s.do("alice", http.MethodGet, "/api/v1/blocks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
