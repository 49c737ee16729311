package handlers

import (
	"net/http"

	"kindred-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router bundles the handlers served by NewRouter
type Router struct {
	Match     *MatchHandler
	Invite    *InviteHandler
	Session   *SessionHandler
	Friend    *FriendHandler
	Block     *BlockHandler
	User      *UserHandler
	WebSocket *WebSocketHandler

	Verifier middleware.TokenVerifier
	// Limiter throttles authenticated mutations; nil disables throttling
	Limiter *middleware.RateLimiter
}

// NewRouter builds the HTTP routes
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(rt.Verifier))

		// Reads
		r.Get("/me", rt.User.GetMe)
		r.Get("/matches", rt.Match.GetMatches)
		r.Get("/invites", rt.Invite.ListInvites)
		r.Get("/sessions/active", rt.Session.GetActiveSession)
		r.Get("/sessions/{session_id}", rt.Session.GetSession)
		r.Get("/sessions/{session_id}/messages", rt.Session.ListMessages)
		r.Get("/friends", rt.Friend.ListFriends)
		r.Get("/friend-requests", rt.Friend.ListFriendRequests)
		r.Get("/blocks", rt.Block.ListBlocks)

		// Mutations
		r.Group(func(r chi.Router) {
			if rt.Limiter != nil {
				r.Use(rt.Limiter.Middleware)
			}
			r.Put("/me/push-token", rt.User.UpdatePushToken)
			r.Post("/prompt", rt.Match.SubmitPrompt)
			r.Delete("/prompt", rt.Match.ClearPrompt)
			r.Post("/invites", rt.Invite.CreateInvite)
			r.Post("/invites/{invite_id}/actions", rt.Invite.InviteAction)
			r.Post("/sessions/{session_id}/messages", rt.Session.SendMessage)
			r.Post("/sessions/{session_id}/actions", rt.Session.SessionAction)
			r.Post("/sessions/{session_id}/transcript", rt.Session.ExportTranscript)
			r.Post("/friends/{friend_id}/chat", rt.Friend.StartChat)
			r.Delete("/friends/{friend_id}", rt.Friend.Unfriend)
			r.Post("/friend-requests", rt.Friend.SendFriendRequest)
			r.Post("/friend-requests/{request_id}/actions", rt.Friend.FriendRequestAction)
			r.Post("/blocks", rt.Block.CreateBlock)
			r.Delete("/blocks/{user_id}", rt.Block.DeleteBlock)
		})
	})

	if rt.WebSocket != nil {
		r.Get("/ws", rt.WebSocket.HandleWebSocket)
	}

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
