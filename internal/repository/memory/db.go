// Package memory is an in-process implementation of the repositories.
//
// Every repository shares one DB and one mutex, so each call is atomic with
// respect to every other call. It backs the "memory" database driver and the
// service tests.
package memory

import (
	"sync"

	"kindred-backend/internal/models"
)

type blockKey struct {
	blocker, blocked string
}

type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	a, b := models.CanonicalPair(x, y)
	return pairKey{a: a, b: b}
}

// DB holds all tables
type DB struct {
	mu sync.Mutex

	users       map[string]*models.User
	blocks      map[blockKey]*models.Block
	friendships map[pairKey]*models.Friendship

	invites     map[string]*models.Invite
	inviteOrder []string

	sessions     map[string]*models.ChatSession
	sessionOrder []string
	messages     map[string][]*models.Message

	friendRequests map[string]*models.FriendRequest
	requestOrder   []string
}

// New creates an empty database
func New() *DB {
	return &DB{
		users:          make(map[string]*models.User),
		blocks:         make(map[blockKey]*models.Block),
		friendships:    make(map[pairKey]*models.Friendship),
		invites:        make(map[string]*models.Invite),
		sessions:       make(map[string]*models.ChatSession),
		messages:       make(map[string][]*models.Message),
		friendRequests: make(map[string]*models.FriendRequest),
	}
}

func (db *DB) softDeleteMessages(sessionID string, deleted bool) {
	for _, m := range db.messages[sessionID] {
		m.IsDeleted = deleted
	}
}

func copyInvite(inv *models.Invite) *models.Invite {
	c := *inv
	return &c
}

func copyRequest(fr *models.FriendRequest) *models.FriendRequest {
	c := *fr
	return &c
}
