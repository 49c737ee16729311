package repository_test

import (
	"kindred-backend/internal/repository"
	"kindred-backend/internal/services"
)

var (
	_ services.UserStore          = (*repository.UserRepository)(nil)
	_ services.BlockStore         = (*repository.BlockRepository)(nil)
	_ services.FriendshipStore    = (*repository.FriendshipRepository)(nil)
	_ services.InviteStore        = (*repository.InviteRepository)(nil)
	_ services.SessionStore       = (*repository.SessionRepository)(nil)
	_ services.MessageStore       = (*repository.MessageRepository)(nil)
	_ services.FriendRequestStore = (*repository.FriendRequestRepository)(nil)
)
