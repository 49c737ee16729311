package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PushSender delivers a device notification
type PushSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// Presence reports whether a user has a live connection
type Presence interface {
	IsOnline(userID string) bool
}

type pushAlert struct {
	title string
	body  string
}

var pushAlerts = map[string]pushAlert{
	EventInviteReceived:        {title: "New invite", body: "Someone wants to talk about what's on your mind."},
	EventFriendRequestReceived: {title: "Friend request", body: "Someone you talked with wants to stay in touch."},
}

// PushPublisher publishes events and additionally pushes selected ones to
// users who have no live connection.
type PushPublisher struct {
	next     Publisher
	presence Presence
	users    UserStore
	sender   PushSender
	timeout  time.Duration
	// done is signalled after each push attempt; used by tests
	done chan<- struct{}
}

// NewPushPublisher wraps next with offline push delivery
func NewPushPublisher(next Publisher, presence Presence, users UserStore, sender PushSender) *PushPublisher {
	return &PushPublisher{
		next:     next,
		presence: presence,
		users:    users,
		sender:   sender,
		timeout:  10 * time.Second,
	}
}

func (p *PushPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	err := p.next.Publish(ctx, channel, event, payload)

	alert, ok := pushAlerts[event]
	if !ok {
		return err
	}
	userID, ok := userFromChannel(channel)
	if !ok || p.presence.IsOnline(userID) {
		return err
	}

	go p.push(context.WithoutCancel(ctx), userID, event, alert)
	return err
}

func (p *PushPublisher) push(ctx context.Context, userID, event string, alert pushAlert) {
	defer func() {
		if p.done != nil {
			p.done <- struct{}{}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		return
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return
	}

	if err := p.sender.Send(ctx, *user.PushToken, alert.title, alert.body, map[string]string{"event": event}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("event", event).Msg("Failed to send push")
		return
	}
	log.Debug().Str("user_id", userID).Str("event", event).Msg("Push sent")
}
