package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names pushed to clients
const (
	EventInviteReceived        = "invite-received"
	EventInviteAccepted        = "invite-accepted"
	EventInviteDeclined        = "invite-declined"
	EventInviteCancelled       = "invite-cancelled"
	EventSessionUpdate         = "session-update"
	EventNewMessage            = "new-message"
	EventMessageNotice         = "message-notice"
	EventFriendRequestReceived = "friend-request-received"
	EventFriendRequestAccepted = "friend-request-accepted"
)

// Sub-types carried by session-update events
const (
	SessionEnded              = "session-ended"
	SessionStarted            = "session-started"
	SessionMinimumTimeMet     = "minimum-time-met"
	SessionContinueRequested  = "continue-requested"
	SessionEarlyExitRequested = "early-exit-requested"
	SessionEarlyExitDenied    = "early-exit-denied"
	SessionFriendRequested    = "friend-requested"
	SessionBecameFriends      = "became-friends"
)

// Publisher pushes a named event to a channel. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// UserChannel addresses every connection of one user
func UserChannel(userID string) string {
	return "user:" + userID
}

// SessionChannel addresses every participant that joined a session room
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// SessionUpdate is the payload of a session-update event
type SessionUpdate struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
	Detail    any       `json:"detail,omitempty"`
}

// notify publishes and logs failures; state changes never depend on delivery
func notify(ctx context.Context, pub Publisher, channel, event string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, channel, event, payload); err != nil {
		log.Warn().
			Err(err).
			Str("channel", channel).
			Str("event", event).
			Msg("Failed to publish event")
	}
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
