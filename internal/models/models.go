package models

import (
	"sort"
	"time"
)

// Visibility controls who may see a profile field
type Visibility string

const (
	VisibleToAnonymous Visibility = "anonymous"
	VisibleToFriend    Visibility = "friend"
	VisibilityHidden   Visibility = "hidden"
)

// Profile field names, used as keys of User.Visibility
const (
	FieldAge           = "age"
	FieldMaritalStatus = "marital_status"
	FieldEmployment    = "employment"
	FieldHobbies       = "hobbies"
	FieldLocation      = "location"
	FieldHasBaby       = "has_baby"
	FieldBabyBirthDate = "baby_birth_date"
	FieldCareerField   = "career_field"
)

// User is a read-only snapshot of a user owned by the profile service.
// The engine only ever writes CurrentPrompt, PenaltyEndsAt and PushToken.
type User struct {
	ID            string                `json:"id"`
	Age           *int                  `json:"age,omitempty"`
	MaritalStatus *string               `json:"marital_status,omitempty"`
	Employment    *string               `json:"employment,omitempty"`
	Hobbies       []string              `json:"hobbies,omitempty"`
	Location      *string               `json:"location,omitempty"`
	HasBaby       *bool                 `json:"has_baby,omitempty"`
	BabyBirthDate *time.Time            `json:"baby_birth_date,omitempty"`
	CareerField   *string               `json:"career_field,omitempty"`
	Visibility    map[string]Visibility `json:"visibility,omitempty"`
	CurrentPrompt *string               `json:"current_prompt,omitempty"`
	PenaltyEndsAt *time.Time            `json:"penalty_ends_at,omitempty"`
	PushToken     *string               `json:"-"`
	CreatedAt     time.Time             `json:"created_at"`
}

// FieldVisibility returns the visibility of a profile field, defaulting to friend-only
func (u *User) FieldVisibility(field string) Visibility {
	if v, ok := u.Visibility[field]; ok {
		return v
	}
	return VisibleToFriend
}

// IsPenalized reports whether the user is under an active penalty at now
func (u *User) IsPenalized(now time.Time) bool {
	return u.PenaltyEndsAt != nil && u.PenaltyEndsAt.After(now)
}

// IsSeeking reports whether the user currently holds a non-empty prompt
func (u *User) IsSeeking() bool {
	return u.CurrentPrompt != nil && *u.CurrentPrompt != ""
}

// ProfilePreview is the subset of profile fields a viewer is allowed to see
type ProfilePreview struct {
	Age           *int       `json:"age,omitempty"`
	MaritalStatus *string    `json:"marital_status,omitempty"`
	Employment    *string    `json:"employment,omitempty"`
	Hobbies       []string   `json:"hobbies,omitempty"`
	Location      *string    `json:"location,omitempty"`
	HasBaby       *bool      `json:"has_baby,omitempty"`
	BabyBirthDate *time.Time `json:"baby_birth_date,omitempty"`
	CareerField   *string    `json:"career_field,omitempty"`
}

// Preview filters the profile down to fields visible to a friend or anonymous viewer
func (u *User) Preview(asFriend bool) ProfilePreview {
	show := func(field string) bool {
		switch u.FieldVisibility(field) {
		case VisibleToAnonymous:
			return true
		case VisibleToFriend:
			return asFriend
		default:
			return false
		}
	}

	var p ProfilePreview
	if show(FieldAge) {
		p.Age = u.Age
	}
	if show(FieldMaritalStatus) {
		p.MaritalStatus = u.MaritalStatus
	}
	if show(FieldEmployment) {
		p.Employment = u.Employment
	}
	if show(FieldHobbies) {
		p.Hobbies = u.Hobbies
	}
	if show(FieldLocation) {
		p.Location = u.Location
	}
	if show(FieldHasBaby) {
		p.HasBaby = u.HasBaby
	}
	if show(FieldBabyBirthDate) {
		p.BabyBirthDate = u.BabyBirthDate
	}
	if show(FieldCareerField) {
		p.CareerField = u.CareerField
	}
	return p
}

// Block records that BlockerID does not want contact with BlockedID
type Block struct {
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Friendship is an undirected edge; UserAID is always the lexicographically smaller id
type Friendship struct {
	UserAID         string    `json:"user_a_id"`
	UserBID         string    `json:"user_b_id"`
	OriginSessionID *string   `json:"origin_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OtherUser returns the friend of userID in this friendship
func (f *Friendship) OtherUser(userID string) string {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// CanonicalPair orders two user ids so an unordered pair has a single key
func CanonicalPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// InviteStatus is the lifecycle state of an invite
type InviteStatus string

const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusAccepted  InviteStatus = "accepted"
	InviteStatusDeclined  InviteStatus = "declined"
	InviteStatusExpired   InviteStatus = "expired"
	InviteStatusCancelled InviteStatus = "cancelled"
)

// Invite is a short-lived proposal to start an anonymous session
type Invite struct {
	ID         string       `json:"id"`
	SenderID   string       `json:"sender_id"`
	ReceiverID string       `json:"receiver_id"`
	PromptText string       `json:"prompt_text"`
	Status     InviteStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// IsExpired reports whether a deadline has passed at now
func IsExpired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// EffectiveStatus applies lazy expiry: a pending invite past its deadline reads as expired
func (i *Invite) EffectiveStatus(now time.Time) InviteStatus {
	if i.Status == InviteStatusPending && IsExpired(now, i.ExpiresAt) {
		return InviteStatusExpired
	}
	return i.Status
}

// Involves reports whether userID is the sender or receiver
func (i *Invite) Involves(userID string) bool {
	return i.SenderID == userID || i.ReceiverID == userID
}

// SessionType distinguishes anonymous chats from chats between friends
type SessionType string

const (
	SessionTypeAnonymous SessionType = "anonymous"
	SessionTypeFriend    SessionType = "friend"
)

// ChatSession is a timed conversation between two users
type ChatSession struct {
	ID                   string            `json:"id"`
	UserAID              string            `json:"user_a_id"`
	UserBID              string            `json:"user_b_id"`
	DisplayNames         map[string]string `json:"display_names"`
	Type                 SessionType       `json:"type"`
	PromptText           *string           `json:"prompt_text,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	EndedAt              *time.Time        `json:"ended_at,omitempty"`
	MinimumTimeMet       bool              `json:"minimum_time_met"`
	IsActive             bool              `json:"is_active"`
	BecameFriends        bool              `json:"became_friends"`
	EarlyExitRequestedBy *string           `json:"early_exit_requested_by,omitempty"`
	ContinueRequestedBy  *string           `json:"continue_requested_by,omitempty"`
	FriendRequestedBy    *string           `json:"friend_requested_by,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants
func (s *ChatSession) HasParticipant(userID string) bool {
	return s.UserAID == userID || s.UserBID == userID
}

// OtherUser returns the partner of userID
func (s *ChatSession) OtherUser(userID string) string {
	if s.UserAID == userID {
		return s.UserBID
	}
	return s.UserAID
}

// RetainsHistory reports whether messages stay readable after the session
// ends. Anonymous history is hidden unless the pair became friends.
func (s *ChatSession) RetainsHistory() bool {
	return s.Type == SessionTypeFriend || s.BecameFriends
}

// Clone returns a deep copy safe to mutate
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.DisplayNames = make(map[string]string, len(s.DisplayNames))
	for k, v := range s.DisplayNames {
		c.DisplayNames[k] = v
	}
	c.PromptText = cloneString(s.PromptText)
	c.EarlyExitRequestedBy = cloneString(s.EarlyExitRequestedBy)
	c.ContinueRequestedBy = cloneString(s.ContinueRequestedBy)
	c.FriendRequestedBy = cloneString(s.FriendRequestedBy)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// Message is a single chat line; IsDeleted hides it from normal reads
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
	IsDeleted bool      `json:"-"`
}

// FriendRequestStatus is the lifecycle state of a friend request
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest is a consent handshake that ends in a Friendship
type FriendRequest struct {
	ID              string              `json:"id"`
	SenderID        string              `json:"sender_id"`
	ReceiverID      string              `json:"receiver_id"`
	OriginSessionID *string             `json:"origin_session_id,omitempty"`
	Status          FriendRequestStatus `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
}

// Direction selects incoming or outgoing requests in listings
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// ParseDirection validates a direction query value
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionIncoming, DirectionOutgoing:
		return Direction(s), nil
	case "":
		return DirectionIncoming, nil
	}
	return "", NewInvalidArgument("direction", "must be incoming or outgoing")
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
