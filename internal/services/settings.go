package services

import "time"

// Settings are the engine tunables
type Settings struct {
	InviteTTL         time.Duration
	MinimumEngagement time.Duration
	PenaltyDuration   time.Duration
	MaxMatches        int
	MaxMessageLength  int
	MaxPromptLength   int
}

// DefaultSettings returns the production defaults
func DefaultSettings() Settings {
	return Settings{
		InviteTTL:         2 * time.Minute,
		MinimumEngagement: 600 * time.Second,
		PenaltyDuration:   24 * time.Hour,
		MaxMatches:        5,
		MaxMessageLength:  2000,
		MaxPromptLength:   500,
	}
}
