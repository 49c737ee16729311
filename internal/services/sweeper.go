package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// InviteSweeper periodically marks overdue invites expired. Expiry is already
// enforced lazily on read; the sweep only keeps stored statuses tidy.
type InviteSweeper struct {
	invites  *InviteService
	interval time.Duration
}

// NewInviteSweeper creates a sweeper running every interval
func NewInviteSweeper(invites *InviteService, interval time.Duration) *InviteSweeper {
	return &InviteSweeper{invites: invites, interval: interval}
}

// Run sweeps until ctx is cancelled
func (s *InviteSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Invite sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Invite sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires stale invites a single time
func (s *InviteSweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.invites.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire invites")
		return 0
	}
	if n > 0 {
		log.Debug().Int64("expired", n).Msg("Expired stale invites")
	}
	return n
}
