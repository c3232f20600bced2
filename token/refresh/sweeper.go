package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often expired records are dropped.
const DefaultSweepInterval = time.Hour

// Sweeper drops expired registry records on a fixed interval, independent of request handling.
type Sweeper struct {
	registry Registry
	interval time.Duration
}

func NewSweeper(registry Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{registry: registry, interval: interval}
}

// Run sweeps every interval until ctx is canceled. It always returns nil so it can
// run inside an errgroup without stopping its siblings.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("refresh token sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("refresh token sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs the outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.registry.Sweep(ctx)
	if err != nil {
		log.Err(err).Msg("refresh token sweep failed")
		return removed
	}
	log.Debug().Int("removed", removed).Msg("refresh token sweep complete")
	return removed
}
