package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner drives the sync service on a fixed interval until its context is
// cancelled. A panic inside a cycle is logged and the next tick proceeds; a
// single bad cycle must not take down the daemon.
type Runner struct {
	service  *Service
	interval time.Duration
	log      zerolog.Logger
}

// NewRunner creates a runner around the sync service
func NewRunner(service *Service, interval time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		service:  service,
		interval: interval,
		log:      log.With().Str("component", "sync_runner").Logger(),
	}
}

// Run blocks until ctx is cancelled. The first cycle starts immediately.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("Sync runner started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Sync runner stopping")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Recovered from panic in sync cycle")
		}
	}()

	if _, err := r.service.RunCycle(ctx); err != nil {
		r.log.Error().Err(err).Msg("Sync cycle aborted")
	}
}
