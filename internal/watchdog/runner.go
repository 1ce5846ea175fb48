package watchdog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Broadcaster pushes status updates to live subscribers
type Broadcaster interface {
	Broadcast(status Status)
}

// Runner drives the check-observe-persist loop on a fixed interval
type Runner struct {
	checker     *Checker
	controller  *Controller
	statusRepo  *StatusRepository
	broadcaster Broadcaster // optional
	interval    time.Duration
	log         zerolog.Logger
}

// NewRunner creates a watchdog runner. broadcaster may be nil.
func NewRunner(
	checker *Checker,
	controller *Controller,
	statusRepo *StatusRepository,
	broadcaster Broadcaster,
	interval time.Duration,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		checker:     checker,
		controller:  controller,
		statusRepo:  statusRepo,
		broadcaster: broadcaster,
		interval:    interval,
		log:         log.With().Str("component", "watchdog_runner").Logger(),
	}
}

// Run blocks until ctx is cancelled. The first check runs immediately.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("Watchdog started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Watchdog stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Tick runs one full check cycle and returns the resulting status
func (r *Runner) Tick(ctx context.Context) Status {
	report := r.checker.Check(ctx)
	r.controller.Observe(ctx, report)

	state, failures, healing, lastHeal, lastAlert := r.controller.Snapshot()
	status := Status{
		Healthy:             report.Healthy,
		BridgeAPIAvailable:  report.BridgeAPIAvailable,
		DataFresh:           report.DataFresh,
		AccountsSyncing:     report.AccountsSyncing,
		NeedsFullRestart:    report.NeedsFullRestart,
		State:               state,
		ConsecutiveFailures: failures,
		HealInProgress:      healing,
		CheckedAt:           report.CheckedAt,
		Details:             report.Details,
	}
	if !lastHeal.IsZero() {
		t := lastHeal.UTC()
		status.LastHealAttempt = &t
	}
	if !lastAlert.IsZero() {
		t := lastAlert.UTC()
		status.LastAlertSent = &t
	}

	if err := r.statusRepo.Save(status); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist watchdog status")
	}
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(status)
	}

	return status
}

func (r *Runner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Recovered from panic in watchdog tick")
		}
	}()

	r.Tick(ctx)
}
