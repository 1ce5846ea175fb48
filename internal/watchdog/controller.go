package watchdog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/alerts"
)

// State is the escalation state machine position
type State string

// Escalation states
const (
	StateHealthy  State = "HEALTHY"
	StateDegraded State = "DEGRADED"
	StateHealing  State = "HEALING"
	StateAlerted  State = "ALERTED"
)

// Dispatcher triggers the auto-heal mechanisms
type Dispatcher interface {
	// TriggerWorkflow restarts the bridge service.
	TriggerWorkflow(ctx context.Context, reason string) error
	// TriggerRepositoryEvent restarts the whole VPS stack.
	TriggerRepositoryEvent(ctx context.Context, reason string) error
}

// Controller is the escalation state machine. It turns a stream of health
// reports into heal dispatches and rate-limited alerts.
//
// Escalation path: consecutive failures accumulate through DEGRADED; the
// first heal dispatch fires exactly when the failure count reaches the
// threshold. While the outage continues, further heals are gated by the
// cooldown and the gaps are filled with critical alerts, at most one per
// alert interval.
type Controller struct {
	dispatcher Dispatcher
	sink       alerts.Sink
	log        zerolog.Logger

	failureThreshold int
	healCooldown     time.Duration
	healWait         time.Duration
	alertInterval    time.Duration

	// Injectable for tests
	now   func() time.Time
	sleep func(time.Duration)

	state               State
	consecutiveFailures int
	healInProgress      bool
	lastHealAttempt     time.Time
	lastAlertSent       time.Time
}

// ControllerConfig holds the escalation tunables
type ControllerConfig struct {
	FailureThreshold int
	HealCooldown     time.Duration
	HealWait         time.Duration
	AlertInterval    time.Duration
}

// NewController creates a controller in the HEALTHY state
func NewController(dispatcher Dispatcher, sink alerts.Sink, cfg ControllerConfig, log zerolog.Logger) *Controller {
	return &Controller{
		dispatcher:       dispatcher,
		sink:             sink,
		log:              log.With().Str("component", "watchdog_controller").Logger(),
		failureThreshold: cfg.FailureThreshold,
		healCooldown:     cfg.HealCooldown,
		healWait:         cfg.HealWait,
		alertInterval:    cfg.AlertInterval,
		now:              time.Now,
		sleep:            time.Sleep,
		state:            StateHealthy,
	}
}

// Observe feeds one health report into the state machine
func (c *Controller) Observe(ctx context.Context, report *Report) {
	if report.Healthy {
		c.observeHealthy(ctx)
		return
	}
	c.observeUnhealthy(ctx, report)
}

func (c *Controller) observeHealthy(ctx context.Context) {
	recovered := c.state != StateHealthy && c.consecutiveFailures > 0

	c.state = StateHealthy
	c.consecutiveFailures = 0
	c.healInProgress = false

	if !recovered {
		return
	}

	c.log.Info().Msg("System recovered")
	err := c.sink.Send(ctx, alerts.Alert{
		Component:     "watchdog",
		ComponentName: "MT5 Sync Pipeline",
		Severity:      alerts.SeverityInfo,
		Status:        "recovered",
		Message:       "MT5 sync pipeline recovered",
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to send recovery notification")
	}
}

func (c *Controller) observeUnhealthy(ctx context.Context, report *Report) {
	c.consecutiveFailures++

	c.log.Warn().
		Int("consecutive_failures", c.consecutiveFailures).
		Int("threshold", c.failureThreshold).
		Msg("Unhealthy check observed")

	if c.consecutiveFailures < c.failureThreshold {
		c.state = StateDegraded
		return
	}

	if c.tryHeal(ctx, report) {
		return
	}

	c.alert(ctx, report)
	c.state = StateAlerted
}

// tryHeal dispatches the appropriate restart. Returns false when the heal
// could not be attempted or failed, in which case the caller escalates to
// alerting.
func (c *Controller) tryHeal(ctx context.Context, report *Report) bool {
	now := c.now()
	if !c.lastHealAttempt.IsZero() && now.Sub(c.lastHealAttempt) < c.healCooldown {
		c.log.Warn().
			Time("last_attempt", c.lastHealAttempt).
			Dur("cooldown", c.healCooldown).
			Msg("Heal cooldown active, escalating to alert")
		return false
	}

	c.lastHealAttempt = now
	c.healInProgress = true

	var err error
	if report.NeedsFullRestart {
		c.log.Warn().Msg("Dispatching full VPS restart")
		err = c.dispatcher.TriggerRepositoryEvent(ctx, healReason(report))
	} else {
		c.log.Warn().Msg("Dispatching bridge service restart")
		err = c.dispatcher.TriggerWorkflow(ctx, healReason(report))
	}
	if err != nil {
		c.healInProgress = false
		c.log.Error().Err(err).Msg("Heal dispatch failed")
		return false
	}

	c.state = StateHealing

	// Give the restarted service time to come up before the next check
	// counts against the failure streak.
	c.sleep(c.healWait)
	return true
}

func (c *Controller) alert(ctx context.Context, report *Report) {
	now := c.now()
	if !c.lastAlertSent.IsZero() && now.Sub(c.lastAlertSent) < c.alertInterval {
		c.log.Debug().Msg("Alert suppressed by rate limit")
		return
	}

	c.lastAlertSent = now

	message := "MT5 sync pipeline is unhealthy and auto-heal has not recovered it"
	if report.NeedsFullRestart {
		message = "MT5 bridge terminal appears wedged, full restart required"
	}

	err := c.sink.Send(ctx, alerts.Alert{
		Component:     "watchdog",
		ComponentName: "MT5 Sync Pipeline",
		Severity:      alerts.SeverityCritical,
		Status:        "unhealthy",
		Message:       message,
		Details: map[string]interface{}{
			"consecutive_failures": c.consecutiveFailures,
			"bridge_api_available": report.BridgeAPIAvailable,
			"data_fresh":           report.DataFresh,
			"accounts_syncing":     report.AccountsSyncing,
			"needs_full_restart":   report.NeedsFullRestart,
		},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to send alert")
	}
}

func healReason(report *Report) string {
	switch {
	case report.NeedsFullRestart:
		return "watchdog: all trading accounts report zero balance"
	case !report.BridgeAPIAvailable:
		return "watchdog: bridge API unreachable"
	case !report.DataFresh:
		return "watchdog: account data is stale"
	default:
		return "watchdog: account syncing stalled"
	}
}

// Snapshot returns the controller's current escalation state
func (c *Controller) Snapshot() (state State, consecutiveFailures int, healInProgress bool, lastHealAttempt, lastAlertSent time.Time) {
	return c.state, c.consecutiveFailures, c.healInProgress, c.lastHealAttempt, c.lastAlertSent
}
