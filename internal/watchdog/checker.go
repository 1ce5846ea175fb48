// Package watchdog monitors the MT5 sync pipeline and drives auto-healing.
// It probes the bridge API, checks data freshness in the operations database
// and applies heuristics that distinguish "bridge briefly slow" from "bridge
// terminal wedged and needs a full VPS restart".
package watchdog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/funds"
)

// Report is the outcome of one health check
type Report struct {
	Healthy            bool                   `json:"healthy"`
	BridgeAPIAvailable bool                   `json:"bridge_api_available"`
	DataFresh          bool                   `json:"data_fresh"`
	AccountsSyncing    bool                   `json:"accounts_syncing"`
	NeedsFullRestart   bool                   `json:"needs_full_restart"`
	CheckedAt          time.Time              `json:"checked_at"`
	Details            map[string]interface{} `json:"details,omitempty"`
}

// bridgeProber is the minimal bridge capability the checker needs
type bridgeProber interface {
	Health(ctx context.Context) error
}

// Checker runs the three health probes and combines them into a report
type Checker struct {
	bridge    bridgeProber
	accounts  *accounts.Repository
	freshness time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewChecker creates a checker over the bridge API and account snapshots
func NewChecker(bridge bridgeProber, accountRepo *accounts.Repository, freshness time.Duration, log zerolog.Logger) *Checker {
	return &Checker{
		bridge:    bridge,
		accounts:  accountRepo,
		freshness: freshness,
		log:       log.With().Str("component", "watchdog_checker").Logger(),
		now:       time.Now,
	}
}

// Check runs all probes. Probe errors degrade the relevant flag rather than
// failing the check; the watchdog must keep producing reports when the
// system it watches is broken.
func (c *Checker) Check(ctx context.Context) *Report {
	now := c.now().UTC()
	report := &Report{
		CheckedAt: now,
		Details:   map[string]interface{}{},
	}

	report.BridgeAPIAvailable = c.checkBridge(ctx, report.Details)
	report.DataFresh = c.checkFreshness(now, report.Details)
	report.AccountsSyncing, report.NeedsFullRestart = c.checkSyncing(now, report.Details)

	report.Healthy = report.BridgeAPIAvailable && report.DataFresh && report.AccountsSyncing

	c.log.Info().
		Bool("healthy", report.Healthy).
		Bool("bridge_api", report.BridgeAPIAvailable).
		Bool("data_fresh", report.DataFresh).
		Bool("accounts_syncing", report.AccountsSyncing).
		Bool("needs_full_restart", report.NeedsFullRestart).
		Msg("Health check complete")

	return report
}

func (c *Checker) checkBridge(ctx context.Context, details map[string]interface{}) bool {
	if err := c.bridge.Health(ctx); err != nil {
		details["bridge_error"] = err.Error()
		return false
	}
	return true
}

func (c *Checker) checkFreshness(now time.Time, details map[string]interface{}) bool {
	last, err := c.accounts.LastUpdatedAt()
	if err != nil {
		details["freshness_error"] = err.Error()
		return false
	}
	if last == nil {
		details["last_update"] = nil
		return false
	}

	age := now.Sub(*last)
	details["last_update"] = last.Format(time.RFC3339)
	details["data_age_seconds"] = int(age.Seconds())
	return age <= c.freshness
}

// checkSyncing decides whether account syncing works. Two paths:
//
// Zero-balance heuristic first: when every non-separation account reports a
// zero balance the bridge terminal is returning empty data even though its
// API answers. That failure mode survives a service restart, so it flags a
// full VPS restart. Separation accounts are excluded because they hold
// residual amounts that legitimately sit near zero.
//
// Otherwise syncing counts as working when at least half the accounts have
// a snapshot newer than the freshness threshold.
func (c *Checker) checkSyncing(now time.Time, details map[string]interface{}) (syncing, needsFullRestart bool) {
	all, err := c.accounts.GetAll()
	if err != nil {
		details["syncing_error"] = err.Error()
		return false, false
	}
	if len(all) == 0 {
		details["accounts_total"] = 0
		return false, false
	}

	tradingAccounts := 0
	zeroBalance := 0
	for _, a := range all {
		if funds.IsSeparation(a.Name) || funds.IsSeparation(a.Fund) {
			continue
		}
		tradingAccounts++
		if a.Balance == 0 {
			zeroBalance++
		}
	}

	details["accounts_total"] = len(all)
	details["zero_balance_accounts"] = zeroBalance

	if tradingAccounts > 0 && zeroBalance == tradingAccounts {
		return false, true
	}

	updated, err := c.accounts.CountUpdatedSince(now.Add(-c.freshness))
	if err != nil {
		details["syncing_error"] = err.Error()
		return false, false
	}

	details["accounts_updated_recently"] = updated
	return updated*2 >= len(all), false
}
