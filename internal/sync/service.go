// Package sync pulls account snapshots and deal history from the MT5 bridge
// into the operations database. Accounts are processed strictly one at a
// time: the bridge terminal is stateful and concurrent logins corrupt its
// session.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/mt5"
)

// CycleResult summarizes one full pass over the account roster
type CycleResult struct {
	Accounts   int           `json:"accounts"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	DealsAdded int           `json:"deals_added"`
	Duration   time.Duration `json:"duration_ms"`
}

// Service syncs the MT5 account roster into the operations database
type Service struct {
	terminal mt5.Terminal
	accounts *accounts.Repository
	deals    *deals.Repository
	roster   []config.AccountCredentials
	log      zerolog.Logger

	accountDelay time.Duration
	backfillDays int
	dealWindow   time.Duration

	// Injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewService creates a sync service over the given terminal and roster
func NewService(
	terminal mt5.Terminal,
	accountRepo *accounts.Repository,
	dealRepo *deals.Repository,
	roster []config.AccountCredentials,
	cfg *config.Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		terminal:     terminal,
		accounts:     accountRepo,
		deals:        dealRepo,
		roster:       roster,
		log:          log.With().Str("component", "sync").Logger(),
		accountDelay: cfg.AccountDelay,
		backfillDays: cfg.BackfillDays,
		dealWindow:   cfg.DealWindow,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// RunCycle processes every roster account in order. One account failing does
// not stop the cycle; its error is logged and the next account proceeds.
// RunCycle itself only errors when the context is cancelled mid-cycle.
func (s *Service) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := s.now()
	result := &CycleResult{Accounts: len(s.roster)}

	s.log.Info().Int("accounts", len(s.roster)).Msg("Starting sync cycle")

	for i, creds := range s.roster {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync cycle cancelled: %w", err)
		}

		added, err := s.syncAccount(ctx, creds)
		if err != nil {
			result.Failed++
			s.log.Error().
				Int64("account", creds.Login).
				Err(err).
				Msg("Account sync failed, continuing with next account")
		} else {
			result.Succeeded++
			result.DealsAdded += added
		}

		// Pacing between accounts keeps the bridge terminal stable.
		if i < len(s.roster)-1 {
			s.sleep(s.accountDelay)
		}
	}

	result.Duration = s.now().Sub(start)
	s.log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("deals_added", result.DealsAdded).
		Dur("duration", result.Duration).
		Msg("Sync cycle complete")

	return result, nil
}

// syncAccount logs one account in, stores its snapshot and pulls its deals.
// A failed login still writes a disconnected snapshot so the account's state
// is visible downstream.
func (s *Service) syncAccount(ctx context.Context, creds config.AccountCredentials) (int, error) {
	if err := s.terminal.Login(ctx, creds.Login, creds.Password, creds.Server); err != nil {
		if markErr := s.accounts.MarkDisconnected(creds.Login, creds.Name, creds.Fund, creds.TargetAmount); markErr != nil {
			s.log.Error().Int64("account", creds.Login).Err(markErr).
				Msg("Failed to mark account disconnected")
		}
		return 0, fmt.Errorf("login failed for account %d: %w", creds.Login, err)
	}

	info, err := s.terminal.AccountInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read account info for %d: %w", creds.Login, err)
	}

	positions, err := s.terminal.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read positions for %d: %w", creds.Login, err)
	}

	now := s.now().UTC()
	snapshot := accounts.Account{
		Account:       creds.Login,
		Name:          creds.Name,
		Fund:          creds.Fund,
		TargetAmount:  creds.TargetAmount,
		Balance:       info.Balance,
		Equity:        info.Equity,
		Margin:        info.Margin,
		MarginFree:    info.MarginFree,
		MarginLevel:   info.MarginLevel,
		OpenPositions: len(positions),
		Connected:     true,
		UpdatedAt:     &now,
	}
	if err := s.accounts.Upsert(snapshot); err != nil {
		return 0, fmt.Errorf("failed to store snapshot for %d: %w", creds.Login, err)
	}

	added, err := s.syncDeals(ctx, creds.Login)
	if err != nil {
		return 0, err
	}

	s.log.Debug().
		Int64("account", creds.Login).
		Float64("balance", info.Balance).
		Int("deals_added", added).
		Msg("Account synced")

	return added, nil
}

// syncDeals pulls the historical backfill window once per account, then the
// rolling incremental window on every cycle. The backfill is skipped as soon
// as the account has any recent deal on record, making re-runs cheap.
func (s *Service) syncDeals(ctx context.Context, account int64) (int, error) {
	now := s.now().UTC()

	recent, err := s.deals.HasDealsSince(account, now.AddDate(0, 0, -7))
	if err != nil {
		return 0, fmt.Errorf("failed to check deal freshness for %d: %w", account, err)
	}

	from := now.Add(-s.dealWindow)
	if !recent {
		from = now.AddDate(0, 0, -s.backfillDays)
		s.log.Info().
			Int64("account", account).
			Int("days", s.backfillDays).
			Msg("No recent deals on record, running historical backfill")
	}

	pulled, err := s.terminal.DealsInRange(ctx, from, now)
	if err != nil {
		return 0, fmt.Errorf("failed to pull deals for %d: %w", account, err)
	}
	if len(pulled) == 0 {
		return 0, nil
	}

	batch := make([]deals.Deal, 0, len(pulled))
	for _, d := range pulled {
		batch = append(batch, deals.Deal{
			Ticket:     d.Ticket,
			Account:    account,
			OrderID:    d.Order,
			Time:       d.Time,
			Type:       d.Type,
			Entry:      d.Entry,
			Symbol:     d.Symbol,
			Volume:     d.Volume,
			Price:      d.Price,
			Profit:     d.Profit,
			Commission: d.Commission,
			Swap:       d.Swap,
			PositionID: d.PositionID,
			Comment:    d.Comment,
		})
	}

	if err := s.deals.UpsertBatch(batch); err != nil {
		return 0, fmt.Errorf("failed to store deals for %d: %w", account, err)
	}

	return len(batch), nil
}
