// Package recalc recomputes derived financial aggregates after
// administrative changes: cash flow projections, commission splits, manager
// performance, investment P&L, manager allocations and fund distribution.
//
// Every pass is a full recompute that deletes and rewrites its own derived
// table. All passes share one transaction; a failure in any pass rolls back
// the entire run. There is no partial success and no retry.
package recalc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
)

// Summary describes one completed pass
type Summary struct {
	Pass     string        `json:"pass"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ms"`
}

// ProgressFunc is invoked between passes with completion counts
type ProgressFunc func(completed, total int, pass string)

type pass struct {
	name string
	run  func(tx *sql.Tx, now time.Time) (int, error)
}

// Sequencer runs the ordered recalculation passes
type Sequencer struct {
	db     *sql.DB
	log    zerolog.Logger
	now    func() time.Time
	passes []pass
}

// NewSequencer creates a sequencer with the fixed pass order. The order is
// significant: fund distribution reads the allocation totals written by the
// manager allocations pass.
func NewSequencer(db *sql.DB, log zerolog.Logger) *Sequencer {
	s := &Sequencer{
		db:  db,
		log: log.With().Str("component", "recalc").Logger(),
		now: time.Now,
	}
	s.passes = []pass{
		{name: "cash_flow_projections", run: recalcCashFlowProjections},
		{name: "commission_splits", run: recalcCommissionSplits},
		{name: "manager_performance", run: recalcManagerPerformance},
		{name: "investment_pnl", run: recalcInvestmentPnL},
		{name: "manager_allocations", run: recalcManagerAllocations},
		{name: "fund_distribution", run: recalcFundDistribution},
	}
	return s
}

// Run executes all passes inside one transaction and returns the run id and
// per-pass summaries. Pass errors propagate so the transaction rolls back
// everything executed so far.
func (s *Sequencer) Run(ctx context.Context, progress ProgressFunc) (string, []Summary, error) {
	runID := uuid.NewString()
	now := s.now().UTC()

	s.log.Info().Str("run_id", runID).Int("passes", len(s.passes)).Msg("Starting recalculation")

	var summaries []Summary
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		for i, p := range s.passes {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("recalculation cancelled before pass %s: %w", p.name, err)
			}

			start := time.Now()
			rows, err := p.run(tx, now)
			if err != nil {
				// Deliberately not swallowed: the caller's transaction
				// context must roll back the whole batch.
				return fmt.Errorf("pass %s failed: %w", p.name, err)
			}

			summary := Summary{Pass: p.name, Rows: rows, Duration: time.Since(start)}
			summaries = append(summaries, summary)

			s.log.Info().
				Str("run_id", runID).
				Str("pass", p.name).
				Int("rows", rows).
				Dur("duration", summary.Duration).
				Msg("Recalculation pass complete")

			if progress != nil {
				progress(i+1, len(s.passes), p.name)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Str("run_id", runID).Err(err).Msg("Recalculation rolled back")
		return runID, nil, err
	}

	s.log.Info().Str("run_id", runID).Msg("Recalculation committed")
	return runID, summaries, nil
}

// interestMonthsElapsed returns how many interest-bearing months have fully
// elapsed for a deposit at time now: whole months since deposit, minus the
// incubation period, clamped to the contract's interest window.
func interestMonthsElapsed(deposit, now time.Time, incubationMonths, interestMonths int) int {
	if now.Before(deposit) {
		return 0
	}

	months := 0
	cursor := deposit
	for {
		next := cursor.AddDate(0, 1, 0)
		if next.After(now) {
			break
		}
		cursor = next
		months++
	}

	elapsed := months - incubationMonths
	if elapsed < 0 {
		return 0
	}
	if elapsed > interestMonths {
		return interestMonths
	}
	return elapsed
}
