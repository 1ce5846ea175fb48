package recalc

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/investments"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema())
	require.NoError(t, err)

	return db
}

func seedInvestment(t *testing.T, db *sql.DB, id, fund string, principal float64, deposit time.Time, account *int64) {
	t.Helper()

	_, err := investments.NewRepository(db, zerolog.Nop()).Create(investments.Investment{
		ID:          id,
		ClientID:    "client_1",
		FundCode:    fund,
		Principal:   principal,
		DepositDate: deposit,
		MT5Account:  account,
	})
	require.NoError(t, err)
}

func seedAccount(t *testing.T, db *sql.DB, account int64, fund string, balance, equity float64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO mt5_accounts (account, name, fund, target_amount, balance, equity, margin, margin_free, margin_level, open_positions, connected, updated_at)
		VALUES (?, 'acct', ?, 0, ?, ?, 0, 0, 0, 0, 1, ?)`,
		account, fund, balance, equity, time.Now().Unix())
	require.NoError(t, err)
}

func seedDeal(t *testing.T, db *sql.DB, ticket, account int64, dealTime time.Time, dealType, entry string, profit float64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO mt5_deals (ticket, account, order_id, deal_time, deal_type, entry, symbol, volume, price, profit, commission, swap, position_id, comment)
		VALUES (?, ?, 0, ?, ?, ?, 'EURUSD', 0.1, 1.1, ?, 0, 0, 0, '')`,
		ticket, account, dealTime.Unix(), dealType, entry, profit)
	require.NoError(t, err)
}

func newTestSequencer(db *sql.DB, now time.Time) *Sequencer {
	s := NewSequencer(db, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestRun_AllPassesCommit(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deposit := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	account := int64(886557)
	seedAccount(t, db, account, "FIDUS BALANCE", 100000, 101500)
	seedInvestment(t, db, "inv_1", "FIDUS BALANCE", 100000, deposit, &account)
	seedInvestment(t, db, "inv_2", "FIDUS CORE", 50000, deposit, nil)

	seq := newTestSequencer(db, now)

	var progressed []string
	runID, summaries, err := seq.Run(context.Background(), func(completed, total int, pass string) {
		progressed = append(progressed, pass)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.Len(t, summaries, 6)
	assert.Equal(t, []string{
		"cash_flow_projections", "commission_splits", "manager_performance",
		"investment_pnl", "manager_allocations", "fund_distribution",
	}, progressed)

	// 2 investments x 14 contract months
	var projections int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cash_flow_projections`).Scan(&projections))
	assert.Equal(t, 28, projections)
	assert.Equal(t, 28, summaries[0].Rows)

	var splits, pnl, allocations, distribution int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM commission_splits`).Scan(&splits))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM investment_pnl`).Scan(&pnl))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM manager_allocations`).Scan(&allocations))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM fund_distribution`).Scan(&distribution))
	assert.Equal(t, 2, splits)
	assert.Equal(t, 2, pnl)
	assert.Equal(t, 1, allocations)
	assert.Equal(t, 1, distribution)
}

func TestRun_FailedPassRollsBackEarlierPasses(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deposit := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	seedInvestment(t, db, "inv_1", "FIDUS BALANCE", 100000, deposit, nil)

	// Pre-existing derived row from an earlier committed run. It must
	// survive a failed run untouched.
	_, err := db.Exec(`
		INSERT INTO cash_flow_projections
			(investment_id, month_index, projection_date, interest_amount, cumulative_interest, projected_balance)
		VALUES ('stale_inv', 1, ?, 0, 0, 42000)`, deposit.Unix())
	require.NoError(t, err)

	seq := newTestSequencer(db, now)

	boom := errors.New("boom")
	seq.passes[3].run = func(tx *sql.Tx, now time.Time) (int, error) {
		return 0, boom
	}

	var progressed int
	_, summaries, err := seq.Run(context.Background(), func(completed, total int, pass string) {
		progressed = completed
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "investment_pnl")
	assert.Nil(t, summaries)
	assert.Equal(t, 3, progressed)

	// A fresh read must show the pre-run state: the stale row intact and
	// none of the rows written by passes one through three.
	var projections int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cash_flow_projections`).Scan(&projections))
	assert.Equal(t, 1, projections)

	var staleBalance float64
	require.NoError(t, db.QueryRow(`
		SELECT projected_balance FROM cash_flow_projections WHERE investment_id = 'stale_inv'`).
		Scan(&staleBalance))
	assert.Equal(t, 42000.0, staleBalance)

	var splits, performance int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM commission_splits`).Scan(&splits))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM manager_performance`).Scan(&performance))
	assert.Equal(t, 0, splits)
	assert.Equal(t, 0, performance)
}

func TestRun_ProjectionsRespectIncubation(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deposit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedInvestment(t, db, "inv_1", "FIDUS BALANCE", 100000, deposit, nil)

	seq := newTestSequencer(db, now)
	_, _, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cash_flow_projections`).Scan(&rows))
	assert.Equal(t, 14, rows)

	// Months one and two fall inside incubation and pay nothing.
	var incubationInterest float64
	require.NoError(t, db.QueryRow(`
		SELECT SUM(interest_amount) FROM cash_flow_projections WHERE month_index <= 2`).
		Scan(&incubationInterest))
	assert.Equal(t, 0.0, incubationInterest)

	// FIDUS BALANCE pays 30%/12 = 2.5% monthly on principal afterwards.
	var month3Interest float64
	require.NoError(t, db.QueryRow(`
		SELECT interest_amount FROM cash_flow_projections WHERE month_index = 3`).
		Scan(&month3Interest))
	assert.InDelta(t, 2500.0, month3Interest, 0.001)

	var finalBalance float64
	require.NoError(t, db.QueryRow(`
		SELECT projected_balance FROM cash_flow_projections WHERE month_index = 14`).
		Scan(&finalBalance))
	assert.InDelta(t, 130000.0, finalBalance, 0.001)
}

func TestRun_CommissionSplitShares(t *testing.T) {
	db := setupTestDB(t)
	// Deposited 2026-01-01, now 2026-08-01: 7 whole months elapsed,
	// minus 2 incubation months leaves 5 interest-bearing months.
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deposit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedInvestment(t, db, "inv_1", "FIDUS BALANCE", 100000, deposit, nil)

	seq := newTestSequencer(db, now)
	_, _, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)

	var gross, client, manager, platform float64
	require.NoError(t, db.QueryRow(`
		SELECT gross_interest, client_share, manager_fee, platform_fee
		FROM commission_splits WHERE investment_id = 'inv_1'`).
		Scan(&gross, &client, &manager, &platform))

	assert.InDelta(t, 12500.0, gross, 0.001)
	assert.InDelta(t, 1250.0, manager, 0.001)
	assert.InDelta(t, 625.0, platform, 0.001)
	assert.InDelta(t, gross, client+manager+platform, 0.001)
}

func TestRun_PerformanceAndDistribution(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	seedAccount(t, db, 886557, "FIDUS BALANCE", 75000, 75000)
	seedAccount(t, db, 886602, "FIDUS BALANCE", 25000, 25000)
	seedAccount(t, db, 891234, "FIDUS CORE", 50000, 50000)

	jan := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	seedDeal(t, db, 1, 886557, jan, "buy", "out", 100)
	seedDeal(t, db, 2, 886557, jan, "sell", "out", -40)
	seedDeal(t, db, 3, 886557, feb, "buy", "out", 200)
	// Deposits do not count as trades.
	seedDeal(t, db, 4, 886557, feb, "balance", "in", 75000)

	seq := newTestSequencer(db, now)
	_, _, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)

	var totalProfit, winRate, meanReturn float64
	var totalDeals int
	require.NoError(t, db.QueryRow(`
		SELECT total_profit, total_deals, win_rate, mean_return
		FROM manager_performance WHERE account = 886557`).
		Scan(&totalProfit, &totalDeals, &winRate, &meanReturn))

	assert.InDelta(t, 260.0, totalProfit, 0.001)
	assert.Equal(t, 3, totalDeals)
	assert.InDelta(t, 2.0/3.0, winRate, 0.001)
	// January nets 60, February 200, mean 130.
	assert.InDelta(t, 130.0, meanReturn, 0.001)

	var share float64
	require.NoError(t, db.QueryRow(`
		SELECT share_of_fund FROM manager_allocations WHERE account = 886557`).
		Scan(&share))
	assert.InDelta(t, 0.75, share, 0.001)

	var balanceTotal, balancePct float64
	var balanceAccounts int
	require.NoError(t, db.QueryRow(`
		SELECT total_allocated, pct_of_total, accounts
		FROM fund_distribution WHERE fund = 'FIDUS BALANCE'`).
		Scan(&balanceTotal, &balancePct, &balanceAccounts))
	assert.InDelta(t, 100000.0, balanceTotal, 0.001)
	assert.InDelta(t, 100000.0/150000.0*100, balancePct, 0.001)
	assert.Equal(t, 2, balanceAccounts)
}

func TestRun_PnLPrefersLinkedAccountEquity(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deposit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	account := int64(886557)
	seedAccount(t, db, account, "FIDUS BALANCE", 100000, 108000)
	seedInvestment(t, db, "linked", "FIDUS BALANCE", 100000, deposit, &account)
	seedInvestment(t, db, "unlinked", "FIDUS BALANCE", 100000, deposit, nil)

	seq := newTestSequencer(db, now)
	_, _, err := seq.Run(context.Background(), nil)
	require.NoError(t, err)

	var linkedValue, linkedPct float64
	require.NoError(t, db.QueryRow(`
		SELECT current_value, pnl_pct FROM investment_pnl WHERE investment_id = 'linked'`).
		Scan(&linkedValue, &linkedPct))
	assert.InDelta(t, 108000.0, linkedValue, 0.001)
	assert.InDelta(t, 8.0, linkedPct, 0.001)

	// Five interest months at 2.5% accrue 12.5% on the unlinked one.
	var unlinkedValue float64
	require.NoError(t, db.QueryRow(`
		SELECT current_value FROM investment_pnl WHERE investment_id = 'unlinked'`).
		Scan(&unlinkedValue))
	assert.InDelta(t, 112500.0, unlinkedValue, 0.001)
}

func TestInterestMonthsElapsed(t *testing.T) {
	deposit := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before deposit", deposit.AddDate(0, 0, -1), 0},
		{"inside incubation", deposit.AddDate(0, 1, 10), 0},
		{"first interest month", deposit.AddDate(0, 3, 0), 1},
		{"partial month not counted", deposit.AddDate(0, 3, 0).AddDate(0, 0, 20), 1},
		{"clamped to contract window", deposit.AddDate(5, 0, 0), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interestMonthsElapsed(deposit, tt.now, 2, 12)
			assert.Equal(t, tt.want, got)
		})
	}
}
