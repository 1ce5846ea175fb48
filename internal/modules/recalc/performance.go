package recalc

import (
	"database/sql"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
)

// recalcManagerPerformance rewrites per-account trading statistics from the
// deal history: totals, win rate over closing deals, and the mean and
// standard deviation of monthly trading profit.
func recalcManagerPerformance(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM manager_performance`); err != nil {
		return 0, fmt.Errorf("failed to clear manager performance: %w", err)
	}

	rows, err := tx.Query(`SELECT account FROM mt5_accounts ORDER BY account`)
	if err != nil {
		return 0, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []int64
	for rows.Next() {
		var account int64
		if err := rows.Scan(&account); err != nil {
			return 0, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating accounts: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO manager_performance (account, total_profit, total_deals, win_rate, mean_return, return_stddev)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare performance insert: %w", err)
	}
	defer stmt.Close()

	for _, account := range accounts {
		var totalProfit float64
		var totalDeals, closingDeals, winningDeals int
		err := tx.QueryRow(`
			SELECT
				COALESCE(SUM(profit + commission + swap), 0),
				COUNT(*),
				COALESCE(SUM(CASE WHEN entry = 'out' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN entry = 'out' AND profit > 0 THEN 1 ELSE 0 END), 0)
			FROM mt5_deals
			WHERE account = ? AND deal_type IN ('buy', 'sell')`, account).
			Scan(&totalProfit, &totalDeals, &closingDeals, &winningDeals)
		if err != nil {
			return 0, fmt.Errorf("failed to aggregate deals for account %d: %w", account, err)
		}

		winRate := 0.0
		if closingDeals > 0 {
			winRate = float64(winningDeals) / float64(closingDeals)
		}

		months, err := deals.MonthlyNetProfits(tx, account)
		if err != nil {
			return 0, err
		}
		monthly := make([]float64, len(months))
		for i, m := range months {
			monthly[i] = m.Profit
		}

		meanReturn := 0.0
		stddev := 0.0
		if len(monthly) > 0 {
			meanReturn = stat.Mean(monthly, nil)
		}
		if len(monthly) > 1 {
			stddev = stat.StdDev(monthly, nil)
		}

		if _, err := stmt.Exec(account, totalProfit, totalDeals, winRate, meanReturn, stddev); err != nil {
			return 0, fmt.Errorf("failed to insert performance for account %d: %w", account, err)
		}
	}

	return len(accounts), nil
}
