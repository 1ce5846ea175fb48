package recalc

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/funds"
)

// recalcInvestmentPnL rewrites per-investment profit and loss. Investments
// linked to a synced MT5 account are valued at account equity; the rest are
// valued at principal plus accrued guaranteed interest.
func recalcInvestmentPnL(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM investment_pnl`); err != nil {
		return 0, fmt.Errorf("failed to clear investment pnl: %w", err)
	}

	rows, err := tx.Query(`
		SELECT i.id, i.fund_code, i.principal, i.deposit_date, a.equity
		FROM investments i
		LEFT JOIN mt5_accounts a ON a.account = i.mt5_account
		WHERE i.status = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	type valuation struct {
		id        string
		principal float64
		current   float64
	}

	var valuations []valuation
	for rows.Next() {
		var id, fund string
		var principal float64
		var depositUnix int64
		var equity sql.NullFloat64
		if err := rows.Scan(&id, &fund, &principal, &depositUnix, &equity); err != nil {
			return 0, fmt.Errorf("failed to scan investment: %w", err)
		}

		current := equity.Float64
		if !equity.Valid {
			deposit := time.Unix(depositUnix, 0).UTC()
			months := interestMonthsElapsed(deposit, now, funds.IncubationMonths, funds.InterestMonths())
			current = principal + principal*(funds.MonthlyRate(fund)/100)*float64(months)
		}

		valuations = append(valuations, valuation{id: id, principal: principal, current: current})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating investments: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO investment_pnl (investment_id, principal, current_value, pnl, pnl_pct)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare pnl insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range valuations {
		pnl := v.current - v.principal
		pct := 0.0
		if v.principal > 0 {
			pct = pnl / v.principal * 100
		}

		if _, err := stmt.Exec(v.id, v.principal, v.current, pnl, pct); err != nil {
			return 0, fmt.Errorf("failed to insert pnl for %s: %w", v.id, err)
		}
	}

	return len(valuations), nil
}
