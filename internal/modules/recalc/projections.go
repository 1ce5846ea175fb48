package recalc

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/funds"
)

// recalcCashFlowProjections rewrites the month-by-month interest schedule for
// every active investment: one row per contract month, zero interest during
// incubation, simple monthly interest afterwards.
func recalcCashFlowProjections(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM cash_flow_projections`); err != nil {
		return 0, fmt.Errorf("failed to clear projections: %w", err)
	}

	rows, err := tx.Query(`
		SELECT id, fund_code, principal, deposit_date
		FROM investments
		WHERE status = 'active'
		ORDER BY deposit_date`)
	if err != nil {
		return 0, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	type investment struct {
		id      string
		fund    string
		amount  float64
		deposit time.Time
	}

	var invs []investment
	for rows.Next() {
		var inv investment
		var depositUnix int64
		if err := rows.Scan(&inv.id, &inv.fund, &inv.amount, &depositUnix); err != nil {
			return 0, fmt.Errorf("failed to scan investment: %w", err)
		}
		inv.deposit = time.Unix(depositUnix, 0).UTC()
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating investments: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cash_flow_projections
			(investment_id, month_index, projection_date, interest_amount, cumulative_interest, projected_balance)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare projection insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, inv := range invs {
		monthlyRate := funds.MonthlyRate(inv.fund) / 100
		cumulative := 0.0

		for month := 1; month <= funds.ContractMonths; month++ {
			interest := 0.0
			if month > funds.IncubationMonths {
				interest = inv.amount * monthlyRate
			}
			cumulative += interest

			projectionDate := inv.deposit.AddDate(0, month, 0)
			if _, err := stmt.Exec(
				inv.id, month, projectionDate.Unix(), interest, cumulative, inv.amount+cumulative,
			); err != nil {
				return 0, fmt.Errorf("failed to insert projection for %s month %d: %w", inv.id, month, err)
			}
			inserted++
		}
	}

	return inserted, nil
}
