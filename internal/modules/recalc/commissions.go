package recalc

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/funds"
)

const (
	managerFeeShare  = 0.10
	platformFeeShare = 0.05
)

// recalcCommissionSplits rewrites the fee split of the interest accrued so
// far on every active investment. The manager takes 10% and the platform 5%
// of gross interest; the client keeps the remainder.
func recalcCommissionSplits(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM commission_splits`); err != nil {
		return 0, fmt.Errorf("failed to clear commission splits: %w", err)
	}

	rows, err := tx.Query(`
		SELECT id, fund_code, principal, deposit_date
		FROM investments
		WHERE status = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	type accrual struct {
		id    string
		gross float64
	}

	var accruals []accrual
	for rows.Next() {
		var id, fund string
		var principal float64
		var depositUnix int64
		if err := rows.Scan(&id, &fund, &principal, &depositUnix); err != nil {
			return 0, fmt.Errorf("failed to scan investment: %w", err)
		}

		deposit := time.Unix(depositUnix, 0).UTC()
		months := interestMonthsElapsed(deposit, now, funds.IncubationMonths, funds.InterestMonths())
		gross := principal * (funds.MonthlyRate(fund) / 100) * float64(months)
		accruals = append(accruals, accrual{id: id, gross: gross})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating investments: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO commission_splits (investment_id, gross_interest, client_share, manager_fee, platform_fee)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare commission insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range accruals {
		managerFee := a.gross * managerFeeShare
		platformFee := a.gross * platformFeeShare
		clientShare := a.gross - managerFee - platformFee

		if _, err := stmt.Exec(a.id, a.gross, clientShare, managerFee, platformFee); err != nil {
			return 0, fmt.Errorf("failed to insert commission split for %s: %w", a.id, err)
		}
	}

	return len(accruals), nil
}
