package recalc

import (
	"database/sql"
	"fmt"
	"time"
)

// recalcManagerAllocations rewrites each account's capital allocation and
// its share of the fund it trades for.
func recalcManagerAllocations(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM manager_allocations`); err != nil {
		return 0, fmt.Errorf("failed to clear manager allocations: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO manager_allocations (account, fund, allocated, share_of_fund)
		SELECT
			account,
			fund,
			balance,
			CASE
				WHEN SUM(balance) OVER (PARTITION BY fund) > 0
				THEN balance / SUM(balance) OVER (PARTITION BY fund)
				ELSE 0
			END
		FROM mt5_accounts`)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild manager allocations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count allocation rows: %w", err)
	}

	return int(rows), nil
}
