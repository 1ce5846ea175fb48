package recalc

import (
	"database/sql"
	"fmt"
	"time"
)

// recalcFundDistribution rewrites the per-fund capital totals. It reads the
// manager allocations pass output, which is why it runs last.
func recalcFundDistribution(tx *sql.Tx, now time.Time) (int, error) {
	if _, err := tx.Exec(`DELETE FROM fund_distribution`); err != nil {
		return 0, fmt.Errorf("failed to clear fund distribution: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO fund_distribution (fund, total_allocated, pct_of_total, accounts)
		SELECT
			fund,
			SUM(allocated),
			CASE
				WHEN (SELECT SUM(allocated) FROM manager_allocations) > 0
				THEN SUM(allocated) / (SELECT SUM(allocated) FROM manager_allocations) * 100
				ELSE 0
			END,
			COUNT(*)
		FROM manager_allocations
		GROUP BY fund`)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild fund distribution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count distribution rows: %w", err)
	}

	return int(rows), nil
}
