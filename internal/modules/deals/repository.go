package deals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles deal history database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new deals repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "deals").Logger(),
	}
}

const upsertQuery = `
	INSERT INTO mt5_deals (
		ticket, account, order_id, deal_time, deal_type, entry, symbol,
		volume, price, profit, commission, swap, position_id, comment
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticket) DO UPDATE SET
		account = excluded.account,
		order_id = excluded.order_id,
		deal_time = excluded.deal_time,
		deal_type = excluded.deal_type,
		entry = excluded.entry,
		symbol = excluded.symbol,
		volume = excluded.volume,
		price = excluded.price,
		profit = excluded.profit,
		commission = excluded.commission,
		swap = excluded.swap,
		position_id = excluded.position_id,
		comment = excluded.comment`

// Upsert writes one deal keyed by ticket. Re-syncing the same date window
// any number of times leaves the row count unchanged.
func (r *Repository) Upsert(d Deal) error {
	_, err := r.db.Exec(upsertQuery,
		d.Ticket, d.Account, d.OrderID, d.Time.Unix(), d.Type, d.Entry, d.Symbol,
		d.Volume, d.Price, d.Profit, d.Commission, d.Swap, d.PositionID, d.Comment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deal %d: %w", d.Ticket, err)
	}
	return nil
}

// UpsertBatch writes a batch of deals in one transaction
func (r *Repository) UpsertBatch(batch []Deal) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deal batch transaction: %w", err)
	}

	stmt, err := tx.Prepare(upsertQuery)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare deal upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range batch {
		if _, err := stmt.Exec(
			d.Ticket, d.Account, d.OrderID, d.Time.Unix(), d.Type, d.Entry, d.Symbol,
			d.Volume, d.Price, d.Profit, d.Commission, d.Swap, d.PositionID, d.Comment,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert deal %d in batch: %w", d.Ticket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deal batch: %w", err)
	}

	return nil
}

// HasDealsSince reports whether the account has any deal newer than t.
// The sync service uses this to decide whether the one-time backfill
// already ran for an account.
func (r *Repository) HasDealsSince(account int64, t time.Time) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM mt5_deals WHERE account = ? AND deal_time >= ?",
		account, t.Unix(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent deals for account %d: %w", account, err)
	}
	return count > 0, nil
}

// CountByAccount counts all deals recorded for an account
func (r *Repository) CountByAccount(account int64) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM mt5_deals WHERE account = ?", account).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deals for account %d: %w", account, err)
	}
	return count, nil
}

// ListByAccount returns deals for an account within [from, to], newest first
func (r *Repository) ListByAccount(account int64, from, to time.Time) ([]Deal, error) {
	rows, err := r.db.Query(`
		SELECT ticket, account, order_id, deal_time, deal_type, entry, symbol,
			volume, price, profit, commission, swap, position_id, comment
		FROM mt5_deals
		WHERE account = ? AND deal_time >= ? AND deal_time <= ?
		ORDER BY deal_time DESC`,
		account, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deals for account %d: %w", account, err)
	}
	defer rows.Close()

	var result []Deal
	for rows.Next() {
		var d Deal
		var dealTime int64
		if err := rows.Scan(
			&d.Ticket, &d.Account, &d.OrderID, &dealTime, &d.Type, &d.Entry, &d.Symbol,
			&d.Volume, &d.Price, &d.Profit, &d.Commission, &d.Swap, &d.PositionID, &d.Comment,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		d.Time = time.Unix(dealTime, 0).UTC()
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}

	return result, nil
}

// Querier is the query subset shared by *sql.DB and *sql.Tx, so the monthly
// aggregation below can run standalone or inside a larger transaction.
type Querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// MonthlyNetProfits aggregates trading profit net of commission and swap per
// calendar month for an account, oldest month first. Only trade rows count:
// balance operations carry profit too, so the filter is on deal_type, not on
// profit != 0.
func MonthlyNetProfits(q Querier, account int64) ([]MonthlyProfit, error) {
	rows, err := q.Query(`
		SELECT strftime('%Y-%m', deal_time, 'unixepoch') AS month,
			SUM(profit + commission + swap)
		FROM mt5_deals
		WHERE account = ? AND deal_type IN ('buy', 'sell')
		GROUP BY month
		ORDER BY month`,
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly profits for account %d: %w", account, err)
	}
	defer rows.Close()

	var result []MonthlyProfit
	for rows.Next() {
		var mp MonthlyProfit
		if err := rows.Scan(&mp.Month, &mp.Profit); err != nil {
			return nil, fmt.Errorf("failed to scan monthly profit: %w", err)
		}
		result = append(result, mp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly profits: %w", err)
	}

	return result, nil
}

// MonthlyProfits runs the monthly aggregation on the repository's own handle.
// The nightly performance rewrite runs the same query through
// MonthlyNetProfits inside its transaction.
func (r *Repository) MonthlyProfits(account int64) ([]MonthlyProfit, error) {
	return MonthlyNetProfits(r.db, account)
}

// TradeStats summarizes an account's closed trades
type TradeStats struct {
	TotalProfit float64 `json:"total_profit"`
	TotalDeals  int     `json:"total_deals"`
	WinRate     float64 `json:"win_rate"` // Fraction of profitable closing deals, 0..1
}

// Stats computes totals and win rate over an account's closing deals
func (r *Repository) Stats(account int64) (*TradeStats, error) {
	var stats TradeStats
	var wins int
	err := r.db.QueryRow(`
		SELECT
			COALESCE(SUM(profit), 0),
			COUNT(*),
			COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0)
		FROM mt5_deals
		WHERE account = ? AND deal_type IN ('buy', 'sell') AND entry = 'out'`,
		account,
	).Scan(&stats.TotalProfit, &stats.TotalDeals, &wins)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trade stats for account %d: %w", account, err)
	}

	if stats.TotalDeals > 0 {
		stats.WinRate = float64(wins) / float64(stats.TotalDeals)
	}

	return &stats, nil
}
