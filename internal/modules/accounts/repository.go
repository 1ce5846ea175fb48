package accounts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles account snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new accounts repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Upsert writes the full snapshot for one account, keyed by login.
// Last writer wins; there are never partial updates.
func (r *Repository) Upsert(a Account) error {
	var updatedAt interface{}
	if a.UpdatedAt != nil {
		updatedAt = a.UpdatedAt.Unix()
	}

	query := `
		INSERT INTO mt5_accounts (
			account, name, fund, target_amount, balance, equity,
			margin, margin_free, margin_level, open_positions, connected, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			name = excluded.name,
			fund = excluded.fund,
			target_amount = excluded.target_amount,
			balance = excluded.balance,
			equity = excluded.equity,
			margin = excluded.margin,
			margin_free = excluded.margin_free,
			margin_level = excluded.margin_level,
			open_positions = excluded.open_positions,
			connected = excluded.connected,
			updated_at = excluded.updated_at`

	_, err := r.db.Exec(query,
		a.Account, a.Name, a.Fund, a.TargetAmount, a.Balance, a.Equity,
		a.Margin, a.MarginFree, a.MarginLevel, a.OpenPositions, boolToInt(a.Connected), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %d: %w", a.Account, err)
	}

	return nil
}

// MarkDisconnected records that an account could not be reached. Identity
// fields are written so the account exists even before its first successful
// sync, but balances and updated_at are left alone: a failed login must not
// erase the last good snapshot or make it look fresh.
func (r *Repository) MarkDisconnected(account int64, name, fund string, targetAmount float64) error {
	query := `
		INSERT INTO mt5_accounts (
			account, name, fund, target_amount, balance, equity,
			margin, margin_free, margin_level, open_positions, connected, updated_at
		) VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0, 0, 0, NULL)
		ON CONFLICT(account) DO UPDATE SET
			name = excluded.name,
			fund = excluded.fund,
			target_amount = excluded.target_amount,
			connected = 0`

	if _, err := r.db.Exec(query, account, name, fund, targetAmount); err != nil {
		return fmt.Errorf("failed to mark account %d disconnected: %w", account, err)
	}

	return nil
}

// Get returns one account snapshot, or nil if it does not exist
func (r *Repository) Get(account int64) (*Account, error) {
	row := r.db.QueryRow(selectColumns+" FROM mt5_accounts WHERE account = ?", account)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", account, err)
	}
	return a, nil
}

// GetAll returns all account snapshots ordered by login
func (r *Repository) GetAll() ([]Account, error) {
	rows, err := r.db.Query(selectColumns + " FROM mt5_accounts ORDER BY account")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// LastUpdatedAt returns the newest updated_at across all snapshots.
// Returns nil when there are no snapshots or none has a timestamp.
func (r *Repository) LastUpdatedAt() (*time.Time, error) {
	var maxUnix sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(updated_at) FROM mt5_accounts").Scan(&maxUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query last update time: %w", err)
	}

	if !maxUnix.Valid {
		return nil, nil
	}

	t := time.Unix(maxUnix.Int64, 0).UTC()
	return &t, nil
}

// CountUpdatedSince counts accounts whose snapshot is newer than t.
// Rows with a NULL updated_at never count as synced.
func (r *Repository) CountUpdatedSince(t time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM mt5_accounts WHERE updated_at IS NOT NULL AND updated_at >= ?",
		t.Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recently updated accounts: %w", err)
	}
	return count, nil
}

// CountAll counts all account snapshots
func (r *Repository) CountAll() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM mt5_accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

const selectColumns = `SELECT account, name, fund, target_amount, balance, equity,
	margin, margin_free, margin_level, open_positions, connected, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var connected int
	var updatedAtUnix sql.NullInt64

	if err := row.Scan(
		&a.Account, &a.Name, &a.Fund, &a.TargetAmount, &a.Balance, &a.Equity,
		&a.Margin, &a.MarginFree, &a.MarginLevel, &a.OpenPositions, &connected, &updatedAtUnix,
	); err != nil {
		return nil, err
	}

	a.Connected = connected != 0
	if updatedAtUnix.Valid {
		t := time.Unix(updatedAtUnix.Int64, 0).UTC()
		a.UpdatedAt = &t
	}

	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
