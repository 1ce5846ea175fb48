package investments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository handles investment database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new investments repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "investments").Logger(),
	}
}

// Create inserts a new investment. An empty ID gets a generated UUID.
func (r *Repository) Create(inv Investment) (string, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = "active"
	}

	var account interface{}
	if inv.MT5Account != nil {
		account = *inv.MT5Account
	}

	_, err := r.db.Exec(`
		INSERT INTO investments (id, client_id, fund_code, principal, deposit_date, mt5_account, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ClientID, inv.FundCode, inv.Principal, inv.DepositDate.Unix(), account, inv.Status,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create investment: %w", err)
	}

	return inv.ID, nil
}

// Get returns one investment, or nil if it does not exist
func (r *Repository) Get(id string) (*Investment, error) {
	row := r.db.QueryRow(`
		SELECT id, client_id, fund_code, principal, deposit_date, mt5_account, status
		FROM investments WHERE id = ?`, id)

	inv, err := scanInvestment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investment %s: %w", id, err)
	}
	return inv, nil
}

// ListActive returns all active investments ordered by deposit date
func (r *Repository) ListActive() ([]Investment, error) {
	rows, err := r.db.Query(`
		SELECT id, client_id, fund_code, principal, deposit_date, mt5_account, status
		FROM investments
		WHERE status = 'active'
		ORDER BY deposit_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active investments: %w", err)
	}
	defer rows.Close()

	var result []Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		result = append(result, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvestment(row rowScanner) (*Investment, error) {
	var inv Investment
	var depositUnix int64
	var account sql.NullInt64

	if err := row.Scan(
		&inv.ID, &inv.ClientID, &inv.FundCode, &inv.Principal, &depositUnix, &account, &inv.Status,
	); err != nil {
		return nil, err
	}

	inv.DepositDate = time.Unix(depositUnix, 0).UTC()
	if account.Valid {
		inv.MT5Account = &account.Int64
	}

	return &inv, nil
}
