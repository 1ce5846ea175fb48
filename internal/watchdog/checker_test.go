package watchdog

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
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
)

type fakeBridge struct {
	err error
}

func (f *fakeBridge) Health(ctx context.Context) error {
	return f.err
}

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

func seedSnapshot(t *testing.T, repo *accounts.Repository, account int64, name string, balance float64, updatedAt time.Time) {
	t.Helper()

	require.NoError(t, repo.Upsert(accounts.Account{
		Account:   account,
		Name:      name,
		Fund:      "FIDUS BALANCE",
		Balance:   balance,
		Equity:    balance,
		Connected: true,
		UpdatedAt: &updatedAt,
	}))
}

func newTestChecker(t *testing.T, db *sql.DB, bridge bridgeProber, now time.Time) *Checker {
	t.Helper()

	repo := accounts.NewRepository(db, zerolog.Nop())
	c := NewChecker(bridge, repo, 15*time.Minute, zerolog.Nop())
	c.now = func() time.Time { return now }
	return c
}

func TestCheck_AllProbesPass(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	repo := accounts.NewRepository(db, zerolog.Nop())
	seedSnapshot(t, repo, 886557, "Manager A", 100000, now.Add(-2*time.Minute))
	seedSnapshot(t, repo, 886602, "Manager B", 50000, now.Add(-3*time.Minute))

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	assert.True(t, report.Healthy)
	assert.True(t, report.BridgeAPIAvailable)
	assert.True(t, report.DataFresh)
	assert.True(t, report.AccountsSyncing)
	assert.False(t, report.NeedsFullRestart)
}

func TestCheck_BridgeDown(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	repo := accounts.NewRepository(db, zerolog.Nop())
	seedSnapshot(t, repo, 886557, "Manager A", 100000, now.Add(-2*time.Minute))

	checker := newTestChecker(t, db, &fakeBridge{err: errors.New("connection refused")}, now)
	report := checker.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.False(t, report.BridgeAPIAvailable)
	assert.Equal(t, "connection refused", report.Details["bridge_error"])
}

func TestCheck_StaleDataFailsFreshness(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	repo := accounts.NewRepository(db, zerolog.Nop())
	seedSnapshot(t, repo, 886557, "Manager A", 100000, now.Add(-20*time.Minute))

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.True(t, report.BridgeAPIAvailable)
	assert.False(t, report.DataFresh)
	assert.False(t, report.AccountsSyncing) // also stale: no recent updates
	assert.False(t, report.NeedsFullRestart)
}

func TestCheck_EmptyDatabaseIsUnhealthyWithoutRestartFlag(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.False(t, report.DataFresh)
	assert.False(t, report.AccountsSyncing)
	assert.False(t, report.NeedsFullRestart)
}

func TestCheck_AllZeroBalancesFlagsFullRestart(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Five trading accounts at zero, plus one separation account holding
	// residual funds. The separation account must not mask the failure.
	repo := accounts.NewRepository(db, zerolog.Nop())
	for i := int64(0); i < 5; i++ {
		seedSnapshot(t, repo, 886557+i, "Manager", 0, now.Add(-1*time.Minute))
	}
	seedSnapshot(t, repo, 900001, "INTEREST_SEPARATION", 500, now.Add(-1*time.Minute))

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.False(t, report.AccountsSyncing)
	assert.True(t, report.NeedsFullRestart)
	assert.Equal(t, 5, report.Details["zero_balance_accounts"])
}

func TestCheck_SomeNonZeroBalanceAvoidsRestartFlag(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	repo := accounts.NewRepository(db, zerolog.Nop())
	seedSnapshot(t, repo, 886557, "Manager A", 0, now.Add(-1*time.Minute))
	seedSnapshot(t, repo, 886602, "Manager B", 50000, now.Add(-1*time.Minute))

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	assert.False(t, report.NeedsFullRestart)
	assert.True(t, report.AccountsSyncing)
}

func TestCheck_SyncingRequiresHalfTheAccountsFresh(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	repo := accounts.NewRepository(db, zerolog.Nop())
	seedSnapshot(t, repo, 886557, "Manager A", 100000, now.Add(-2*time.Minute))
	seedSnapshot(t, repo, 886602, "Manager B", 50000, now.Add(-2*time.Hour))
	seedSnapshot(t, repo, 886603, "Manager C", 25000, now.Add(-2*time.Hour))
	seedSnapshot(t, repo, 886604, "Manager D", 25000, now.Add(-2*time.Hour))

	checker := newTestChecker(t, db, &fakeBridge{}, now)
	report := checker.Check(context.Background())

	// 1 of 4 recently updated: below the 50% bar.
	assert.False(t, report.AccountsSyncing)
	assert.Equal(t, 1, report.Details["accounts_updated_recently"])

	seedSnapshot(t, repo, 886602, "Manager B", 50000, now.Add(-1*time.Minute))
	report = checker.Check(context.Background())

	// 2 of 4: exactly at the bar.
	assert.True(t, report.AccountsSyncing)
}
