package accounts

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE mt5_accounts (
			account         INTEGER PRIMARY KEY,
			name            TEXT NOT NULL DEFAULT '',
			fund            TEXT NOT NULL DEFAULT '',
			target_amount   REAL NOT NULL DEFAULT 0,
			balance         REAL NOT NULL DEFAULT 0,
			equity          REAL NOT NULL DEFAULT 0,
			margin          REAL NOT NULL DEFAULT 0,
			margin_free     REAL NOT NULL DEFAULT 0,
			margin_level    REAL NOT NULL DEFAULT 0,
			open_positions  INTEGER NOT NULL DEFAULT 0,
			connected       INTEGER NOT NULL DEFAULT 0,
			updated_at      INTEGER
		)
	`)
	require.NoError(t, err)

	return db
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UTC().Truncate(time.Second)
	err := repo.Upsert(Account{
		Account:   885822,
		Name:      "BALANCE Master",
		Fund:      "FIDUS BALANCE",
		Balance:   80000,
		Equity:    80500,
		Connected: true,
		UpdatedAt: &now,
	})
	require.NoError(t, err)

	// Same key again with new values must overwrite, not duplicate
	err = repo.Upsert(Account{
		Account:   885822,
		Name:      "BALANCE Master",
		Fund:      "FIDUS BALANCE",
		Balance:   81000,
		Equity:    81250,
		Connected: true,
		UpdatedAt: &now,
	})
	require.NoError(t, err)

	count, err := repo.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Get(885822)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 81000.0, got.Balance)
	assert.Equal(t, 81250.0, got.Equity)
	assert.True(t, got.Connected)
}

func TestMarkDisconnected_PreservesLastGoodSnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(Account{
		Account:   885822,
		Name:      "BALANCE Master",
		Fund:      "FIDUS BALANCE",
		Balance:   80000,
		Equity:    80500,
		Connected: true,
		UpdatedAt: &now,
	}))

	require.NoError(t, repo.MarkDisconnected(885822, "BALANCE Master", "FIDUS BALANCE", 100000))

	got, err := repo.Get(885822)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Connected)
	assert.Equal(t, 80000.0, got.Balance)
	assert.Equal(t, 100000.0, got.TargetAmount)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, now.Unix(), got.UpdatedAt.Unix())
}

func TestMarkDisconnected_InsertsUnknownAccountWithoutTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	require.NoError(t, repo.MarkDisconnected(886557, "CORE Master", "FIDUS CORE", 50000))

	got, err := repo.Get(886557)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Connected)
	assert.Nil(t, got.UpdatedAt)
}

func TestGet_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.Get(999999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastUpdatedAt_EmptyTable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	ts, err := repo.LastUpdatedAt()
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestLastUpdatedAt_IgnoresNullTimestamps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	old := time.Now().UTC().Add(-1 * time.Hour).Truncate(time.Second)
	newer := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Upsert(Account{Account: 1, UpdatedAt: &old}))
	require.NoError(t, repo.Upsert(Account{Account: 2, UpdatedAt: &newer}))
	require.NoError(t, repo.Upsert(Account{Account: 3})) // never synced, no timestamp

	ts, err := repo.LastUpdatedAt()
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, newer.Unix(), ts.Unix())
}

func TestCountUpdatedSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	recent := time.Now().UTC()
	stale := recent.Add(-2 * time.Hour)

	require.NoError(t, repo.Upsert(Account{Account: 1, UpdatedAt: &recent}))
	require.NoError(t, repo.Upsert(Account{Account: 2, UpdatedAt: &recent}))
	require.NoError(t, repo.Upsert(Account{Account: 3, UpdatedAt: &stale}))
	require.NoError(t, repo.Upsert(Account{Account: 4})) // NULL timestamp never counts

	count, err := repo.CountUpdatedSince(recent.Add(-15 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := repo.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestGetAll_OrderedByLogin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	require.NoError(t, repo.Upsert(Account{Account: 886557, Fund: "FIDUS CORE"}))
	require.NoError(t, repo.Upsert(Account{Account: 885822, Fund: "FIDUS BALANCE"}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(885822), all[0].Account)
	assert.Equal(t, int64(886557), all[1].Account)
}
