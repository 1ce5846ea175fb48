package sync

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

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/mt5"
)

// fakeTerminal scripts bridge responses per login and records call order
type fakeTerminal struct {
	loginErrs map[int64]error
	infos     map[int64]*mt5.AccountInfo
	deals     map[int64][]mt5.Deal
	dealErrs  map[int64]error

	current    int64
	loginOrder []int64
	ranges     map[int64][]time.Time // from timestamps per account
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{
		loginErrs: map[int64]error{},
		infos:     map[int64]*mt5.AccountInfo{},
		deals:     map[int64][]mt5.Deal{},
		dealErrs:  map[int64]error{},
		ranges:    map[int64][]time.Time{},
	}
}

func (f *fakeTerminal) Login(ctx context.Context, login int64, password, server string) error {
	f.loginOrder = append(f.loginOrder, login)
	if err := f.loginErrs[login]; err != nil {
		return err
	}
	f.current = login
	return nil
}

func (f *fakeTerminal) AccountInfo(ctx context.Context) (*mt5.AccountInfo, error) {
	info, ok := f.infos[f.current]
	if !ok {
		return nil, errors.New("no account info scripted")
	}
	return info, nil
}

func (f *fakeTerminal) Positions(ctx context.Context) ([]mt5.Position, error) {
	return nil, nil
}

func (f *fakeTerminal) DealsInRange(ctx context.Context, from, to time.Time) ([]mt5.Deal, error) {
	f.ranges[f.current] = append(f.ranges[f.current], from)
	if err := f.dealErrs[f.current]; err != nil {
		return nil, err
	}
	return f.deals[f.current], nil
}

func (f *fakeTerminal) Close() {}

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

func newTestService(t *testing.T, db *sql.DB, terminal mt5.Terminal, roster []config.AccountCredentials) *Service {
	t.Helper()

	cfg := &config.Config{
		AccountDelay: 2 * time.Second,
		BackfillDays: 90,
		DealWindow:   24 * time.Hour,
	}

	svc := NewService(
		terminal,
		accounts.NewRepository(db, zerolog.Nop()),
		deals.NewRepository(db, zerolog.Nop()),
		roster,
		cfg,
		zerolog.Nop(),
	)
	svc.sleep = func(time.Duration) {}
	return svc
}

func roster(logins ...int64) []config.AccountCredentials {
	var r []config.AccountCredentials
	for _, login := range logins {
		r = append(r, config.AccountCredentials{
			Login:    login,
			Password: "pw",
			Server:   "MEXAtlantic-Real",
			Name:     "acct",
			Fund:     "FIDUS BALANCE",
		})
	}
	return r
}

func TestRunCycle_ProcessesAccountsSequentially(t *testing.T) {
	db := setupTestDB(t)
	terminal := newFakeTerminal()
	terminal.infos[886557] = &mt5.AccountInfo{Login: 886557, Balance: 100000, Equity: 101000}
	terminal.infos[886602] = &mt5.AccountInfo{Login: 886602, Balance: 50000, Equity: 50000}

	var slept []time.Duration
	svc := newTestService(t, db, terminal, roster(886557, 886602))
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	assert.Equal(t, []int64{886557, 886602}, terminal.loginOrder)
	// One pause between two accounts, none after the last.
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)

	repo := accounts.NewRepository(db, zerolog.Nop())
	snapshot, err := repo.Get(886557)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 100000.0, snapshot.Balance)
	assert.True(t, snapshot.Connected)
	assert.NotNil(t, snapshot.UpdatedAt)
}

func TestRunCycle_AccountFailureDoesNotStopCycle(t *testing.T) {
	db := setupTestDB(t)
	terminal := newFakeTerminal()
	terminal.loginErrs[886557] = errors.New("invalid credentials")
	terminal.infos[886602] = &mt5.AccountInfo{Login: 886602, Balance: 50000, Equity: 50000}

	svc := newTestService(t, db, terminal, roster(886557, 886602))

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []int64{886557, 886602}, terminal.loginOrder)
}

func TestRunCycle_LoginFailureMarksDisconnectedWithoutErasingSnapshot(t *testing.T) {
	db := setupTestDB(t)
	terminal := newFakeTerminal()
	terminal.infos[886557] = &mt5.AccountInfo{Login: 886557, Balance: 100000, Equity: 101000}

	svc := newTestService(t, db, terminal, roster(886557))

	// First cycle succeeds and records a snapshot.
	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// Second cycle fails to log in.
	terminal.loginErrs[886557] = errors.New("bridge down")
	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	repo := accounts.NewRepository(db, zerolog.Nop())
	snapshot, err := repo.Get(886557)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.False(t, snapshot.Connected)
	// Last good balance survives the failed login.
	assert.Equal(t, 100000.0, snapshot.Balance)
}

func TestSyncDeals_BackfillOnlyWhenNoRecentDeals(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	terminal := newFakeTerminal()
	terminal.infos[886557] = &mt5.AccountInfo{Login: 886557, Balance: 100000}
	terminal.deals[886557] = []mt5.Deal{
		{Ticket: 1001, Time: now.Add(-2 * time.Hour), Type: "buy", Entry: "out", Symbol: "EURUSD", Profit: 50},
	}

	svc := newTestService(t, db, terminal, roster(886557))
	svc.now = func() time.Time { return now }

	// Empty history: the first pull must cover the 90-day backfill window.
	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, terminal.ranges[886557], 1)
	assert.Equal(t, now.AddDate(0, 0, -90), terminal.ranges[886557][0])

	// A recent deal is now on record: the next pull is the rolling window.
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, terminal.ranges[886557], 2)
	assert.Equal(t, now.Add(-24*time.Hour), terminal.ranges[886557][1])
}

func TestSyncDeals_ResyncIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	terminal := newFakeTerminal()
	terminal.infos[886557] = &mt5.AccountInfo{Login: 886557, Balance: 100000}
	terminal.deals[886557] = []mt5.Deal{
		{Ticket: 1001, Time: now.Add(-2 * time.Hour), Type: "buy", Entry: "out", Symbol: "EURUSD", Profit: 50},
		{Ticket: 1002, Time: now.Add(-1 * time.Hour), Type: "sell", Entry: "out", Symbol: "XAUUSD", Profit: -20},
	}

	svc := newTestService(t, db, terminal, roster(886557))
	svc.now = func() time.Time { return now }

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	repo := deals.NewRepository(db, zerolog.Nop())
	count, err := repo.CountByAccount(886557)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunCycle_CancelledContextStopsCycle(t *testing.T) {
	db := setupTestDB(t)
	terminal := newFakeTerminal()

	svc := newTestService(t, db, terminal, roster(886557, 886602))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, terminal.loginOrder)
}
