package watchdog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Status is the persisted watchdog state: the latest report plus the
// escalation position. There is exactly one row; every check overwrites it.
type Status struct {
	Healthy             bool                   `json:"healthy"`
	BridgeAPIAvailable  bool                   `json:"bridge_api_available"`
	DataFresh           bool                   `json:"data_fresh"`
	AccountsSyncing     bool                   `json:"accounts_syncing"`
	NeedsFullRestart    bool                   `json:"needs_full_restart"`
	State               State                  `json:"state"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	HealInProgress      bool                   `json:"heal_in_progress"`
	LastHealAttempt     *time.Time             `json:"last_heal_attempt,omitempty"`
	LastAlertSent       *time.Time             `json:"last_alert_sent,omitempty"`
	CheckedAt           time.Time              `json:"checked_at"`
	Details             map[string]interface{} `json:"details,omitempty"`
}

// StatusRepository persists the watchdog status singleton
type StatusRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(db *sql.DB, log zerolog.Logger) *StatusRepository {
	return &StatusRepository{
		db:  db,
		log: log.With().Str("repo", "watchdog_status").Logger(),
	}
}

// Save overwrites the status row. Details are stored as a msgpack blob so
// heterogeneous probe output survives without schema changes.
func (r *StatusRepository) Save(s Status) error {
	details, err := msgpack.Marshal(s.Details)
	if err != nil {
		return fmt.Errorf("failed to encode status details: %w", err)
	}

	var lastHeal, lastAlert interface{}
	if s.LastHealAttempt != nil {
		lastHeal = s.LastHealAttempt.Unix()
	}
	if s.LastAlertSent != nil {
		lastAlert = s.LastAlertSent.Unix()
	}

	query := `
		INSERT INTO watchdog_status (
			id, healthy, bridge_api_available, data_fresh, accounts_syncing,
			needs_full_restart, state, consecutive_failures, heal_in_progress,
			last_heal_attempt, last_alert_sent, checked_at, details
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			healthy = excluded.healthy,
			bridge_api_available = excluded.bridge_api_available,
			data_fresh = excluded.data_fresh,
			accounts_syncing = excluded.accounts_syncing,
			needs_full_restart = excluded.needs_full_restart,
			state = excluded.state,
			consecutive_failures = excluded.consecutive_failures,
			heal_in_progress = excluded.heal_in_progress,
			last_heal_attempt = excluded.last_heal_attempt,
			last_alert_sent = excluded.last_alert_sent,
			checked_at = excluded.checked_at,
			details = excluded.details`

	_, err = r.db.Exec(query,
		boolToInt(s.Healthy), boolToInt(s.BridgeAPIAvailable), boolToInt(s.DataFresh),
		boolToInt(s.AccountsSyncing), boolToInt(s.NeedsFullRestart),
		string(s.State), s.ConsecutiveFailures, boolToInt(s.HealInProgress),
		lastHeal, lastAlert, s.CheckedAt.Unix(), details,
	)
	if err != nil {
		return fmt.Errorf("failed to save watchdog status: %w", err)
	}

	return nil
}

// Load returns the persisted status, or nil if no check has run yet
func (r *StatusRepository) Load() (*Status, error) {
	row := r.db.QueryRow(`
		SELECT healthy, bridge_api_available, data_fresh, accounts_syncing,
			needs_full_restart, state, consecutive_failures, heal_in_progress,
			last_heal_attempt, last_alert_sent, checked_at, details
		FROM watchdog_status WHERE id = 1`)

	var s Status
	var healthy, bridgeAPI, dataFresh, syncing, fullRestart, healInProgress int
	var state string
	var lastHeal, lastAlert sql.NullInt64
	var checkedAtUnix int64
	var details []byte

	err := row.Scan(
		&healthy, &bridgeAPI, &dataFresh, &syncing, &fullRestart,
		&state, &s.ConsecutiveFailures, &healInProgress,
		&lastHeal, &lastAlert, &checkedAtUnix, &details,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load watchdog status: %w", err)
	}

	s.Healthy = healthy != 0
	s.BridgeAPIAvailable = bridgeAPI != 0
	s.DataFresh = dataFresh != 0
	s.AccountsSyncing = syncing != 0
	s.NeedsFullRestart = fullRestart != 0
	s.State = State(state)
	s.HealInProgress = healInProgress != 0
	s.CheckedAt = time.Unix(checkedAtUnix, 0).UTC()

	if lastHeal.Valid {
		t := time.Unix(lastHeal.Int64, 0).UTC()
		s.LastHealAttempt = &t
	}
	if lastAlert.Valid {
		t := time.Unix(lastAlert.Int64, 0).UTC()
		s.LastAlertSent = &t
	}

	if len(details) > 0 {
		if err := msgpack.Unmarshal(details, &s.Details); err != nil {
			return nil, fmt.Errorf("failed to decode status details: %w", err)
		}
	}

	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
