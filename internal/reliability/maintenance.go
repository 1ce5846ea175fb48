package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
)

// MaintenanceJob keeps the operations database healthy between backups:
// WAL truncation so the file never grows unbounded, plus an integrity check
// that surfaces corruption before it spreads into derived data.
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the operations database
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("component", "maintenance").Logger(),
	}
}

// Run executes one maintenance pass
func (j *MaintenanceJob) Run(ctx context.Context) error {
	start := time.Now()

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Error().Err(err).Msg("WAL checkpoint failed")
		return err
	}

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Database integrity check failed")
		return err
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Maintenance pass complete")
	return nil
}
