// Package main is the MT5 sync daemon. It pulls account snapshots and deal
// history from the bridge service into the operations database on a fixed
// interval, and runs the scheduled maintenance jobs: nightly recalculation,
// offsite backups and WAL checkpointing.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/recalc"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/mt5"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/reliability"
	syncer "github.com/chavapalmarubin-lab/FIDUS-sub008/internal/sync"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/pkg/logger"
)

// Nightly recalculation runs after the trading day closes, before the
// backup job picks up the refreshed database.
const recalcCronSpec = "30 1 * * *"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting MT5 sync daemon")

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileOperations,
		Name:    "operations",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open operations database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	roster, err := cfg.LoadAccounts()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load account roster")
	}
	log.Info().Int("accounts", len(roster)).Msg("Account roster loaded")

	terminal := mt5.NewBridgeClient(cfg.BridgeBaseURL, log)
	defer terminal.Close()

	accountRepo := accounts.NewRepository(db.Conn(), log)
	dealRepo := deals.NewRepository(db.Conn(), log)

	service := syncer.NewService(terminal, accountRepo, dealRepo, roster, cfg, log)
	runner := syncer.NewRunner(service, cfg.SyncInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runner.Run(ctx)

	scheduler := cron.New()
	registerScheduledJobs(ctx, scheduler, db, cfg, log)
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync daemon")
	cancel()

	// Let an in-flight scheduled job finish before closing the database.
	<-scheduler.Stop().Done()

	log.Info().Msg("Sync daemon stopped")
}

func registerScheduledJobs(ctx context.Context, scheduler *cron.Cron, db *database.DB, cfg *config.Config, log zerolog.Logger) {
	sequencer := recalc.NewSequencer(db.Conn(), log)
	if _, err := scheduler.AddFunc(recalcCronSpec, func() {
		if _, _, err := sequencer.Run(ctx, nil); err != nil {
			log.Error().Err(err).Msg("Nightly recalculation failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule nightly recalculation")
	}

	maintenance := reliability.NewMaintenanceJob(db, log)
	if _, err := scheduler.AddFunc("0 */6 * * *", func() {
		if err := maintenance.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Database maintenance failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule database maintenance")
	}

	if !cfg.Backup.Enabled {
		log.Info().Msg("Backups disabled")
		return
	}

	backup, err := reliability.NewBackupService(ctx, db, cfg.Backup, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup service")
	}
	if _, err := scheduler.AddFunc(cfg.Backup.CronSpec, func() {
		if _, err := backup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Backup failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule backups")
	}
}
