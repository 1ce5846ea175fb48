// Package main is the pipeline watchdog. It polls the health of the MT5
// bridge and the freshness of synced data, auto-heals via GitHub Actions
// dispatches when checks keep failing, and serves the HTTP status surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/alerts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/clients/github"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/investments"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/mt5"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/server"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/watchdog"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/pkg/logger"
)

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

	log.Info().Msg("Starting pipeline watchdog")

	if cfg.GitHubToken == "" {
		log.Warn().Msg("GITHUB_TOKEN not set, auto-heal dispatches will fail")
	}

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

	bridge := mt5.NewBridgeClient(cfg.BridgeBaseURL, log)
	defer bridge.Close()

	accountRepo := accounts.NewRepository(db.Conn(), log)
	dealRepo := deals.NewRepository(db.Conn(), log)
	investmentRepo := investments.NewRepository(db.Conn(), log)
	statusRepo := watchdog.NewStatusRepository(db.Conn(), log)

	checker := watchdog.NewChecker(bridge, accountRepo, cfg.FreshnessThreshold, log)
	dispatcher := github.NewDispatchClient(cfg.GitHubRepo, cfg.GitHubToken, cfg.GitHubWorkflow, cfg.GitHubBranch, log)
	sink := alerts.NewSink(cfg.AlertWebhookURL, log)

	controller := watchdog.NewController(dispatcher, sink, watchdog.ControllerConfig{
		FailureThreshold: cfg.FailureThreshold,
		HealCooldown:     cfg.HealCooldown,
		HealWait:         cfg.HealWait,
		AlertInterval:    cfg.AlertInterval,
	}, log)

	broadcaster := server.NewStatusBroadcaster(log)
	runner := watchdog.NewRunner(checker, controller, statusRepo, broadcaster, cfg.CheckInterval, log)

	srv := server.New(server.Config{
		Log:         log,
		DB:          db,
		Accounts:    accountRepo,
		Deals:       dealRepo,
		Investments: investmentRepo,
		Status:      statusRepo,
		Broadcaster: broadcaster,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runner.Run(ctx)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down watchdog")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Watchdog stopped")
}
