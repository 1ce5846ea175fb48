// Package main is the recalculation CLI. Operators run it after manual data
// corrections; the sync daemon also runs the same sequencer nightly. All
// derived tables are rebuilt in one transaction, so a failed run leaves the
// database exactly as it was.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/recalc"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/pkg/logger"
)

func main() {
	quiet := flag.Bool("quiet", false, "suppress per-pass progress output")
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the run after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var progress recalc.ProgressFunc
	if !*quiet {
		progress = func(completed, total int, pass string) {
			fmt.Printf("[%d/%d] %s\n", completed, total, pass)
		}
	}

	sequencer := recalc.NewSequencer(db.Conn(), log)
	runID, summaries, err := sequencer.Run(ctx, progress)
	if err != nil {
		log.Fatal().Str("run_id", runID).Err(err).Msg("Recalculation failed, no changes were committed")
	}

	total := 0
	for _, s := range summaries {
		total += s.Rows
	}
	fmt.Printf("Recalculation %s complete: %d passes, %d rows\n", runID, len(summaries), total)
}
