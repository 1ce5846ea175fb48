// Package logger provides structured logging built on zerolog.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // trace, debug, info, warn, error
	Pretty bool   // Human-readable console output instead of JSON
}

// New creates a configured zerolog.Logger.
// Unknown level strings fall back to info.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)

	var logger zerolog.Logger
	if cfg.Pretty {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
