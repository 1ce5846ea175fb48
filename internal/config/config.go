// Package config provides configuration management functionality.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the operations database and backups
	DatabaseName string // SQLite database filename inside DataDir
	LogLevel     string
	Port         int
	DevMode      bool

	// MT5 bridge
	BridgeBaseURL string // Base URL of the MT5 bridge service (health + terminal API)
	AccountsFile  string // Path to the JSON account roster

	// Sync daemon
	SyncInterval time.Duration // Main cycle interval
	AccountDelay time.Duration // Pause between accounts within a cycle
	BackfillDays int           // One-time historical pull window
	DealWindow   time.Duration // Rolling incremental pull window

	// Watchdog
	CheckInterval      time.Duration // Health check poll interval
	FreshnessThreshold time.Duration // Max age before account data counts as stale
	FailureThreshold   int           // Consecutive failures before auto-heal
	HealCooldown       time.Duration // Min time between heal dispatches
	HealWait           time.Duration // Wait after dispatch before re-checking
	AlertInterval      time.Duration // Min time between critical alerts

	// Auto-heal dispatch (GitHub Actions)
	GitHubRepo     string // "owner/repo"
	GitHubToken    string
	GitHubWorkflow string // Workflow file for the simple-restart path
	GitHubBranch   string

	// Alerting
	AlertWebhookURL string // Empty means log-only alerting

	// Backups
	Backup BackupConfig
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled   bool
	Endpoint  string // S3-compatible endpoint URL (empty for AWS default)
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Retention int    // Number of backups to keep
	CronSpec  string // Schedule for the nightly backup job
}

// AccountCredentials describes one MT5 account in the roster file
type AccountCredentials struct {
	Login        int64   `json:"login"`
	Password     string  `json:"password"`
	Server       string  `json:"server"`
	Name         string  `json:"name"`
	Fund         string  `json:"fund"`
	TargetAmount float64 `json:"target_amount"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FIDUS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "/var/lib/fidus"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		DatabaseName: getEnv("FIDUS_DB_NAME", "operations.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("FIDUS_PORT", 8002),
		DevMode:      getEnvAsBool("DEV_MODE", false),

		BridgeBaseURL: getEnv("MT5_BRIDGE_URL", "http://localhost:8003"),
		AccountsFile:  getEnv("MT5_ACCOUNTS_FILE", filepath.Join(absDataDir, "accounts.json")),

		SyncInterval: getEnvAsDuration("SYNC_INTERVAL", 5*time.Minute),
		AccountDelay: getEnvAsDuration("SYNC_ACCOUNT_DELAY", 2*time.Second),
		BackfillDays: getEnvAsInt("SYNC_BACKFILL_DAYS", 90),
		DealWindow:   getEnvAsDuration("SYNC_DEAL_WINDOW", 24*time.Hour),

		CheckInterval:      getEnvAsDuration("WATCHDOG_CHECK_INTERVAL", 5*time.Minute),
		FreshnessThreshold: getEnvAsDuration("WATCHDOG_FRESHNESS_THRESHOLD", 15*time.Minute),
		FailureThreshold:   getEnvAsInt("WATCHDOG_FAILURE_THRESHOLD", 3),
		HealCooldown:       getEnvAsDuration("WATCHDOG_HEAL_COOLDOWN", 5*time.Minute),
		HealWait:           getEnvAsDuration("WATCHDOG_HEAL_WAIT", 30*time.Second),
		AlertInterval:      getEnvAsDuration("WATCHDOG_ALERT_INTERVAL", 30*time.Minute),

		GitHubRepo:     getEnv("GITHUB_REPO", "chavapalmarubin-lab/FIDUS-sub008"),
		GitHubToken:    getEnv("GITHUB_TOKEN", ""),
		GitHubWorkflow: getEnv("GITHUB_WORKFLOW_NAME", "restart-bridge.yml"),
		GitHubBranch:   getEnv("GITHUB_BRANCH", "main"),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),

		Backup: BackupConfig{
			Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			Retention: getEnvAsInt("BACKUP_RETENTION", 14),
			CronSpec:  getEnv("BACKUP_CRON", "0 2 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the absolute path of the operations database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseName)
}

// LoadAccounts reads the MT5 account roster from the configured JSON file.
// A missing roster is an error: the sync daemon has nothing to do without it.
func (c *Config) LoadAccounts() ([]AccountCredentials, error) {
	data, err := os.ReadFile(c.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", c.AccountsFile, err)
	}

	var accounts []AccountCredentials
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", c.AccountsFile, err)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s contains no accounts", c.AccountsFile)
	}

	return accounts, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("WATCHDOG_FAILURE_THRESHOLD must be at least 1, got %d", c.FailureThreshold)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_S3_BUCKET is required when backups are enabled")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
