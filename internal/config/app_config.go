package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 8990.
	Port int `envconfig:"PORT" default:"8990"`

	// DataDir is the root data directory (database, logs). Defaults to ~/.gearup.
	DataDir string `envconfig:"GEARUP_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// JWTSecret verifies the HS256 bearer tokens issued by the identity
	// service. Required for serve.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// CORSAllowedOrigins is the list of origins allowed to call the API.
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Dispatcher pool sizing. The queue is bounded; when it is full and all
	// max workers are busy, submissions are rejected rather than blocking.
	DispatchCoreWorkers int `envconfig:"DISPATCH_CORE_WORKERS" default:"5"`
	DispatchMaxWorkers  int `envconfig:"DISPATCH_MAX_WORKERS" default:"10"`
	DispatchQueueSize   int `envconfig:"DISPATCH_QUEUE_SIZE" default:"100"`

	// SSEIdleTimeout is how long a push channel may stay open before it is
	// closed server-side and the client is expected to reconnect.
	SSEIdleTimeout time.Duration `envconfig:"SSE_IDLE_TIMEOUT" default:"30m"`

	// RetentionDays controls the nightly cleanup of read notifications.
	RetentionDays int `envconfig:"NOTIFICATION_RETENTION_DAYS" default:"30"`

	// ReminderLookahead is the window the appointment reminder job scans for
	// upcoming appointments on each run.
	ReminderLookahead time.Duration `envconfig:"REMINDER_LOOKAHEAD" default:"1h"`

	// SMTP settings for the optional email mirror of SYSTEM notifications.
	// Email mirroring is disabled when SMTPHost is empty.
	SMTPHost       string `envconfig:"SMTP_HOST"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername   string `envconfig:"SMTP_USERNAME"`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD"`
	SMTPFromAddr   string `envconfig:"SMTP_FROM_ADDRESS"`
	SMTPToAddrs    string `envconfig:"SMTP_TO_ADDRESSES"`
	SMTPEncryption string `envconfig:"SMTP_ENCRYPTION" default:"starttls"`

	// Log rotation settings (size in megabytes, age in days).
	LogMaxSizeMB  int `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays int `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.gearup if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".gearup")
	}
	if c.DispatchCoreWorkers > c.DispatchMaxWorkers {
		return nil, fmt.Errorf("DISPATCH_CORE_WORKERS (%d) exceeds DISPATCH_MAX_WORKERS (%d)",
			c.DispatchCoreWorkers, c.DispatchMaxWorkers)
	}
	return &c, nil
}

// DBPath returns the SQLite database file location under DataDir.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.DataDir, "gearup.db")
}

// LogDir returns the log directory under DataDir.
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// MailEnabled reports whether the SMTP email mirror is configured.
func (c *AppConfig) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromAddr != ""
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
