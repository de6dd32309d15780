package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Transfer    TransferConfig    `yaml:"transfer"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Email       EmailConfig       `yaml:"email"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the store. "postgres" needs the connection fields;
// "memory" keeps everything in process.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LedgerConfig bounds what a single posting may move.
type LedgerConfig struct {
	MaxAmount int64 `yaml:"max_amount"`
}

// PermissionsConfig lists platform accounts that resolve to OWNER in every gang.
type PermissionsConfig struct {
	SuperUsers []string `yaml:"super_users"`
}

type AttendanceConfig struct {
	// StaleClosingMinutes is how long a CLOSING claim may sit before the
	// poller resumes the sweep.
	StaleClosingMinutes int `yaml:"stale_closing_minutes"`
}

type TransferConfig struct {
	DefaultWindowHours int `yaml:"default_window_hours"`
}

// TelegramConfig contains chat platform settings
type TelegramConfig struct {
	Token          string `yaml:"token"`
	TreasurerTitle string `yaml:"treasurer_title"` // custom admin title mapped to TREASURER
	PollTimeout    int    `yaml:"poll_timeout_seconds"`
	Debug          bool   `yaml:"debug"`
}

// EmailConfig contains SendGrid settings for outcome notices
type EmailConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	StartDueSessions     string `yaml:"start_due_sessions"`
	CloseDueSessions     string `yaml:"close_due_sessions"`
	CompleteDueTransfers string `yaml:"complete_due_transfers"`
	SyncRoles            string `yaml:"sync_roles"`
	ReconcileBalances    string `yaml:"reconcile_balances"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Permissions
	if val := os.Getenv("SUPER_USERS"); val != "" {
		c.Permissions.SuperUsers = splitList(val)
	}

	// Collaborators
	if val := os.Getenv("TELEGRAM_TOKEN"); val != "" {
		c.Telegram.Token = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid and fills defaults.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	switch c.Database.Driver {
	case "":
		c.Database.Driver = "postgres"
		fallthrough
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Ledger validation
	if c.Ledger.MaxAmount < 0 {
		return fmt.Errorf("ledger max_amount must not be negative")
	}
	if c.Ledger.MaxAmount == 0 {
		c.Ledger.MaxAmount = 1_000_000_000
	}

	// Email validation
	if c.Email.Enabled && (c.Email.SendGridAPIKey == "" || c.Email.FromAddress == "") {
		return fmt.Errorf("email enabled but sendgrid_api_key or from_address missing")
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Gangkeeper"
	}

	// Collaborator defaults
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 60
	}
	if c.Telegram.TreasurerTitle == "" {
		c.Telegram.TreasurerTitle = "Treasurer"
	}
	if c.Attendance.StaleClosingMinutes == 0 {
		c.Attendance.StaleClosingMinutes = 5
	}
	if c.Transfer.DefaultWindowHours == 0 {
		c.Transfer.DefaultWindowHours = 72
	}

	// Scheduler defaults
	if c.Scheduler.StartDueSessions == "" {
		c.Scheduler.StartDueSessions = "@every 30s"
	}
	if c.Scheduler.CloseDueSessions == "" {
		c.Scheduler.CloseDueSessions = "@every 30s"
	}
	if c.Scheduler.CompleteDueTransfers == "" {
		c.Scheduler.CompleteDueTransfers = "@every 1m"
	}
	if c.Scheduler.SyncRoles == "" {
		c.Scheduler.SyncRoles = "0 0 */6 * * *" // every 6 hours
	}
	if c.Scheduler.ReconcileBalances == "" {
		c.Scheduler.ReconcileBalances = "0 30 3 * * *" // 3:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) StaleClosingAfter() time.Duration {
	return time.Duration(c.Attendance.StaleClosingMinutes) * time.Minute
}

func (c *Config) TransferWindow() time.Duration {
	return time.Duration(c.Transfer.DefaultWindowHours) * time.Hour
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}
