package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equipment-scheduler/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Email      EmailConfig      `yaml:"email"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	RFID       RFIDConfig       `yaml:"rfid"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"ssl_mode"`
	LockTimeoutMs  int    `yaml:"lock_timeout_ms"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// StoreConfig selects the persistent store
type StoreConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
}

// RedisConfig contains the event stream settings. Events go to the log
// only when Addr is empty.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// EmailConfig contains SendGrid settings for staff alerts
type EmailConfig struct {
	SendGridAPIKey  string   `yaml:"sendgrid_api_key"`
	FromEmail       string   `yaml:"from_email"`
	FromName        string   `yaml:"from_name"`
	StaffRecipients []string `yaml:"staff_recipients"`
	Events          []string `yaml:"events"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string   `yaml:"secret"`
	AccessTokenExpiry int      `yaml:"access_token_expiry_minutes"`
	StaffRoles        []string `yaml:"staff_roles"`
	ReaderRoles       []string `yaml:"reader_roles"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulingConfig contains the request policies and the sweep lead times.
// A negative MaxReservationDays disables the duration cap.
type SchedulingConfig struct {
	MaxReservationDays    int  `yaml:"max_reservation_days"`
	MaintenanceLeadDays   int  `yaml:"maintenance_lead_days"`
	ReturnReminderHours   int  `yaml:"return_reminder_hours"`
	RejectPastStart       bool `yaml:"reject_past_start"`
	PastStartGraceMinutes int  `yaml:"past_start_grace_minutes"`
}

// RFIDConfig is the registry of known readers
type RFIDConfig struct {
	Readers []domain.RfidReader `yaml:"readers"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	SweepOverdueLoans      string `yaml:"sweep_overdue_loans"`
	SweepReturnReminders   string `yaml:"sweep_return_reminders"`
	SweepMaintenanceAlerts string `yaml:"sweep_maintenance_alerts"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// A .env file is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

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
	if val := os.Getenv("STORE_TYPE"); val != "" {
		c.Store.Type = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Email.FromEmail = val
	}
	if val := os.Getenv("STAFF_EMAILS"); val != "" {
		c.Email.StaffRecipients = splitList(val)
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

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Store validation
	if c.Store.Type == "" {
		c.Store.Type = "postgres"
	}
	switch c.Store.Type {
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
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}
	if c.Database.LockTimeoutMs < 0 {
		return fmt.Errorf("invalid lock timeout: %d", c.Database.LockTimeoutMs)
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
	if len(c.JWT.StaffRoles) == 0 {
		c.JWT.StaffRoles = []string{"admin", "ti"}
	}
	if len(c.JWT.ReaderRoles) == 0 {
		c.JWT.ReaderRoles = []string{"rfid-reader"}
	}

	// Event delivery
	if c.Redis.Addr != "" && c.Redis.Stream == "" {
		c.Redis.Stream = "equipment-scheduler:events"
	}
	if c.Email.SendGridAPIKey != "" {
		if c.Email.FromEmail == "" {
			return fmt.Errorf("email from address is required when sendgrid is configured")
		}
		if c.Email.FromName == "" {
			c.Email.FromName = "Equipment Scheduler"
		}
	}

	// Scheduling defaults
	if c.Scheduling.MaxReservationDays == 0 {
		c.Scheduling.MaxReservationDays = 7
	}
	if c.Scheduling.MaintenanceLeadDays <= 0 {
		c.Scheduling.MaintenanceLeadDays = 7
	}
	if c.Scheduling.ReturnReminderHours <= 0 {
		c.Scheduling.ReturnReminderHours = 24
	}
	if c.Scheduling.PastStartGraceMinutes < 0 {
		return fmt.Errorf("invalid past start grace: %d", c.Scheduling.PastStartGraceMinutes)
	}

	// RFID reader registry
	seen := make(map[string]bool, len(c.RFID.Readers))
	for _, r := range c.RFID.Readers {
		if r.ID == "" {
			return fmt.Errorf("rfid reader id is required")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rfid reader: %s", r.ID)
		}
		seen[r.ID] = true
		switch r.Custody {
		case domain.CustodyNone, domain.CustodyCheckout, domain.CustodyCheckin:
		default:
			return fmt.Errorf("rfid reader %s: unknown custody role %q", r.ID, r.Custody)
		}
	}

	// Scheduler defaults
	if c.Scheduler.SweepOverdueLoans == "" {
		c.Scheduler.SweepOverdueLoans = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.SweepReturnReminders == "" {
		c.Scheduler.SweepReturnReminders = "0 0 9 * * *" // 9 AM UTC
	}
	if c.Scheduler.SweepMaintenanceAlerts == "" {
		c.Scheduler.SweepMaintenanceAlerts = "0 0 6 * * *" // 6 AM UTC
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

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxReservation is zero when the duration policy is disabled.
func (s SchedulingConfig) MaxReservation() time.Duration {
	if s.MaxReservationDays < 0 {
		return 0
	}
	return time.Duration(s.MaxReservationDays) * 24 * time.Hour
}

// MaintenanceLead is how far ahead of the next maintenance date the alert
// fires.
func (s SchedulingConfig) MaintenanceLead() time.Duration {
	return time.Duration(s.MaintenanceLeadDays) * 24 * time.Hour
}

// ReturnReminderLead is how long before the expected return a loan is
// reminded.
func (s SchedulingConfig) ReturnReminderLead() time.Duration {
	return time.Duration(s.ReturnReminderHours) * time.Hour
}

// PastStartGrace is how far in the past a window may start when past starts
// are rejected.
func (s SchedulingConfig) PastStartGrace() time.Duration {
	return time.Duration(s.PastStartGraceMinutes) * time.Minute
}

// MailedEvents converts the configured event names; empty means the defaults.
func (e EmailConfig) MailedEvents() []domain.EventType {
	types := make([]domain.EventType, 0, len(e.Events))
	for _, name := range e.Events {
		types = append(types, domain.EventType(name))
	}
	return types
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
