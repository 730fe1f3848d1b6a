// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "coupon-ingest"
	defaultServicePort  = 8097
	defaultVersion      = "0.1.0"
	defaultQueueSize    = 64
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"
	defaultDBHost       = "localhost"
	defaultDBPort       = 5432
	defaultDBName       = "coupon_ingest"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"

	defaultApifyBaseURL  = "https://api.apify.com"
	defaultApifyPageSize = 1000

	defaultAnomalyWindowDays = 14

	defaultSweepSchedule   = "@every 10m"
	defaultSweepMaxRetries = 3

	defaultProcessTimeoutM = 30
	defaultApifyTimeoutS   = 60
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Apify    ApifyConfig    `yaml:"apify"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Alert    AlertConfig    `yaml:"alert"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	Port           int           `env:"COUPON_INGEST_PORT" yaml:"port"`
	Debug          bool          `env:"APP_DEBUG"          yaml:"debug"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_COUPON_INGEST_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_COUPON_INGEST_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_COUPON_INGEST_USER"     yaml:"user"`
	Password string `env:"POSTGRES_COUPON_INGEST_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_COUPON_INGEST_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_COUPON_INGEST_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// MigrateURL returns the postgres:// URL used by golang-migrate.
func (d *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// ApifyConfig holds the Apify API client configuration.
type ApifyConfig struct {
	BaseURL  string        `env:"APIFY_BASE_URL"  yaml:"base_url"`
	Token    string        `env:"APIFY_API_TOKEN" yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

// ToleranceBand maps a baseline ceiling to the tolerance multiplier applied
// to sources whose baseline falls under it.
type ToleranceBand struct {
	MaxBaseline float64 `yaml:"max_baseline"`
	Tolerance   float64 `yaml:"tolerance"`
}

// AnomalyConfig holds anomaly detector tuning.
type AnomalyConfig struct {
	WindowDays       int             `yaml:"window_days"`
	Bands            []ToleranceBand `yaml:"bands"`
	DefaultTolerance float64         `yaml:"default_tolerance"`
}

// Window returns the trailing lookback as a duration.
func (a *AnomalyConfig) Window() time.Duration {
	return time.Duration(a.WindowDays) * 24 * time.Hour
}

// SweepConfig holds the stale-run replay sweep configuration.
type SweepConfig struct {
	Schedule   string `yaml:"schedule"`
	MaxRetries int    `yaml:"max_retries"`
}

// AlertConfig holds alert delivery configuration. An empty webhook URL
// downgrades alerts to log entries.
type AlertConfig struct {
	SlackWebhookURL string `env:"SLACK_ALERT_WEBHOOK_URL" yaml:"slack_webhook_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// defaultBands is the tolerance table applied when the config omits one.
// Small baselines get wide tolerance to avoid false positives on noisy
// small pages.
func defaultBands() []ToleranceBand {
	return []ToleranceBand{
		{MaxBaseline: 10, Tolerance: 3.0},
		{MaxBaseline: 20, Tolerance: 1.0},
		{MaxBaseline: 50, Tolerance: 0.5},
		{MaxBaseline: 100, Tolerance: 0.3},
		{MaxBaseline: 500, Tolerance: 0.2},
	}
}

const defaultTolerance = 0.1

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setApifyDefaults(&cfg.Apify)
	setAnomalyDefaults(&cfg.Anomaly)
	setSweepDefaults(&cfg.Sweep)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.QueueSize == 0 {
		svc.QueueSize = defaultQueueSize
	}
	if svc.ProcessTimeout == 0 {
		svc.ProcessTimeout = defaultProcessTimeoutM * time.Minute
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setApifyDefaults(a *ApifyConfig) {
	if a.BaseURL == "" {
		a.BaseURL = defaultApifyBaseURL
	}
	if a.Timeout == 0 {
		a.Timeout = defaultApifyTimeoutS * time.Second
	}
	if a.PageSize == 0 {
		a.PageSize = defaultApifyPageSize
	}
}

func setAnomalyDefaults(a *AnomalyConfig) {
	if a.WindowDays == 0 {
		a.WindowDays = defaultAnomalyWindowDays
	}
	if len(a.Bands) == 0 {
		a.Bands = defaultBands()
	}
	if a.DefaultTolerance == 0 {
		a.DefaultTolerance = defaultTolerance
	}
}

func setSweepDefaults(s *SweepConfig) {
	if s.Schedule == "" {
		s.Schedule = defaultSweepSchedule
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = defaultSweepMaxRetries
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Apify.Token == "" {
		return &ValidationError{Field: "apify.token", Message: "is required"}
	}
	for i, band := range c.Anomaly.Bands {
		if band.Tolerance <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("anomaly.bands[%d].tolerance", i),
				Message: "must be positive",
			}
		}
	}
	return nil
}
