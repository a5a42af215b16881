// Package config provides configuration loading and management for the catalog mirror.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the mirror
const EnvPrefix = "CATALOG_MIRROR"

const (
	// StorageTypeMemory keeps all state in process memory
	StorageTypeMemory = "memory"

	// StorageTypeFile keeps checkpoints, the rotation cursor and run status in a local file
	StorageTypeFile = "file"

	// StorageTypeDatabase keeps all state and mirrored documents in PostgreSQL
	StorageTypeDatabase = "database"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Catalog   CatalogConfig     `yaml:"catalog"`
	RateLimit RateLimitConfig   `yaml:"rateLimit"`
	Sync      SyncConfig        `yaml:"sync"`
	Cooldown  CooldownConfig    `yaml:"cooldown"`
	Keys      KeysConfig        `yaml:"keys"`
	Storage   StorageConfig     `yaml:"storage"`
	Notifier  NotifierConfig    `yaml:"notifier"`
	Schedules []ScheduleConfig  `yaml:"schedules,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// CatalogConfig defines how the upstream catalog API is reached
type CatalogConfig struct {
	// BaseURL is the catalog API root, e.g. "https://api.bgm.tv"
	BaseURL string `yaml:"baseURL"`

	// AccessToken is sent as a bearer token when set
	AccessToken string `yaml:"accessToken,omitempty"`

	UserAgent string `yaml:"userAgent,omitempty"`

	// Timeout is a duration ("15s"); a bare number is read as milliseconds
	Timeout string `yaml:"timeout,omitempty"`

	// SubjectType restricts every listing to one subject category (2 = anime)
	SubjectType int `yaml:"subjectType,omitempty"`
}

// RateLimitConfig defines the request rates towards the catalog
type RateLimitConfig struct {
	// DefaultQPS limits listing and subject requests
	DefaultQPS float64 `yaml:"defaultQPS"`

	// CharacterQPS limits character detail requests
	CharacterQPS float64 `yaml:"characterQPS"`
}

// SyncConfig tunes the sync strategies
type SyncConfig struct {
	BatchSize         int    `yaml:"batchSize"`
	IncrementalBuffer int    `yaml:"incrementalBuffer"`
	FailureThreshold  int    `yaml:"failureThreshold"`
	FailureBackoff    string `yaml:"failureBackoff"`
	CheckpointTTL     string `yaml:"checkpointTTL"`

	// NotifyChannel receives circuit breaker alerts
	NotifyChannel string `yaml:"notifyChannel,omitempty"`
}

// CooldownConfig defines how many days a mirrored character stays fresh
type CooldownConfig struct {
	Daily      int `yaml:"daily"`
	Biweekly   int `yaml:"biweekly"`
	Monthly    int `yaml:"monthly"`
	MonthlyMin int `yaml:"monthlyMin"`
	MonthlyMax int `yaml:"monthlyMax"`
}

// KeysConfig names the keys the mirror keeps its state under
type KeysConfig struct {
	Prefix     string `yaml:"prefix"`
	Rotation   string `yaml:"rotation,omitempty"`
	Checkpoint string `yaml:"checkpoint,omitempty"`
}

// StatusPrefix returns the prefix of the scheduled run status keys
func (k KeysConfig) StatusPrefix() string {
	return k.Prefix + "sync_status:"
}

// StorageConfig selects where state and mirrored documents are kept
type StorageConfig struct {
	// Type is "memory" (default), "file" or "database"
	Type     string             `yaml:"type,omitempty"`
	File     *FileStorageConfig `yaml:"file,omitempty"`
	Database *DatabaseConfig    `yaml:"database,omitempty"`
}

// FileStorageConfig defines file storage settings
type FileStorageConfig struct {
	// Path is the JSON file holding the key/value state
	Path string `yaml:"path"`
}

// NotifierConfig defines where operator alerts are sent
type NotifierConfig struct {
	// WebhookURL is a chat webhook; alerts are only logged when empty
	WebhookURL string `yaml:"webhookURL,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

// ScheduleConfig runs a strategy on a fixed interval
type ScheduleConfig struct {
	Strategy       string `yaml:"strategy"`
	Interval       string `yaml:"interval"`
	CooldownDays   int    `yaml:"cooldownDays,omitempty"`
	BatchSize      int    `yaml:"batchSize,omitempty"`
	SkipCharacters bool   `yaml:"skipCharacters,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// PasswordEnvVar is read when no password file is configured
const PasswordEnvVar = EnvPrefix + "_DATABASE_PASSWORD"

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the CATALOG_MIRROR_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", PasswordEnvVar,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads configuration from an optional YAML file, applies
// environment overrides and defaults, and validates the result
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults fills every unset field
func (c *Config) applyDefaults() {
	setDefault(&c.Catalog.BaseURL, "https://api.bgm.tv")
	setDefault(&c.Catalog.UserAgent, "catalog-mirror")
	setDefault(&c.Catalog.Timeout, "15s")
	setDefault(&c.Catalog.SubjectType, 2)

	setDefault(&c.RateLimit.DefaultQPS, 10)
	setDefault(&c.RateLimit.CharacterQPS, 1)

	setDefault(&c.Sync.BatchSize, 50)
	setDefault(&c.Sync.IncrementalBuffer, 50)
	setDefault(&c.Sync.FailureThreshold, 3)
	setDefault(&c.Sync.FailureBackoff, "30s")
	setDefault(&c.Sync.CheckpointTTL, "336h")

	setDefault(&c.Cooldown.Daily, 3)
	setDefault(&c.Cooldown.Biweekly, 14)
	setDefault(&c.Cooldown.Monthly, 60)
	setDefault(&c.Cooldown.MonthlyMin, 30)
	setDefault(&c.Cooldown.MonthlyMax, 90)

	setDefault(&c.Keys.Prefix, "bangumi:")
	setDefault(&c.Keys.Rotation, c.Keys.Prefix+"monthly_rotation:current_month")
	setDefault(&c.Keys.Checkpoint, c.Keys.Prefix+"full_sync:checkpoint")

	setDefault(&c.Storage.Type, StorageTypeMemory)
	if c.Storage.Type == StorageTypeFile && c.Storage.File == nil {
		c.Storage.File = &FileStorageConfig{}
	}
	if c.Storage.File != nil {
		setDefault(&c.Storage.File.Path, "./data/state.json")
	}

	setDefault(&c.Notifier.Timeout, "10s")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("catalog.baseURL: %w", err))
	}
	if _, err := parseTimeout(c.Catalog.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("catalog.timeout: %w", err))
	}

	if c.RateLimit.DefaultQPS < 0 || c.RateLimit.CharacterQPS < 0 {
		errs = append(errs, fmt.Errorf("rateLimit: QPS must be positive"))
	}

	if c.Sync.BatchSize < 0 || c.Sync.IncrementalBuffer < 0 || c.Sync.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("sync: batchSize, incrementalBuffer and failureThreshold must not be negative"))
	}
	if _, err := time.ParseDuration(c.Sync.FailureBackoff); err != nil {
		errs = append(errs, fmt.Errorf("sync.failureBackoff: %w", err))
	}
	if _, err := time.ParseDuration(c.Sync.CheckpointTTL); err != nil {
		errs = append(errs, fmt.Errorf("sync.checkpointTTL: %w", err))
	}

	if c.Cooldown.MonthlyMin > c.Cooldown.MonthlyMax {
		errs = append(errs, fmt.Errorf("cooldown: monthlyMin (%d) must not exceed monthlyMax (%d)",
			c.Cooldown.MonthlyMin, c.Cooldown.MonthlyMax))
	}

	errs = append(errs, c.validateStorage()...)

	if _, err := time.ParseDuration(c.Notifier.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("notifier.timeout: %w", err))
	}

	errs = append(errs, validateSchedules(c.Schedules)...)

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) validateStorage() []error {
	switch c.Storage.Type {
	case StorageTypeMemory, StorageTypeFile:
		return nil
	case StorageTypeDatabase:
		db := c.Storage.Database
		if db == nil {
			return []error{fmt.Errorf("storage.database is required for database storage")}
		}
		var errs []error
		if db.Host == "" || db.Port == 0 || db.User == "" || db.Database == "" {
			errs = append(errs, fmt.Errorf("storage.database: host, port, user and database are required"))
		}
		if db.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(db.ConnMaxLifetime); err != nil {
				errs = append(errs, fmt.Errorf("storage.database.connMaxLifetime: %w", err))
			}
		}
		return errs
	default:
		return []error{fmt.Errorf("storage.type must be one of %s, %s or %s, got %q",
			StorageTypeMemory, StorageTypeFile, StorageTypeDatabase, c.Storage.Type)}
	}
}

func validateSchedules(schedules []ScheduleConfig) []error {
	var errs []error
	seen := make(map[string]bool)
	for i, s := range schedules {
		prefix := fmt.Sprintf("schedules[%d] (%s)", i, s.Strategy)
		if s.Strategy == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: strategy is required", i))
			continue
		}
		if seen[s.Strategy] {
			errs = append(errs, fmt.Errorf("%s: duplicate schedule", prefix))
		}
		seen[s.Strategy] = true

		interval, err := time.ParseDuration(s.Interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: interval must be a valid duration (e.g., '24h'): %w", prefix, err))
		} else if interval <= 0 {
			errs = append(errs, fmt.Errorf("%s: interval must be positive", prefix))
		}
	}
	return errs
}

// GetTimeout returns the catalog request timeout
func (c *CatalogConfig) GetTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeout)
	return d
}

// GetFailureBackoff returns the pause before a failed page is retried
func (s *SyncConfig) GetFailureBackoff() time.Duration {
	d, _ := time.ParseDuration(s.FailureBackoff)
	return d
}

// GetCheckpointTTL returns how long an abandoned checkpoint is kept
func (s *SyncConfig) GetCheckpointTTL() time.Duration {
	d, _ := time.ParseDuration(s.CheckpointTTL)
	return d
}

// GetTimeout returns the webhook request timeout
func (n *NotifierConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(n.Timeout)
	return d
}

// parseTimeout reads a duration, or a bare number of milliseconds
func parseTimeout(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

// Redacted returns a copy of the configuration that is safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Catalog.AccessToken != "" {
		out.Catalog.AccessToken = "REDACTED"
	}
	if out.Notifier.WebhookURL != "" {
		if u, err := url.Parse(out.Notifier.WebhookURL); err == nil {
			out.Notifier.WebhookURL = u.Scheme + "://" + u.Host + "/REDACTED"
		} else {
			out.Notifier.WebhookURL = "REDACTED"
		}
	}
	return &out
}
