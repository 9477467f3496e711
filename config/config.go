// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COSTLEDGER_"

// Ledger drivers.
const (
	DriverJSONL  = "jsonl"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DefaultDir is the ledger directory under the user's home.
const DefaultDir = ".costledger"

// Config is the root configuration structure.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger" toml:"ledger"`
	Limits  LimitsConfig  `yaml:"limits" toml:"limits"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// LedgerConfig selects the storage backend.
type LedgerConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "jsonl", "sqlite" or "memory"
	Path   string `yaml:"path" toml:"path"`
}

// LimitsConfig sets default spend ceilings in USD. Zero disables a window.
type LimitsConfig struct {
	Daily   float64 `yaml:"daily" toml:"daily"`
	Monthly float64 `yaml:"monthly" toml:"monthly"`
}

// ServerConfig configures the report server.
type ServerConfig struct {
	Host         string        `yaml:"host" toml:"host"`
	Port         int           `yaml:"port" toml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`   // "debug", "info", "warn", "error"
	Format     string `yaml:"format" toml:"format"` // "json" or "console"
	File       string `yaml:"file" toml:"file"`     // rotate into this file instead of stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path" toml:"path"`       // Custom path (default: /metrics)
}

// Option overrides a setting after the file and environment are applied.
// Command-line flags use these so they win over everything else.
type Option func(*Config)

// WithLedgerPath overrides ledger.path.
func WithLedgerPath(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.Ledger.Path = path
		}
	}
}

// WithDriver overrides ledger.driver.
func WithDriver(driver string) Option {
	return func(c *Config) {
		if driver != "" {
			c.Ledger.Driver = driver
		}
	}
}

// WithLogLevel overrides logging.level.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		if level != "" {
			c.Logging.Level = level
		}
	}
}

// Load builds the configuration. Sources in increasing precedence: the
// config file (YAML, or TOML by .toml extension), COSTLEDGER_* variables
// (including those from a .env file), then opts. A missing or empty path
// is not an error; defaults fill whatever is left unset.
func Load(path string, opts ...Option) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := setDefaults(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(expanded, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(expanded), cfg)
}

// loadDotEnv reads .env from the working directory and from the config
// file's directory. Variables already set in the environment win.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			candidates = append(candidates, filepath.Join(dir, ".env"))
		}
	}

	for _, f := range candidates {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnvOverrides applies COSTLEDGER_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Ledger configuration
	if v := os.Getenv(EnvPrefix + "LEDGER_DRIVER"); v != "" {
		cfg.Ledger.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}

	// Limits
	if v := os.Getenv(EnvPrefix + "DAILY_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.Daily = f
		}
	}
	if v := os.Getenv(EnvPrefix + "MONTHLY_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.Monthly = f
		}
	}

	// Server configuration
	if v := os.Getenv(EnvPrefix + "SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPrefix + "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Metrics configuration
	if v := os.Getenv(EnvPrefix + "METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) error {
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = DriverJSONL
	}
	if cfg.Ledger.Path == "" && cfg.Ledger.Driver != DriverMemory {
		path, err := DefaultLedgerPath(cfg.Ledger.Driver)
		if err != nil {
			return err
		}
		cfg.Ledger.Path = path
	}
	path, err := expandHome(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	cfg.Ledger.Path = path

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	// The CLI writes results to stdout; keep logs quiet unless asked.
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

// DefaultLedgerPath returns ~/.costledger/usage.jsonl, or usage.db for sqlite.
func DefaultLedgerPath(driver string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	name := "usage.jsonl"
	if driver == DriverSQLite {
		name = "usage.db"
	}
	return filepath.Join(home, DefaultDir, name), nil
}

// expandHome resolves a leading "~/".
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{DriverJSONL: true, DriverSQLite: true, DriverMemory: true}
	if !validDrivers[cfg.Ledger.Driver] {
		return fmt.Errorf("ledger.driver must be one of: jsonl, sqlite, memory; got %q", cfg.Ledger.Driver)
	}

	if cfg.Limits.Daily < 0 {
		return fmt.Errorf("limits.daily must be >= 0, got %v", cfg.Limits.Daily)
	}
	if cfg.Limits.Monthly < 0 {
		return fmt.Errorf("limits.monthly must be >= 0, got %v", cfg.Limits.Monthly)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
