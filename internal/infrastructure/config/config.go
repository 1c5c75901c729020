// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	window := cfg.Reconcile.Window()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Lock          LockConfig          `yaml:"lock"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ReconcileConfig holds matching tolerances and pass settings
type ReconcileConfig struct {
	MaxDateDeltaDays     int           `yaml:"max_date_delta_days"`
	MaxAmountDeltaRatio  float64       `yaml:"max_amount_delta_ratio"`
	AutoConfirmThreshold float64       `yaml:"auto_confirm_threshold"`
	StorageTimeout       time.Duration `yaml:"storage_timeout"`
	Workers              int           `yaml:"workers"`
	SplitSuggestions     *bool         `yaml:"split_suggestions"`
	MaxSplitParts        int           `yaml:"max_split_parts"`
}

// Window returns the candidate window described by the config
func (r ReconcileConfig) Window() ledger.Window {
	return ledger.Window{
		MaxDateDeltaDays:    r.MaxDateDeltaDays,
		MaxAmountDeltaRatio: r.MaxAmountDeltaRatio,
	}
}

// SplitsEnabled reports whether split-payment suggestions are on (default true)
func (r ReconcileConfig) SplitsEnabled() bool {
	return r.SplitSuggestions == nil || *r.SplitSuggestions
}

// Lock backends
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// LockConfig selects how passes are serialized
type LockConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	splits := getEnvBool("RECONCILE_SPLIT_SUGGESTIONS", true)
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILE_DB_PATH", "reconcile.db"),
		},
		Reconcile: ReconcileConfig{
			MaxDateDeltaDays:     getEnvInt("RECONCILE_MAX_DATE_DELTA_DAYS", ledger.DefaultMaxDateDeltaDays),
			MaxAmountDeltaRatio:  getEnvFloat("RECONCILE_MAX_AMOUNT_DELTA_RATIO", ledger.DefaultMaxAmountDeltaRatio),
			AutoConfirmThreshold: getEnvFloat("RECONCILE_AUTO_CONFIRM_THRESHOLD", ledger.DefaultAutoConfirmThreshold),
			StorageTimeout:       getEnvDuration("RECONCILE_STORAGE_TIMEOUT", 10*time.Second),
			Workers:              getEnvInt("RECONCILE_WORKERS", 4),
			SplitSuggestions:     &splits,
			MaxSplitParts:        getEnvInt("RECONCILE_MAX_SPLIT_PARTS", 3),
		},
		Lock: LockConfig{
			Backend:   getEnv("RECONCILE_LOCK_BACKEND", LockBackendLocal),
			RedisAddr: getEnv("REDIS_ADDRESS", ""),
			TTL:       getEnvDuration("RECONCILE_LOCK_TTL", time.Minute),
		},
		API: APIConfig{
			Port:           getEnvInt("RECONCILE_API_PORT", 8080),
			AllowedOrigins: getEnvList("RECONCILE_ALLOWED_ORIGINS"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills fields a YAML file left unset
func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconcile.db"
	}

	r := &c.Reconcile
	if r.MaxDateDeltaDays == 0 {
		r.MaxDateDeltaDays = ledger.DefaultMaxDateDeltaDays
	}
	if r.MaxAmountDeltaRatio == 0 {
		r.MaxAmountDeltaRatio = ledger.DefaultMaxAmountDeltaRatio
	}
	if r.AutoConfirmThreshold == 0 {
		r.AutoConfirmThreshold = ledger.DefaultAutoConfirmThreshold
	}
	if r.StorageTimeout == 0 {
		r.StorageTimeout = 10 * time.Second
	}
	if r.Workers == 0 {
		r.Workers = 4
	}
	if r.MaxSplitParts == 0 {
		r.MaxSplitParts = 3
	}

	if c.Lock.Backend == "" {
		c.Lock.Backend = LockBackendLocal
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = time.Minute
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Validate checks tolerances and backend settings.
// Tolerance problems are reported as *ledger.InvalidWindowError.
func (c *Config) Validate() error {
	if err := c.Reconcile.Window().Validate(); err != nil {
		return err
	}
	if err := ledger.ValidateThreshold(c.Reconcile.AutoConfirmThreshold); err != nil {
		return err
	}
	if c.Reconcile.StorageTimeout < 0 {
		return fmt.Errorf("reconcile.storage_timeout must not be negative")
	}
	if c.Reconcile.MaxSplitParts < 2 && c.Reconcile.SplitsEnabled() {
		return fmt.Errorf("reconcile.max_split_parts must be at least 2, got %d", c.Reconcile.MaxSplitParts)
	}

	switch c.Lock.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
