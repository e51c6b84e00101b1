// Package config provides configuration management for tasteid.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/thebtf/tasteid/internal/tasteid"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 37780

	// DefaultDBDriver is used when no driver is configured.
	DefaultDBDriver = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerHost string `json:"worker_host"`
	WorkerPort int    `json:"worker_port" validate:"min=1,max=65535"`

	// Database settings
	DBDriver string `json:"db_driver" validate:"oneof=postgres sqlite"`
	DBDSN    string `json:"db_dsn"`
	MaxConns int    `json:"max_conns" validate:"min=1"`

	// Locking: an empty RedisAddr keeps locks in-process.
	RedisAddr          string `json:"redis_addr"`
	LockTimeoutSeconds int    `json:"lock_timeout_seconds" validate:"min=1"`

	// Recompute rate limit per user
	RecomputePerMinute float64 `json:"recompute_per_minute" validate:"gt=0"`
	RecomputeBurst     int     `json:"recompute_burst" validate:"min=1"`

	LogLevel string `json:"log_level" validate:"oneof=trace debug info warn error"`

	// Engine thresholds
	Engine tasteid.Config `json:"engine"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
	validate     = validator.New()
)

// DataDir returns the data directory path (~/.tasteid), or TASTEID_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("TASTEID_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tasteid")
}

// DBPath returns the SQLite database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "tasteid.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultSettings := `{
  "TASTEID_WORKER_PORT": 37780,
  "TASTEID_DB_DRIVER": "sqlite",
  "TASTEID_LOG_LEVEL": "info",
  "engine": {}
}
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerHost:         "127.0.0.1",
		WorkerPort:         DefaultWorkerPort,
		DBDriver:           DefaultDBDriver,
		DBDSN:              DBPath(),
		MaxConns:           4,
		LockTimeoutSeconds: 10,
		RecomputePerMinute: 6,
		RecomputeBurst:     2,
		LogLevel:           "info",
		Engine:             tasteid.DefaultConfig(),
	}
}

// Load loads the settings file and environment overrides, merging with defaults.
func Load() (*Config, error) {
	return LoadFrom(SettingsPath())
}

// LoadFrom loads configuration from path. A missing file yields defaults; an
// unparseable or invalid one is an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err == nil {
		if err := cfg.applySettings(data); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applySettings(data []byte) error {
	var settings map[string]json.RawMessage
	if err := json.Unmarshal(data, &settings); err != nil {
		return err
	}

	fields := map[string]any{
		"TASTEID_WORKER_HOST":          &c.WorkerHost,
		"TASTEID_WORKER_PORT":          &c.WorkerPort,
		"TASTEID_DB_DRIVER":            &c.DBDriver,
		"TASTEID_DB_DSN":               &c.DBDSN,
		"TASTEID_MAX_CONNS":            &c.MaxConns,
		"TASTEID_REDIS_ADDR":           &c.RedisAddr,
		"TASTEID_LOCK_TIMEOUT_SECONDS": &c.LockTimeoutSeconds,
		"TASTEID_RECOMPUTE_PER_MINUTE": &c.RecomputePerMinute,
		"TASTEID_RECOMPUTE_BURST":      &c.RecomputeBurst,
		"TASTEID_LOG_LEVEL":            &c.LogLevel,
		"engine":                       &c.Engine,
	}
	for key, target := range fields {
		raw, ok := settings[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// applyEnv overrides settings from TASTEID_* environment variables. Malformed
// numbers are ignored.
func (c *Config) applyEnv() {
	if v := os.Getenv("TASTEID_WORKER_HOST"); v != "" {
		c.WorkerHost = v
	}
	if v, err := strconv.Atoi(os.Getenv("TASTEID_WORKER_PORT")); err == nil && v > 0 {
		c.WorkerPort = v
	}
	if v := os.Getenv("TASTEID_DB_DRIVER"); v != "" {
		c.DBDriver = v
	}
	if v := os.Getenv("TASTEID_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v, err := strconv.Atoi(os.Getenv("TASTEID_MAX_CONNS")); err == nil && v > 0 {
		c.MaxConns = v
	}
	if v := os.Getenv("TASTEID_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("TASTEID_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Set replaces the global configuration, e.g. after a hot reload.
func Set(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
