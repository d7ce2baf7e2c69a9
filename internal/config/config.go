// Package config loads stockpile configuration.
//
// Values come from, in increasing precedence: struct defaults, an optional
// YAML/TOML/JSON file, and STOCKPILE_* environment variables. Nested keys
// map to environment names by replacing dots with underscores, so
// store.busy_timeout is STOCKPILE_STORE_BUSY_TIMEOUT.
//
//	Key                             Default       Description
//	------------------------------  ------------  ------------------------------------
//	store.path                      stockpile.db  Store file, or ":memory:"
//	store.busy_timeout              5s            Wait for a file lock before BUSY
//	store.connect_attempts          3             Connect / busy-begin attempts
//	store.retry_backoff             1s            Delay between attempts
//	inventory.low_stock_threshold   10            Advisory low-stock threshold
//	log.level                       info          debug, info, warn, error
//	log.format                      console       console or json
//	backup.dir                      backups       Directory for generated backup names
//	backup.schedule                 ""            Cron spec for scheduled backups
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOCKPILE"

// Config is the complete stockpile configuration.
type Config struct {
	Store     Store     `mapstructure:"store"`
	Inventory Inventory `mapstructure:"inventory"`
	Log       Log       `mapstructure:"log"`
	Backup    Backup    `mapstructure:"backup"`
}

// Store configures the store file and connection retries.
type Store struct {
	Path            string        `mapstructure:"path" default:"stockpile.db"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout" default:"5s"`
	ConnectAttempts uint          `mapstructure:"connect_attempts" default:"3"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" default:"1s"`
}

// Inventory holds record-level settings.
type Inventory struct {
	LowStockThreshold int64 `mapstructure:"low_stock_threshold" default:"10"`
}

// Log selects the logger level and encoding.
type Log struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"console"`
}

// Backup configures backup placement and the optional cron schedule.
type Backup struct {
	Dir      string `mapstructure:"dir" default:"backups"`
	Schedule string `mapstructure:"schedule"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows.
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.busy_timeout must not be negative, got %s", c.Store.BusyTimeout))
	}
	if c.Store.ConnectAttempts == 0 {
		errs = append(errs, errors.New("store.connect_attempts must be at least 1"))
	}
	if c.Store.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("store.retry_backoff must not be negative, got %s", c.Store.RetryBackoff))
	}
	if c.Inventory.LowStockThreshold <= 0 {
		errs = append(errs, fmt.Errorf("inventory.low_stock_threshold must be positive, got %d", c.Inventory.LowStockThreshold))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func flatten(c Config) map[string]any {
	return map[string]any{
		"store.path":                    c.Store.Path,
		"store.busy_timeout":            c.Store.BusyTimeout,
		"store.connect_attempts":        c.Store.ConnectAttempts,
		"store.retry_backoff":           c.Store.RetryBackoff,
		"inventory.low_stock_threshold": c.Inventory.LowStockThreshold,
		"log.level":                     c.Log.Level,
		"log.format":                    c.Log.Format,
		"backup.dir":                    c.Backup.Dir,
		"backup.schedule":               c.Backup.Schedule,
	}
}
