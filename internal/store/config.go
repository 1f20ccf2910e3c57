package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dmarx/gh-store/internal/githubgw"
)

// DefaultConfigPath returns ~/.config/gh-store/config.yml, the path
// ResolveConfigPath falls back to when the caller doesn't name one.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gh-store", "config.yml")
}

// ResolveConfigPath implements the original tool's config discovery:
// an explicitly given path must exist, or it's an error; with no path
// given, the default path is used if present, and packaged defaults
// (an empty path, meaning "use DefaultConfig()") apply otherwise.
func ResolveConfigPath(given string) (string, error) {
	if given != "" {
		if _, err := os.Stat(given); err != nil {
			return "", fmt.Errorf("store: config path %q does not exist: %w", given, err)
		}
		return given, nil
	}

	def := DefaultConfigPath()
	if def != "" {
		if _, err := os.Stat(def); err == nil {
			return def, nil
		}
	}
	return "", nil
}

// Config is the store.* configuration tree (spec.md section 6). TOML
// files decode through BurntSushi/toml directly; every other format
// viper supports (YAML, JSON, ...) goes through viper's own codec.
type Config struct {
	Store StoreConfig `mapstructure:"store" toml:"store"`
}

type StoreConfig struct {
	BaseLabel string          `mapstructure:"base_label" toml:"base_label"`
	UIDPrefix string          `mapstructure:"uid_prefix" toml:"uid_prefix"`
	Reactions ReactionsConfig `mapstructure:"reactions" toml:"reactions"`
	Retries   RetriesConfig   `mapstructure:"retries" toml:"retries"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" toml:"rate_limit"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

type ReactionsConfig struct {
	Processed    string `mapstructure:"processed" toml:"processed"`
	InitialState string `mapstructure:"initial_state" toml:"initial_state"`
}

type RetriesConfig struct {
	MaxAttempts   int     `mapstructure:"max_attempts" toml:"max_attempts"`
	BackoffFactor float64 `mapstructure:"backoff_factor" toml:"backoff_factor"`
}

type RateLimitConfig struct {
	MaxRequestsPerHour int `mapstructure:"max_requests_per_hour" toml:"max_requests_per_hour"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// DefaultConfig matches the packaged defaults the original
// implementation ships (tests/unit/test_config.py).
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			BaseLabel: "stored-object",
			UIDPrefix: "UID:",
			Reactions: ReactionsConfig{Processed: "+1", InitialState: "rocket"},
			Retries:   RetriesConfig{MaxAttempts: 3, BackoffFactor: 2},
			RateLimit: RateLimitConfig{MaxRequestsPerHour: 1000},
			Log:       LogConfig{Level: "INFO", Format: "text"},
		},
	}
}

// LoadConfig reads configPath, falling back to DefaultConfig's values
// for anything the file doesn't set. An empty configPath loads
// defaults only. ".toml" files are decoded directly with BurntSushi/toml;
// every other extension (yaml, json, ...) goes through viper.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("store: decode toml config %q: %w", configPath, err)
		}
		return cfg, nil
	}

	v := viper.New()
	setDefaults(v, cfg)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("store: read config %q: %w", configPath, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("store: decode config %q: %w", configPath, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("store.base_label", cfg.Store.BaseLabel)
	v.SetDefault("store.uid_prefix", cfg.Store.UIDPrefix)
	v.SetDefault("store.reactions.processed", cfg.Store.Reactions.Processed)
	v.SetDefault("store.reactions.initial_state", cfg.Store.Reactions.InitialState)
	v.SetDefault("store.retries.max_attempts", cfg.Store.Retries.MaxAttempts)
	v.SetDefault("store.retries.backoff_factor", cfg.Store.Retries.BackoffFactor)
	v.SetDefault("store.rate_limit.max_requests_per_hour", cfg.Store.RateLimit.MaxRequestsPerHour)
	v.SetDefault("store.log.level", cfg.Store.Log.Level)
	v.SetDefault("store.log.format", cfg.Store.Log.Format)
}

// WatchConfig installs a live-reload hook on configPath: whenever the
// file changes on disk, it is reparsed and onChange is called with
// the new Config. Errors while reparsing are logged and the previous
// Config is kept in effect.
func WatchConfig(configPath string, logger *slog.Logger, onChange func(Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if configPath == "" {
		return fmt.Errorf("store: cannot watch an empty config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("store: read config %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		setDefaults(v, cfg)
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn("store: ignoring unparseable config change", "path", e.Name, "op", e.Op.String(), "error", err)
			return
		}
		logger.Info("store: config reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ToGatewayConfig converts the configured retry policy into the
// githubgw.RetryConfig its Gateway is constructed with.
func (r RetriesConfig) ToGatewayConfig() githubgw.RetryConfig {
	cfg := githubgw.DefaultRetryConfig()
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.BackoffFactor > 0 {
		cfg.BackoffFactor = r.BackoffFactor
	}
	return cfg
}
