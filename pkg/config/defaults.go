package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults, explicit values are preserved.
// Backend-specific maps receive the defaults of every backend so that a
// generated configuration file documents all of them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyPhysicalDefaults(&cfg.Physical)
	applyStoresDefaults(&cfg.Stores)
	applyCleanupDefaults(&cfg.Cleanup)
	applyFeedDefaults(&cfg.Feed)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.Type == "badger" && cfg.Path == "" {
		cfg.Path = filepath.Join(dataDir(), "db")
	}
}

func applyPhysicalDefaults(cfg *PhysicalConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(dataDir(), "stores")
	}
	if _, ok := cfg.Memory["root"]; !ok {
		cfg.Memory["root"] = "/stores"
	}
}

func applyStoresDefaults(cfg *StoresConfig) {
	if cfg.UserID == "" {
		cfg.UserID = defaultUserID()
	}
	if cfg.Kind == "" {
		cfg.Kind = "plain"
	}
}

func applyCleanupDefaults(cfg *CleanupConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
}

func applyFeedDefaults(cfg *FeedConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// dataDir returns $XDG_DATA_HOME/dittosync, ~/.local/share/dittosync, or a
// directory under the system temp dir.
func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dittosync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dittosync")
	}
	return filepath.Join(home, ".local", "share", "dittosync")
}

func defaultUserID() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Cleanup is enabled and metrics are disabled. Useful for generating sample
// configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Cleanup: CleanupConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
