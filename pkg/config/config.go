package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete DittoSync configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOSYNC_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Backend sections follow the same pattern everywhere: a Type field selects
// the implementation and only the matching type-specific map is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database selects where metadata rows are kept
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Cache bounds the in-memory metadata caches
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Physical selects where store directories and file content live
	Physical PhysicalConfig `mapstructure:"physical" yaml:"physical"`

	// Stores configures the store hierarchy
	Stores StoresConfig `mapstructure:"stores" yaml:"stores"`

	// Cleanup configures the staged cleanup of deleted stores
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`

	// Feed configures consumption of the remote sync-status feed
	Feed FeedConfig `mapstructure:"feed" yaml:"feed"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// DatabaseConfig selects the metadata database.
type DatabaseConfig struct {
	// Type is badger (on disk) or memory
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=badger memory"`

	// Path is the badger directory. Required when Type = "badger"
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Type badger"`
}

// CacheConfig bounds the metadata caches. Zero selects the built-in sizes.
type CacheConfig struct {
	PathSize int `mapstructure:"path_size" yaml:"path_size" validate:"gte=0"`
	OASize   int `mapstructure:"oa_size" yaml:"oa_size" validate:"gte=0"`
}

// PhysicalConfig specifies the physical storage backend.
type PhysicalConfig struct {
	// Type specifies which backend to use
	// Valid values: filesystem, memory
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`
}

// StoresConfig configures the store hierarchy.
type StoresConfig struct {
	// UserID derives the identifier of the root store
	UserID string `mapstructure:"user_id" yaml:"user_id" validate:"required"`

	// Kind is the kind of newly created stores
	// Valid values: plain, changelog
	Kind string `mapstructure:"kind" yaml:"kind" validate:"required,oneof=plain changelog"`
}

// CleanupConfig configures the background purge of deleted stores.
type CleanupConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between two cleanup runs
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`

	// BatchSize is the number of rows deleted per transaction
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`

	// BatchesPerSecond caps purge transactions per second, 0 for no limit
	BatchesPerSecond uint `mapstructure:"batches_per_second" yaml:"batches_per_second"`
}

// FeedConfig configures the sync-status puller.
type FeedConfig struct {
	// Interval between two pulls
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is not an
// error: defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOSYNC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables are only consulted for known keys.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.shutdown_timeout",
		"database.type", "database.path",
		"cache.path_size", "cache.oa_size",
		"physical.type",
		"stores.user_id", "stores.kind",
		"cleanup.enabled", "cleanup.interval", "cleanup.batch_size", "cleanup.batches_per_second",
		"feed.interval",
		"metrics.enabled", "metrics.host", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittosync/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated the same way.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittosync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittosync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
