package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestApplyDefaults_Database(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/test")
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Database.Type != "badger" {
		t.Errorf("Expected default database type 'badger', got %q", cfg.Database.Type)
	}
	if want := filepath.Join("/var/lib/test", "dittosync", "db"); cfg.Database.Path != want {
		t.Errorf("Expected default database path %q, got %q", want, cfg.Database.Path)
	}

	// An in-memory database needs no path.
	cfg = &Config{Database: DatabaseConfig{Type: "memory"}}
	ApplyDefaults(cfg)
	if cfg.Database.Path != "" {
		t.Errorf("Expected no path for memory database, got %q", cfg.Database.Path)
	}
}

func TestApplyDefaults_Physical(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/test")
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Physical.Type != "filesystem" {
		t.Errorf("Expected default physical type 'filesystem', got %q", cfg.Physical.Type)
	}
	if path := cfg.Physical.Filesystem["path"]; path != filepath.Join("/var/lib/test", "dittosync", "stores") {
		t.Errorf("Unexpected default filesystem path %v", path)
	}
	if root := cfg.Physical.Memory["root"]; root != "/stores" {
		t.Errorf("Expected default memory root '/stores', got %v", root)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Physical: PhysicalConfig{
			Type:       "memory",
			Filesystem: map[string]any{"path": "/custom"},
		},
		Stores:  StoresConfig{UserID: "alice", Kind: "changelog"},
		Cleanup: CleanupConfig{Interval: time.Hour, BatchSize: 7},
		Metrics: MetricsConfig{Port: 9191},
	}
	ApplyDefaults(cfg)

	if cfg.Physical.Type != "memory" {
		t.Errorf("Expected physical type 'memory', got %q", cfg.Physical.Type)
	}
	if cfg.Physical.Filesystem["path"] != "/custom" {
		t.Errorf("Expected filesystem path '/custom', got %v", cfg.Physical.Filesystem["path"])
	}
	if cfg.Stores.UserID != "alice" || cfg.Stores.Kind != "changelog" {
		t.Errorf("Unexpected stores section %+v", cfg.Stores)
	}
	if cfg.Cleanup.Interval != time.Hour || cfg.Cleanup.BatchSize != 7 {
		t.Errorf("Unexpected cleanup section %+v", cfg.Cleanup)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Expected metrics port 9191, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Stores(t *testing.T) {
	t.Setenv("USER", "bob")
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Stores.UserID != "bob" {
		t.Errorf("Expected user id from $USER, got %q", cfg.Stores.UserID)
	}
	if cfg.Stores.Kind != "plain" {
		t.Errorf("Expected default store kind 'plain', got %q", cfg.Stores.Kind)
	}
}

func TestApplyDefaults_Cleanup(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cleanup.Enabled {
		t.Error("Expected cleanup to stay disabled unless configured")
	}
	if cfg.Cleanup.Interval != time.Minute {
		t.Errorf("Expected default cleanup interval 1m, got %v", cfg.Cleanup.Interval)
	}
	if cfg.Cleanup.BatchSize != 1000 {
		t.Errorf("Expected default batch size 1000, got %d", cfg.Cleanup.BatchSize)
	}
	if cfg.Feed.Interval != 30*time.Second {
		t.Errorf("Expected default feed interval 30s, got %v", cfg.Feed.Interval)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Cleanup.Enabled {
		t.Error("Expected cleanup enabled in default config")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled in default config")
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}
