package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

database:
  type: "memory"

physical:
  type: "memory"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Type != "memory" || cfg.Database.Path != "" {
		t.Errorf("Unexpected database section %+v", cfg.Database)
	}
	if cfg.Physical.Memory["root"] != "/stores" {
		t.Errorf("Expected default memory root, got %v", cfg.Physical.Memory["root"])
	}
	if cfg.Stores.Kind != "plain" {
		t.Errorf("Expected default store kind 'plain', got %q", cfg.Stores.Kind)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Physical.Type != "filesystem" {
		t.Errorf("Expected default physical type 'filesystem', got %q", cfg.Physical.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
stores:
  kind: "mirror"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[database]
type = "memory"

[cleanup]
enabled = true
interval = "5m"
batch_size = 250

[physical]
type = "filesystem"

[physical.filesystem]
path = "/srv/dittosync"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if !cfg.Cleanup.Enabled || cfg.Cleanup.Interval != 5*time.Minute || cfg.Cleanup.BatchSize != 250 {
		t.Errorf("Unexpected cleanup section %+v", cfg.Cleanup)
	}
	if cfg.Physical.Filesystem["path"] != "/srv/dittosync" {
		t.Errorf("Expected filesystem path '/srv/dittosync', got %v", cfg.Physical.Filesystem["path"])
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg-test")

	if dir := GetConfigDir(); dir != filepath.Join("/etc/xdg-test", "dittosync") {
		t.Errorf("Expected directory under XDG_CONFIG_HOME, got %q", dir)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOSYNC_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOSYNC_METRICS_PORT", "9191")
	t.Setenv("DITTOSYNC_STORES_USER_ID", "carol")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

database:
  type: "memory"

metrics:
  port: 9090
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Expected port 9191 from env var, got %d", cfg.Metrics.Port)
	}
	if cfg.Stores.UserID != "carol" {
		t.Errorf("Expected user id 'carol' from env var, got %q", cfg.Stores.UserID)
	}
}
