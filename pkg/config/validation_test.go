package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidDatabaseType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown database type")
	}
}

func TestValidate_BadgerRequiresPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for badger without path")
	}
	if !strings.Contains(err.Error(), "required_if") {
		t.Errorf("Expected 'required_if' validation error, got: %v", err)
	}

	cfg.Database.Type = "memory"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected memory database without path to be valid, got: %v", err)
	}
}

func TestValidate_InvalidPhysicalType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Physical.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown physical type")
	}
}

func TestValidate_FilesystemRequiresPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Physical.Filesystem = map[string]any{}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for filesystem without path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestValidate_MalformedPhysicalSection(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Physical.Filesystem = map[string]any{"path": []int{1, 2}}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for malformed filesystem section")
	}
}

func TestValidate_InvalidStoreKind(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Stores.Kind = "mirror"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown store kind")
	}
}

func TestValidate_MissingUserID(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Stores.UserID = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for empty user id")
	}
}

func TestValidate_CleanupBatchSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cleanup.BatchSize = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative batch size")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for out of range metrics port")
	}

	cfg.Metrics.Port = 0
	cfg.Metrics.Enabled = true
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for enabled metrics without port")
	}
	if !strings.Contains(err.Error(), "port is required") {
		t.Errorf("Expected 'port is required' error, got: %v", err)
	}
}
