package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

type section struct {
	key     string
	comment string
	value   any
}

// generateYAMLWithComments renders cfg section by section, each preceded by
// a short description.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []section{
		{"logging", "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr, file path)", cfg.Logging},
		{"server", "Process-wide settings", cfg.Server},
		{"database", "Metadata database: badger (on disk) or memory", cfg.Database},
		{"cache", "Metadata cache sizes, 0 for the built-in defaults", cfg.Cache},
		{"physical", "Physical storage: filesystem or memory; only the selected section is used", cfg.Physical},
		{"stores", "Store hierarchy: the user id derives the root store, kind is plain or changelog", cfg.Stores},
		{"cleanup", "Background purge of the rows of deleted stores", cfg.Cleanup},
		{"feed", "Remote sync-status feed polling", cfg.Feed},
		{"metrics", "Prometheus endpoint", cfg.Metrics},
	}

	var sb strings.Builder
	sb.WriteString("# DittoSync Configuration File\n")
	sb.WriteString("#\n")
	sb.WriteString("# Every value can be overridden with a DITTOSYNC_<SECTION>_<KEY> environment variable.\n")

	for _, s := range sections {
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s: %w", s.key, err)
		}
		sb.WriteString("\n# ")
		sb.WriteString(s.comment)
		sb.WriteString("\n")
		sb.Write(out)
	}
	return sb.String(), nil
}
