package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittosync/pkg/store"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts both
// cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if _, err := store.ParseKind(cfg.Stores.Kind); err != nil {
		return fmt.Errorf("stores.kind: %w", err)
	}

	switch cfg.Physical.Type {
	case "filesystem":
		opts, err := decodeFilesystemOptions(cfg.Physical.Filesystem)
		if err != nil {
			return fmt.Errorf("physical.filesystem: %w", err)
		}
		if opts.Path == "" {
			return fmt.Errorf("physical.filesystem: path is required")
		}
	case "memory":
		if _, err := decodeMemoryOptions(cfg.Physical.Memory); err != nil {
			return fmt.Errorf("physical.memory: %w", err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
