package config

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/physical"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
)

// FilesystemOptions is the physical.filesystem section.
type FilesystemOptions struct {
	// Path is the directory holding the root store
	Path string `mapstructure:"path"`
}

// MemoryOptions is the physical.memory section.
type MemoryOptions struct {
	// Root is the directory of the root store inside the in-memory filesystem
	Root string `mapstructure:"root"`
}

func decodeFilesystemOptions(options map[string]any) (FilesystemOptions, error) {
	var opts FilesystemOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return opts, fmt.Errorf("invalid filesystem config: %w", err)
	}
	return opts, nil
}

func decodeMemoryOptions(options map[string]any) (MemoryOptions, error) {
	var opts MemoryOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return opts, fmt.Errorf("invalid memory config: %w", err)
	}
	if opts.Root == "" {
		opts.Root = "/stores"
	}
	return opts, nil
}

// CreatePhysicalStorage creates the physical storage backend selected by
// cfg.Type, decoding the matching type-specific section.
//
// Supported types:
//   - "filesystem": the local disk under physical.filesystem.path
//   - "memory": an in-memory filesystem, for tests and dry runs
func CreatePhysicalStorage(cfg *PhysicalConfig) (*physical.FS, error) {
	switch cfg.Type {
	case "filesystem":
		opts, err := decodeFilesystemOptions(cfg.Filesystem)
		if err != nil {
			return nil, err
		}
		if opts.Path == "" {
			return nil, fmt.Errorf("filesystem path is required")
		}
		logger.Debug("Physical storage: filesystem at %s", opts.Path)
		return physical.NewFS(afero.NewOsFs(), opts.Path)
	case "memory":
		opts, err := decodeMemoryOptions(cfg.Memory)
		if err != nil {
			return nil, err
		}
		logger.Debug("Physical storage: memory at %s", opts.Root)
		return physical.NewFS(afero.NewMemMapFs(), opts.Root)
	default:
		return nil, fmt.Errorf("unknown physical storage type: %q", cfg.Type)
	}
}

// OpenDatabase opens the metadata database selected by cfg.Type.
func OpenDatabase(cfg *DatabaseConfig) (*badger.DB, error) {
	switch cfg.Type {
	case "badger":
		logger.Debug("Metadata database: badger at %s", cfg.Path)
		return db.Open(db.Options{Path: cfg.Path})
	case "memory":
		logger.Debug("Metadata database: in memory")
		return db.Open(db.Options{InMemory: true})
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Type)
	}
}
