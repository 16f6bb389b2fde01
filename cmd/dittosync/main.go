package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/core"
)

// Options shared by every command.
var global struct {
	Config string `long:"config" short:"c" env:"DITTOSYNC_CONFIG" description:"Path to the configuration file (default: ~/.config/dittosync/config.yaml)"`
}

func main() {
	parser := flags.NewParser(&global, flags.Default)
	parser.LongDescription = `dittosync keeps the metadata of a tree of shared stores: the namespace of
each store, the anchors that mount child stores, and the per-device sync status
of every object.

Run 'dittosync init' to write a default configuration file, then 'dittosync run'.`

	mustAddCmd(parser.Command, "init", "Write a default configuration file", `
Write the default configuration, with comments, to --output or to the default
location. An existing file is kept unless --force is given.
`, &cmdInit{})
	mustAddCmd(parser.Command, "run", "Run the metadata core", `
Open the metadata database, start the store cleanup, the metrics endpoint and
the sync-status feed, and run until interrupted.
`, &cmdRun{})
	mustAddCmd(parser.Command, "tree", "Print the namespace of the root store", `
Print every object reachable from the root store, following anchors into child
stores. Files show the length of their MASTER branch.
`, &cmdTree{})
	mustAddCmd(parser.Command, "stores", "List the store hierarchy", "", &cmdStores{})
	mustAddCmd(parser.Command, "changes", "Print the change log of a store", `
Print content changes recorded for a store of kind 'changelog', starting at
sequence number --from.
`, &cmdChanges{})
	mustAddCmd(parser.Command, "cleanup", "Purge the rows of deleted stores now", "", &cmdCleanup{})

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAddCmd(cmd *flags.Command, name, short, long string, data any) *flags.Command {
	c, err := cmd.AddCommand(name, short, long, data)
	if err != nil {
		panic(fmt.Sprintf("failed to add command %s: %v", name, err))
	}
	return c
}

// loadConfig reads the configuration named by --config and applies its
// logging section.
func loadConfig() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(global.Config)
	if err != nil {
		return nil, nil, err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	closer, err := logger.SetOutput(cfg.Logging.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set log output: %w", err)
	}
	return cfg, closer, nil
}

// withCore opens the core for a one-shot command, runs fn and closes it.
func withCore(fn func(c *core.Core) error) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	c, err := core.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			logger.Error("Failed to close metadata database: %v", err)
		}
	}()

	return fn(c)
}
