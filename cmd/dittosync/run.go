package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/core"
)

type cmdRun struct{}

func (cmd *cmdRun) Execute([]string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	c, err := core.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No remote feed is configured by the standalone binary; statuses are
	// only changed through the core API.
	c.Start(ctx, nil)
	logger.Info("dittosync is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return c.Close(shutdownCtx)
}
