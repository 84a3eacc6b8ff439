package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leadscout-hq/leadscout/internal/app"
	"github.com/leadscout-hq/leadscout/internal/config"
	"github.com/leadscout-hq/leadscout/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scout start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("scout starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scout, err := app.NewScout(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize scout", "error", err)
		return err
	}

	if err := scout.Run(ctx); err != nil {
		return fmt.Errorf("scout run: %w", err)
	}

	return nil
}
