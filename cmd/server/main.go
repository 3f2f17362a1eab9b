package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"bossspawner/internal/config"
	"bossspawner/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the boss config (created with defaults when missing)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "bossspawner:", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(cfg)
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if created {
		logger.Info("wrote default config", zap.String("path", configPath))
	}
	logger.Info("config loaded",
		zap.String("path", configPath),
		zap.Int("bosses", len(cfg.Bosses)),
		zap.Bool("enabled", cfg.IsEnabled()))

	a, err := newApp(cfg, configPath, logger, level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}
