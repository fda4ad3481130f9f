// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/config"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
	"github.com/bureau-foundation/runtimed/lib/ledger"
	"github.com/bureau-foundation/runtimed/lib/process"
	"github.com/bureau-foundation/runtimed/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("runtimed", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to runtimed.yaml (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("runtimed")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Ledger), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}
	realClock := clock.Real()
	store, err := ledger.Open(ledger.Config{
		Path:     cfg.Paths.Ledger,
		PoolSize: cfg.Ledger.PoolSize,
		Clock:    realClock,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := NewHost(HostConfig{
		RuntimeDir:        cfg.Paths.RuntimeDir,
		Ledger:            store,
		Transport:         wire.ZMQTransport{Logger: logger},
		Clock:             realClock,
		Logger:            logger,
		DiscoveryInterval: cfg.Discovery.Interval,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		DetachGrace:       cfg.Session.DetachGrace,
	})

	logger.Info("runtimed running",
		"version", version.Info(),
		"environment", cfg.Environment,
		"runtime_dir", cfg.Paths.RuntimeDir,
		"ledger", cfg.Paths.Ledger,
	)
	host.Run(ctx)
	logger.Info("runtimed stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}
