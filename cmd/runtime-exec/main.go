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
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/runtimed/lib/jupyter/runtime"
	"github.com/bureau-foundation/runtimed/lib/jupyter/session"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
	"github.com/bureau-foundation/runtimed/lib/process"
	"github.com/bureau-foundation/runtimed/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		connectionFile string
		code           string
		timeout        time.Duration
		kernelInfo     bool
		verbose        bool
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("runtime-exec", pflag.ContinueOnError)
	flagSet.StringVar(&connectionFile, "connection-file", "", "kernel connection file (required)")
	flagSet.StringVar(&code, "code", "", "code to execute (required)")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "deadline for the whole exchange")
	flagSet.BoolVar(&kernelInfo, "kernel-info", false, "print kernel information before executing")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log protocol activity to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("runtime-exec")
		return nil
	}
	if connectionFile == "" {
		return fmt.Errorf("--connection-file is required")
	}
	if code == "" {
		return fmt.Errorf("--code is required")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	descriptor, err := runtime.ParseConnectionFile(connectionFile)
	if err != nil {
		return err
	}
	defer descriptor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := session.Attach(ctx, descriptor, session.Config{
		Transport: wire.ZMQTransport{Logger: logger},
		Logger:    logger,
		Username:  "runtime-exec",
	})
	if err != nil {
		return err
	}
	defer s.Detach()

	return execute(ctx, s, options{code: code, kernelInfo: kernelInfo}, os.Stdout)
}
