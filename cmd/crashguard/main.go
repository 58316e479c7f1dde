// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/crashguard/internal/api"
	"github.com/tomtom215/crashguard/internal/config"
	"github.com/tomtom215/crashguard/internal/logging"
)

func main() {
	// Configuration first so logging can be set up from it.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if path := config.ConfigFile(); path != "" {
		watchLogLevel(path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Crashguard stopped with an error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Crashguard stopped gracefully")
}

// run serves the supervisor until ctx is canceled and then closes it.
func run(ctx context.Context, cfg *config.Config) error {
	sup, err := api.New(cfg, api.Options{})
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	logging.Info().
		Bool("http", cfg.Server.Enabled).
		Str("addr", cfg.Server.Addr).
		Bool("in_memory_saves", cfg.Save.InMemory).
		Msg("Starting supervisor tree")

	var serveErr error
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		serveErr = fmt.Errorf("supervisor tree: %w", err)
	}

	unstopped, _ := sup.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err := sup.Close(); err != nil {
		return errors.Join(serveErr, fmt.Errorf("close supervisor: %w", err))
	}
	return serveErr
}

// watchLogLevel re-applies logging.level whenever the config file changes.
func watchLogLevel(path string) {
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid configuration change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}
