// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/certbundle/cabot/internal/jobs"
	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/version"
)

// runUpdateCLI runs one update synchronously, for cron jobs and operators
// who want the result in the exit code.
func runUpdateCLI(args []string) int {
	fs := newFlagSet("update")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Configure(log.Config{
		Level:   "info",
		Service: "cabot",
		Version: version.Version,
	})
	logger := log.WithComponent("update")

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	if err := cfg.ValidateForDispatch(); err != nil {
		logger.Error().Err(err).Msg("configuration incomplete for dispatch")
		return 1
	}
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "cabot",
		Version: cfg.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	rt, err := newRuntime(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize runtime")
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("runtime close failed")
		}
	}()

	status, err := rt.dispatch(ctx)
	if status == nil {
		logger.Error().Err(err).Msg("update run aborted")
		return 1
	}

	switch status.Outcome {
	case jobs.OutcomeUpdated:
		fmt.Fprintf(os.Stdout, "updated: %s -> %s (+%d/-%d certs), PR %s\n",
			status.OldCommit, status.NewCommit, status.CertsAdded, status.CertsRemoved, status.PRURL)
		return 0
	case jobs.OutcomeNoChange:
		fmt.Fprintln(os.Stdout, "no change: submodule already at upstream tip")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "failed at %s: %s\n", status.Stage, status.Error)
		return 1
	}
}
