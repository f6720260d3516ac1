// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/certbundle/cabot/internal/api"
	"github.com/certbundle/cabot/internal/config"
	"github.com/certbundle/cabot/internal/daemon"
	"github.com/certbundle/cabot/internal/gitcli"
	"github.com/certbundle/cabot/internal/health"
	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/telemetry"
	"github.com/certbundle/cabot/internal/version"
)

func runServe(configPath string) int {
	log.Configure(log.Config{
		Level:   "info",
		Service: "cabot",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, effectivePath, err := loadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).
			Str("event", "config.invalid").
			Msg("configuration invalid")
		return 1
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "cabot",
		Version: cfg.Version,
	})

	if effectivePath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str(log.FieldPath, effectivePath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.ListenAddr).
		Str("repo", cfg.RepoOwner+"/"+cfg.RepoName).
		Str(log.FieldSubmodule, cfg.SubmodulePath).
		Msg("starting cabot")
	if cfg.APIToken == "" {
		logger.Warn().Msg("CABOT_API_TOKEN not set: dispatch API will reject all requests")
	}
	if cfg.GPGPrivateKey == "" {
		logger.Warn().Msg("no signing key configured: commits will be unsigned")
	}
	if err := cfg.ValidateForDispatch(); err != nil {
		logger.Warn().Err(err).Msg("dispatch config incomplete: update runs will be refused until it is")
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    "cabot",
		ServiceVersion: version.Version,
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.OTELSampling,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialize tracing")
		return 1
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "runtime.init_failed").Msg("failed to initialize runtime")
		return 1
	}

	// Config hot reload: watch the file so the next run picks up changed
	// PR metadata or branches without a restart. Credentials stay env-only.
	if effectivePath != "" {
		holder := config.NewHolder(cfg, config.NewLoader(effectivePath, version.Version), effectivePath)
		if err := holder.Watch(ctx); err != nil {
			logger.Warn().Err(err).Str("event", "config.watch_failed").Msg("config watcher not started")
		} else {
			rt.holder = holder
		}
	}

	hm := buildHealthManager(cfg, rt)
	server := api.New(cfg, rt.dispatch,
		api.WithHistory(rt.history),
		api.WithHealthManager(hm),
	)
	hm.RegisterChecker(health.NewLastRunChecker(server.LastRun))

	mgr := daemon.NewManager(cfg.ListenAddr, server.Handler(), logger)
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("runtime", func(context.Context) error { return rt.Close() })

	if err := mgr.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
		return 1
	}

	logger.Info().Msg("server exiting")
	return 0
}

func buildHealthManager(cfg config.AppConfig, rt *runtime) *health.Manager {
	hm := health.NewManager(version.Version)

	probe := gitcli.New(gitcli.WithTimeout(cfg.GitTimeout))
	hm.RegisterChecker(health.NewFuncChecker("git", func(ctx context.Context) error {
		_, err := probe.Version(ctx)
		return err
	}))
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	hm.RegisterChecker(health.NewFuncChecker("history", rt.history.Ping))
	hm.RegisterChecker(health.NewFuncChecker("github", rt.github.Ping))

	return hm
}
