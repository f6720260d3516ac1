// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/certbundle/cabot/internal/cache"
	"github.com/certbundle/cabot/internal/config"
	"github.com/certbundle/cabot/internal/github"
	"github.com/certbundle/cabot/internal/gitcli"
	"github.com/certbundle/cabot/internal/jobs"
	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/resilience"
	"github.com/certbundle/cabot/internal/signing"
	"github.com/certbundle/cabot/internal/state"
	"github.com/certbundle/cabot/internal/store"
	"github.com/certbundle/cabot/internal/version"
)

// loadConfig resolves the effective config path and loads configuration
// with precedence ENV > file > defaults. An empty explicit path falls back
// to ${CABOT_DATA}/config.yaml when that file exists.
func loadConfig(explicitPath string) (config.AppConfig, string, error) {
	effective := strings.TrimSpace(explicitPath)
	if effective == "" {
		dataDir := strings.TrimSpace(config.ParseString("CABOT_DATA", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effective = autoPath
			}
		}
	}
	cfg, err := config.NewLoader(effective, version.Version).Load()
	return cfg, effective, err
}

// runtime holds the long-lived dependencies shared by the daemon and the
// one-shot update command.
type runtime struct {
	cfg     config.AppConfig
	holder  *config.Holder // optional, enables hot-reloaded run config
	history *store.Store
	state   *state.Store
	cache   cache.Cache
	breaker *resilience.CircuitBreaker
	github  *github.Client
}

func newRuntime(cfg config.AppConfig) (*runtime, error) {
	logger := log.WithComponent("runtime")

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = cfg.DataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, err
	}

	history, err := store.Open(filepath.Join(cfg.DataDir, "runs.db"))
	if err != nil {
		return nil, err
	}

	st, err := state.Open(filepath.Join(stateDir, "state"))
	if err != nil {
		_ = history.Close()
		return nil, err
	}

	var cc cache.Cache
	if cfg.RedisAddr != "" {
		cc, err = cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
			cc = cache.NewMemory(5 * time.Minute)
		}
	} else {
		cc = cache.NewMemory(5 * time.Minute)
	}

	return &runtime{
		cfg:     cfg,
		history: history,
		state:   st,
		cache:   cc,
		breaker: resilience.NewCircuitBreaker("github", 5, 30*time.Second),
		github: github.New(cfg.GitHubAPIBase, cfg.RepoOwner, cfg.RepoName, cfg.GitHubToken,
			github.WithCache(cc)),
	}, nil
}

func (rt *runtime) Close() error {
	err := rt.state.Close()
	if herr := rt.history.Close(); err == nil {
		err = herr
	}
	return err
}

// runConfig returns the configuration for the next run, picking up file
// changes applied since startup when a holder is wired.
func (rt *runtime) runConfig() config.AppConfig {
	if rt.holder != nil {
		return rt.holder.Current()
	}
	return rt.cfg
}

// dispatch runs one update. The signing keyring is ephemeral per run so
// key material never outlives the run that used it.
func (rt *runtime) dispatch(ctx context.Context) (*jobs.Status, error) {
	cfg := rt.runConfig()

	var keyring *signing.Keyring
	var gitEnv []string
	if cfg.GPGPrivateKey != "" {
		kr, err := signing.Setup(ctx, cfg.DataDir, cfg.GPGPrivateKey, cfg.GPGPassphrase)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := kr.Cleanup(); cerr != nil {
				logger := log.FromContext(ctx)
				logger.Warn().Err(cerr).Msg("keyring cleanup failed")
			}
		}()
		keyring = kr
		gitEnv = kr.GitEnv()
	}

	runner := gitcli.New(
		gitcli.WithTimeout(cfg.GitTimeout),
		gitcli.WithEnv(gitEnv...),
		gitcli.WithSecret(cfg.GitHubToken),
	)
	repo := gitcli.NewRepo(runner, cfg.WorkDir(), cfg.RepoURL, cfg.GitHubToken)

	return jobs.Update(ctx, jobs.Deps{
		Cfg:     cfg,
		Repo:    repo,
		GitHub:  rt.github,
		State:   rt.state,
		History: rt.history,
		Keyring: keyring,
		Breaker: rt.breaker,
	})
}
