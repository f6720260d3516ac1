// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certbundle/cabot/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder holds configuration with atomic reloading capability. It provides
// thread-safe access and supports hot reloading when the config file changes.
// Credential fields always come from the environment, so a reload can never
// rotate secrets.
type Holder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
}

// NewHolder creates a configuration holder with an initial config.
func NewHolder(initial AppConfig, loader *Loader, configPath string) *Holder {
	return &Holder{
		current:    initial,
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
}

// Current returns the current configuration (thread-safe read).
func (h *Holder) Current() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from file and validates it. If validation
// fails the old configuration is kept and an error is returned, so the swap
// is atomic: either the full new config applies or nothing changes.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	h.current = newCfg
	h.mu.Unlock()

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded")
	return nil
}

// Watch starts watching the config file for changes until ctx is cancelled.
// Editors replace files on save, so Create events are treated like Write.
func (h *Holder) Watch(ctx context.Context) error {
	if h.configPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %q: %w", h.configPath, err)
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				h.logger.Debug().Err(err).Msg("close config watcher")
			}
		}()

		// Debounce bursts of events from editors that write in chunks.
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Warn().
							Err(err).
							Str("event", "config.watch_reload_failed").
							Str("path", h.configPath).
							Msg("config reload after file change failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Warn().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
			}
		}
	}()
	return nil
}
