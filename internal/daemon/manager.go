// SPDX-License-Identifier: MIT

// Package daemon manages the server lifecycle: listening, graceful
// shutdown, and ordered resource cleanup.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager runs the HTTP server and owns shutdown ordering.
type Manager struct {
	listenAddr      string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          zerolog.Logger

	mu      sync.Mutex
	hooks   []namedHook
	started bool
	addr    net.Addr
}

// NewManager creates a daemon manager serving handler on listenAddr.
func NewManager(listenAddr string, handler http.Handler, logger zerolog.Logger) *Manager {
	return &Manager{
		listenAddr:      listenAddr,
		handler:         handler,
		shutdownTimeout: 15 * time.Second,
		logger:          logger.With().Str("component", "daemon").Logger(),
	}
}

// RegisterShutdownHook adds a cleanup step, run LIFO on shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Addr reports the bound listen address once Run has started serving.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// gracefully and runs the registered hooks.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.listenAddr, err)
	}
	m.mu.Lock()
	m.addr = ln.Addr()
	m.mu.Unlock()

	srv := &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		m.logger.Info().
			Str("event", "daemon.listening").
			Str("addr", ln.Addr().String()).
			Msg("server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.shutdown").Msg("shutdown signal received")
	case serveErr = <-errChan:
		m.logger.Error().Err(serveErr).Str("event", "daemon.serve_failed").Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		m.logger.Error().Err(err).Str("event", "daemon.shutdown_failed").Msg("graceful shutdown failed")
		_ = srv.Close()
	}

	m.runHooks(shutdownCtx)
	return serveErr
}

func (m *Manager) runHooks(ctx context.Context) {
	m.mu.Lock()
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).
				Str("event", "daemon.hook_failed").
				Str("hook", h.name).
				Msg("shutdown hook failed")
		} else {
			m.logger.Debug().
				Str("event", "daemon.hook_done").
				Str("hook", h.name).
				Msg("shutdown hook completed")
		}
	}
}
