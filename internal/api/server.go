// SPDX-License-Identifier: MIT

// Package api exposes the dispatch HTTP surface: manual update dispatch,
// run status, run history, and the operational probes.
package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/certbundle/cabot/internal/config"
	"github.com/certbundle/cabot/internal/health"
	"github.com/certbundle/cabot/internal/jobs"
	"github.com/certbundle/cabot/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DispatchFunc runs one update and reports its status. The server owns
// single-flight; the function only has to do the work.
type DispatchFunc func(ctx context.Context) (*jobs.Status, error)

// RunLister serves the run history endpoint. Implemented by store.Store.
type RunLister interface {
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// Server is the dispatch API server.
type Server struct {
	mu            sync.RWMutex
	cfg           config.AppConfig
	dispatch      DispatchFunc
	history       RunLister
	healthManager *health.Manager
	inFlight      atomic.Bool
	last          *jobs.Status
	startTime     time.Time
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithHistory wires the run history store.
func WithHistory(h RunLister) Option {
	return func(s *Server) { s.history = h }
}

// WithHealthManager wires the probe manager behind /healthz and /readyz.
func WithHealthManager(m *health.Manager) Option {
	return func(s *Server) { s.healthManager = m }
}

// New builds a Server. The last run summary is restored from disk so
// /api/status survives a restart.
func New(cfg config.AppConfig, dispatch DispatchFunc, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		dispatch:  dispatch,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.DataDir != "" {
		if last, err := jobs.ReadSummary(cfg.DataDir); err == nil {
			s.last = last
		}
	}
	return s
}

// LastRun reports the most recent run for the readiness checker.
func (s *Server) LastRun() (time.Time, string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return time.Time{}, "", ""
	}
	return s.last.FinishedAt, string(s.last.Outcome), s.last.Error
}

func (s *Server) setLast(status *jobs.Status) {
	s.mu.Lock()
	s.last = status
	s.mu.Unlock()
}

// Handler assembles the routed handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(s.securityHeaders)

	if s.healthManager != nil {
		r.Get("/healthz", s.healthManager.ServeHealth)
		r.Get("/readyz", s.healthManager.ServeReady)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Use(s.authMiddleware)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
	})

	return otelhttp.NewHandler(r, "cabot.api")
}
