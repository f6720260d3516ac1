// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/metrics"
	"github.com/google/uuid"
)

type dispatchResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// handleDispatch starts an update run. Single-flight: a second dispatch
// while one is running gets 409, matching the run's exclusive hold on the
// working clone.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	// A daemon may start before its repo coordinates and secrets are
	// injected; such dispatches are refused instead of failing mid-run.
	if err := s.cfg.ValidateForDispatch(); err != nil {
		metrics.IncDispatchRejected("config")
		RespondError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.IncDispatchRejected("in_flight")
		RespondError(w, r, http.StatusConflict, ErrRunInFlight)
		return
	}

	runID := uuid.NewString()
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "dispatch.accepted").
		Str(log.FieldRunID, runID).
		Msg("update run dispatched")

	go s.runDispatch(runID)

	writeJSON(w, http.StatusAccepted, dispatchResponse{RunID: runID, Status: "accepted"})
}

// runDispatch executes the update in the background, detached from the
// request's context so a closed connection does not abort a half-pushed run.
func (s *Server) runDispatch(runID string) {
	defer s.inFlight.Store(false)

	timeout := s.cfg.RunTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(log.ContextWithRunID(context.Background(), runID), timeout)
	defer cancel()

	status, err := s.dispatch(ctx)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "api")
		logger.Error().Err(err).
			Str("event", "dispatch.failed").
			Msg("update run failed")
	}
	if status != nil {
		s.setLast(status)
	}
}

// handleStatus reports the most recent run, in memory or restored from the
// on-disk summary.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		RespondError(w, r, http.StatusNotFound, ErrNoRuns)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// handleRuns serves the persisted run history, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		RespondError(w, r, http.StatusServiceUnavailable, ErrNoHistory)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			RespondError(w, r, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str("event", "runs.list_failed").
			Msg("listing run history failed")
		RespondError(w, r, http.StatusInternalServerError, errHistoryUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
