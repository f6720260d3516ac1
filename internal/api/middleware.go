// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/certbundle/cabot/internal/auth"
	"github.com/certbundle/cabot/internal/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// requestIDMiddleware tags every request with a correlation ID, carried in
// the context, the log output, and the X-Request-ID response header.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		ctx := log.ContextWithRequestID(r.Context(), reqID)
		logger := log.WithContext(ctx, log.WithComponent("api"))
		ctx = logger.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Debug().
			Str("event", "http.request").
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the API token on everything under /api. No token
// configured means fail closed: the dispatch surface can push commits and
// open PRs, it must never be open by accident.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "auth")

		token := s.cfg.APIToken
		if token == "" {
			logger.Error().Str("event", "auth.fail_closed").Msg("CABOT_API_TOKEN not set, denying access")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		presented := auth.ExtractToken(r)
		if presented == "" {
			logger.Warn().Str("event", "auth.missing_token").Msg("authorization header missing")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		if !auth.AuthorizeToken(presented, token) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
