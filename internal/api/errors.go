// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/certbundle/cabot/internal/log"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRunInFlight  = errors.New("an update run is already in flight")
	ErrNoRuns       = errors.New("no update run recorded yet")
	ErrNoHistory    = errors.New("run history store not configured")

	errInvalidLimit       = errors.New("limit must be between 1 and 100")
	errHistoryUnavailable = errors.New("run history unavailable")
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes a JSON error body carrying the request's correlation
// ID so operators can grep the log for the failing request.
func RespondError(w http.ResponseWriter, r *http.Request, code int, err error) {
	writeJSON(w, code, errorResponse{
		Error:     err.Error(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
