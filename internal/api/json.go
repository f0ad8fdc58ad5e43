package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/ingest"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNoValidSelection), errors.Is(err, apperr.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrNoCandidates):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrCandidateUnavailable), errors.Is(err, apperr.ErrEnrichmentFailed):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrBatchAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the mapped status.
// Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: apperr.Kind(err)})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: apperr.Kind(err)})
}
