// Package handler contains the HTTP handlers for the venue API. Handlers
// declare the service methods they need locally so the package never depends
// on concrete service implementations.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/predictfi/venue/internal/domain"
)

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP responses. Pre-flight
// rejections carry their structured code; sentinel errors map to stable
// status codes; anything else is a 500 with a generic body.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rej *domain.Rejection
	if errors.As(err, &rej) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": rej.Reason,
			"code":  rej.Code,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "another trade for this user is in flight")
	case errors.Is(err, domain.ErrMarketNotActive):
		writeError(w, http.StatusConflict, "market not open for trading")
	case errors.Is(err, domain.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "market already resolved")
	case errors.Is(err, domain.ErrUnresolvedOutcome),
		errors.Is(err, domain.ErrMissingToken),
		errors.Is(err, domain.ErrBelowMinimumSize),
		errors.Is(err, domain.ErrUnprofitable),
		errors.Is(err, domain.ErrInsufficientLiquidity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrExecutionRejected):
		writeError(w, http.StatusBadGateway, "order rejected by external venue")
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseListOpts extracts pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter (Go 1.22 routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
