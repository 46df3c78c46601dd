package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"contracthub/apperr"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// respondError maps an apperr Kind to its HTTP status. Anything outside
// the taxonomy is an internal error: logged with the cause, reported
// without it.
func respondError(w http.ResponseWriter, log *zap.Logger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		respondJSON(w, appErr.Kind.HTTPStatus(), map[string]string{
			"message": appErr.Message,
			"code":    appErr.Kind.String(),
		})
		return
	}
	log.Error("internal error", zap.Error(err))
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"message": "Internal server error",
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.ValidationFailed("invalid request body")
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperr.ValidationFailed("invalid %s", name)
	}
	return uint(id), nil
}

func uintQuery(r *http.Request, name string) (uint, error) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperr.ValidationFailed("invalid %s", name)
	}
	return uint(id), nil
}

// parseDate parses an optional YYYY-MM-DD value; empty means absent.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.ValidationFailed("invalid date %q, want YYYY-MM-DD", raw)
	}
	return &t, nil
}
