package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// writeJSON renders a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy to status codes. Responses
// carry only generic messages; detail goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrInvalidPath):
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, models.ErrQuotaExceeded):
		status, msg = http.StatusRequestEntityTooLarge, "storage quota exceeded"
	case errors.Is(err, models.ErrTooManyDuplicates), errors.Is(err, models.ErrConflict):
		status, msg = http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrIntegrity):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrUnavailable):
		status, msg = http.StatusInternalServerError, "temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, logger.KeyError, err)
	} else {
		logger.DebugCtx(r.Context(), "request rejected",
			"method", r.Method, "path", r.URL.Path, "status", status, logger.KeyError, err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
