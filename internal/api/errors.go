package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fjsoftlab/cvextract/internal/extraction"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// extractionError writes a pipeline failure with the status of its kind.
func extractionError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *extraction.Error
	if !errors.As(err, &e) {
		logger.Error("extraction failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
		return
	}
	if e.Kind == extraction.KindPersistence || e.Kind == extraction.KindUpstream {
		logger.Error("extraction failed", "kind", e.Kind.String(), "error", err, "cause", e.Err)
	}
	httpError(w, e.Kind.HTTPStatus(), e.Kind.String(), "%s", e.Message)
}
