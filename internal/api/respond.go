package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/model"
)

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// respondError logs the technical error with the request ID for correlation
// and writes the JSON error envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	status := http.StatusInternalServerError
	if errors.As(err, &appErr) {
		status = apperr.HTTPStatus(appErr.Type)
	}

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeErrorEnvelope(w, status, err)
}

func writeErrorEnvelope(w http.ResponseWriter, status int, err error) {
	var body apperr.Envelope
	if err == nil {
		body = apperr.Envelope{Success: false, Error: "rate limit exceeded"}
	} else if appErr, ok := apperr.As(err); ok {
		body = appErr.ToEnvelope()
	} else {
		message, action := apperr.FriendlyMessage(err)
		wrapped := apperr.Wrap(model.ErrInternal, message, err)
		if action != "" {
			wrapped = wrapped.WithSuggestions(action)
		}
		body = wrapped.ToEnvelope()
	}
	writeJSON(w, status, body)
}
