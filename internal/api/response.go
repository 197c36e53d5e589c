package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"envwatch/internal/anomaly"
	"envwatch/internal/service"
	"envwatch/internal/storage"
)

type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeError maps service and storage errors onto HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	var vErr *service.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Errors: vErr.Messages})
	case errors.Is(err, anomaly.ErrEmptyInput), errors.Is(err, anomaly.ErrInsufficientData):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Errors: []string{err.Error()}})
	case errors.As(err, &maxErr):
		writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, storage.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Anomaly record not found")
	default:
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeFailure(w, http.StatusInternalServerError, err.Error())
	}
}
