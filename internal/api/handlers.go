package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"envwatch/internal/anomaly"
	"envwatch/internal/service"
	"envwatch/internal/storage"
)

// AnalysisService is the behaviour the HTTP layer needs from the service.
type AnalysisService interface {
	Detect(ctx context.Context, payload service.Payload) (service.Detection, error)
	Get(ctx context.Context, id string) (storage.AnalysisRecord, error)
	List(ctx context.Context, filter storage.ListFilter) ([]storage.AnalysisRecord, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the anomaly detection endpoints.
type Handler struct {
	svc          AnalysisService
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc AnalysisService, maxBodyBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

type detectResponse struct {
	ID                string                   `json:"id"`
	Summary           anomaly.Summary          `json:"summary"`
	DetectedAnomalies []anomaly.Event          `json:"detectedAnomalies"`
	P95               float64                  `json:"p95"`
	ProcessedSeries   []anomaly.ProcessedPoint `json:"processedSeries"`
	CreatedAt         time.Time                `json:"createdAt"`
}

type timeSeriesResponse struct {
	Pollutant      string                   `json:"pollutant"`
	StationID      string                   `json:"stationId"`
	AnalysisParams anomaly.Config           `json:"analysisParams"`
	TimeSeries     []anomaly.ProcessedPoint `json:"timeSeries"`
}

// Detect handles POST /api/anomalies/detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var payload service.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, err, h.logger)
			return
		}
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Errors: []string{"request body must be a JSON object"}})
		return
	}

	det, err := h.svc.Detect(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeData(w, http.StatusCreated, detectResponse{
		ID:                det.ID,
		Summary:           det.Result.Summary,
		DetectedAnomalies: det.Result.DetectedAnomalies,
		P95:               det.Result.P95,
		ProcessedSeries:   det.Result.ProcessedSeries,
		CreatedAt:         det.CreatedAt,
	})
}

// List handles GET /api/anomalies.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ListFilter{
		Pollutant: q.Get("pollutant"),
		StationID: q.Get("stationId"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Errors: []string{"limit must be a positive integer"}})
			return
		}
		filter.Limit = limit
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, records)
}

// Get handles GET /api/anomalies/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeData(w, http.StatusOK, rec)
}

// TimeSeries handles GET /api/anomalies/{id}/timeseries.
func (h *Handler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	series := rec.ProcessedSeries
	if series == nil {
		series = []anomaly.ProcessedPoint{}
	}
	writeData(w, http.StatusOK, timeSeriesResponse{
		Pollutant:      rec.Pollutant,
		StationID:      rec.StationID,
		AnalysisParams: rec.Params,
		TimeSeries:     series,
	})
}

// Delete handles DELETE /api/anomalies/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Anomaly record deleted successfully"})
}
