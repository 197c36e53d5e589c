package storage

import (
	"time"

	"envwatch/internal/anomaly"
)

// MaxListLimit caps the number of analyses returned by a listing.
const MaxListLimit = 50

// AnalysisRecord is a persisted anomaly detection run.
type AnalysisRecord struct {
	ID                string                   `json:"id"`
	StationID         string                   `json:"stationId"`
	Pollutant         string                   `json:"pollutant"`
	Params            anomaly.Config           `json:"analysisParams"`
	ProcessedSeries   []anomaly.ProcessedPoint `json:"timeSeries,omitempty"`
	DetectedAnomalies []anomaly.Event          `json:"detectedAnomalies"`
	P95               float64                  `json:"p95"`
	CreatedAt         time.Time                `json:"createdAt"`
}

// ListFilter narrows a listing. Empty fields match everything.
type ListFilter struct {
	Pollutant string
	StationID string
	Limit     int
}

// EffectiveLimit clamps Limit to (0, MaxListLimit].
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}
