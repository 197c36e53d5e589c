package anomaly

import "time"

// MinSeriesLength is the smallest series the engine accepts.
const MinSeriesLength = 24

// RawPoint is a single pollutant concentration sample.
type RawPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ProcessedPoint is a RawPoint enriched with its trailing-window statistics.
// MovingAvg, StdDev and Threshold are rounded to two decimals; IsAnomaly is
// decided on the unrounded values.
type ProcessedPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	MovingAvg float64   `json:"movingAvg"`
	StdDev    float64   `json:"stdDev"`
	Threshold float64   `json:"threshold"`
	IsAnomaly bool      `json:"isAnomaly"`
}

// Event is a run of contiguous anomalous points.
//
// Duration counts points, not elapsed time. It only reads as minutes when the
// series is sampled once per minute.
type Event struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int       `json:"duration"`
	MaxValue  float64   `json:"maxValue"`
	AvgValue  float64   `json:"avgValue"`
}

// Config holds the detector parameters for one invocation.
type Config struct {
	WindowSize          int     `json:"windowSize"`
	ThresholdMultiplier float64 `json:"thresholdMultiplier"`
	MinEventDuration    int     `json:"minEventDuration"`
}

// Summary condenses a Result.
type Summary struct {
	TotalPoints   int     `json:"totalPoints"`
	AnomalyPoints int     `json:"anomalyPoints"`
	AnomalyEvents int     `json:"anomalyEvents"`
	P95Value      float64 `json:"p95Value"`
}

// Result is the output of Compute.
type Result struct {
	ProcessedSeries   []ProcessedPoint `json:"processedSeries"`
	DetectedAnomalies []Event          `json:"detectedAnomalies"`
	P95               float64          `json:"p95"`
	Summary           Summary          `json:"summary"`
}
