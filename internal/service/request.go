package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"envwatch/internal/anomaly"
	"envwatch/internal/config"
)

// Pollutant identifies a monitored pollutant.
type Pollutant string

// Supported pollutants.
const (
	PM25 Pollutant = "PM2.5"
	NO2  Pollutant = "NO2"
	SO2  Pollutant = "SO2"
	O3   Pollutant = "O3"
)

// Pollutants lists the accepted pollutant codes.
var Pollutants = []Pollutant{PM25, NO2, SO2, O3}

// Parameter bounds accepted by the detector.
const (
	MinWindowSize          = 10
	MaxWindowSize          = 500
	MinThresholdMultiplier = 1
	MaxThresholdMultiplier = 10
	MinEventDuration       = 1
	MaxEventDuration       = 200
)

// maxEpochMillis is the largest representable date, 275760-09-13.
const maxEpochMillis = 8.64e15

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Payload is a detection request as decoded from JSON. Fields are left
// loosely typed so that every problem can be reported at once.
type Payload struct {
	StationID           any `json:"stationId"`
	Pollutant           any `json:"pollutant"`
	TimeSeries          any `json:"timeSeries"`
	WindowSize          any `json:"windowSize,omitempty"`
	ThresholdMultiplier any `json:"thresholdMultiplier,omitempty"`
	MinEventDuration    any `json:"minEventDuration,omitempty"`
}

// DetectRequest is a validated detection request with defaults applied.
type DetectRequest struct {
	StationID string
	Pollutant Pollutant
	Series    []anomaly.RawPoint
	Config    anomaly.Config
}

// ValidationError lists every problem found in a Payload.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Validate returns one message per problem; an empty result means the payload
// can be converted with Request.
func (p Payload) Validate() []string {
	errs := make([]string, 0)

	if s, ok := p.StationID.(string); !ok || s == "" {
		errs = append(errs, "stationId is required and must be a string")
	}

	if _, ok := parsePollutant(p.Pollutant); !ok {
		errs = append(errs, "pollutant must be one of: PM2.5, NO2, SO2, O3")
	}

	points, isList := p.TimeSeries.([]any)
	if !isList {
		errs = append(errs, "timeSeries is required and must be an array")
	} else if len(points) < anomaly.MinSeriesLength {
		errs = append(errs, fmt.Sprintf("timeSeries must contain at least %d data points", anomaly.MinSeriesLength))
	}
	for idx, raw := range points {
		point, _ := raw.(map[string]any)
		ts, present := point["timestamp"]
		if !present || ts == nil || ts == "" || ts == float64(0) {
			errs = append(errs, fmt.Sprintf("timeSeries[%d]: timestamp is required", idx))
		} else if _, err := parseTimestamp(ts); err != nil {
			errs = append(errs, fmt.Sprintf("timeSeries[%d]: timestamp must be a valid date", idx))
		}
		if v, ok := point["value"].(float64); !ok || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("timeSeries[%d]: value must be a non-negative number", idx))
		}
	}

	if p.WindowSize != nil && !intInRange(p.WindowSize, MinWindowSize, MaxWindowSize) {
		errs = append(errs, fmt.Sprintf("windowSize must be an integer between %d and %d", MinWindowSize, MaxWindowSize))
	}
	if p.ThresholdMultiplier != nil && !numberInRange(p.ThresholdMultiplier, MinThresholdMultiplier, MaxThresholdMultiplier) {
		errs = append(errs, fmt.Sprintf("thresholdMultiplier must be a number between %d and %d", MinThresholdMultiplier, MaxThresholdMultiplier))
	}
	if p.MinEventDuration != nil && !intInRange(p.MinEventDuration, MinEventDuration, MaxEventDuration) {
		errs = append(errs, fmt.Sprintf("minEventDuration must be an integer between %d and %d", MinEventDuration, MaxEventDuration))
	}

	return errs
}

// Request validates p and converts it, filling omitted parameters from defaults.
func (p Payload) Request(defaults config.AnalysisConfig) (DetectRequest, error) {
	if msgs := p.Validate(); len(msgs) > 0 {
		return DetectRequest{}, &ValidationError{Messages: msgs}
	}

	pollutant, _ := parsePollutant(p.Pollutant)
	req := DetectRequest{
		StationID: p.StationID.(string),
		Pollutant: pollutant,
		Config: anomaly.Config{
			WindowSize:          defaults.WindowSize,
			ThresholdMultiplier: defaults.ThresholdMultiplier,
			MinEventDuration:    defaults.MinEventDuration,
		},
	}
	if p.WindowSize != nil {
		req.Config.WindowSize = int(p.WindowSize.(float64))
	}
	if p.ThresholdMultiplier != nil {
		req.Config.ThresholdMultiplier = p.ThresholdMultiplier.(float64)
	}
	if p.MinEventDuration != nil {
		req.Config.MinEventDuration = int(p.MinEventDuration.(float64))
	}

	points := p.TimeSeries.([]any)
	req.Series = make([]anomaly.RawPoint, len(points))
	for i, raw := range points {
		point := raw.(map[string]any)
		ts, _ := parseTimestamp(point["timestamp"])
		req.Series[i] = anomaly.RawPoint{Timestamp: ts, Value: point["value"].(float64)}
	}

	return req, nil
}

func parsePollutant(v any) (Pollutant, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	for _, p := range Pollutants {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// parseTimestamp accepts date strings or epoch milliseconds.
func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", ts)
	case float64:
		if math.IsNaN(ts) || ts <= 0 || ts > maxEpochMillis {
			return time.Time{}, fmt.Errorf("epoch timestamp %v out of range", ts)
		}
		return time.UnixMilli(int64(ts)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func numberInRange(v any, lo, hi float64) bool {
	f, ok := v.(float64)
	return ok && f >= lo && f <= hi
}

func intInRange(v any, lo, hi float64) bool {
	f, ok := v.(float64)
	return ok && f == math.Trunc(f) && f >= lo && f <= hi
}
