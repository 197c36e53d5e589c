package anomaly

import (
	"fmt"
	"slices"

	"github.com/montanaflynn/stats"
)

const p95Percent = 95

// Compute runs the rolling-statistics detector over series.
//
// The caller's slice is left untouched. Points are ordered by a stable sort on
// Timestamp, so points sharing a timestamp keep their input order. Per-point
// fields are not re-validated here: values are expected to be finite and
// non-negative and cfg to be within its documented ranges.
func Compute(series []RawPoint, cfg Config) (Result, error) {
	n := len(series)
	if n == 0 {
		return Result{}, ErrEmptyInput
	}
	if n < MinSeriesLength {
		return Result{}, fmt.Errorf("%w: need at least %d, got %d", ErrInsufficientData, MinSeriesLength, n)
	}

	sorted := slices.Clone(series)
	slices.SortStableFunc(sorted, func(a, b RawPoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	values := make([]float64, n)
	for i, p := range sorted {
		values[i] = p.Value
	}

	window := effectiveWindow(cfg.WindowSize, n)
	processed := make([]ProcessedPoint, n)
	anomalous := 0
	for i, p := range sorted {
		start := max(0, i-window+1)
		mean, stdDev, err := windowStats(values[start : i+1])
		if err != nil {
			return Result{}, fmt.Errorf("window at index %d: %w", i, err)
		}

		threshold := mean + cfg.ThresholdMultiplier*stdDev
		isAnomaly := p.Value > threshold
		if isAnomaly {
			anomalous++
		}

		processed[i] = ProcessedPoint{
			Timestamp: p.Timestamp,
			Value:     p.Value,
			MovingAvg: round2(mean),
			StdDev:    round2(stdDev),
			Threshold: round2(threshold),
			IsAnomaly: isAnomaly,
		}
	}

	p95, err := stats.PercentileNearestRank(values, p95Percent)
	if err != nil {
		return Result{}, fmt.Errorf("p95: %w", err)
	}
	p95 = round2(p95)

	events := Segment(processed, cfg.MinEventDuration)

	return Result{
		ProcessedSeries:   processed,
		DetectedAnomalies: events,
		P95:               p95,
		Summary: Summary{
			TotalPoints:   n,
			AnomalyPoints: anomalous,
			AnomalyEvents: len(events),
			P95Value:      p95,
		},
	}, nil
}

// effectiveWindow caps the configured window at half the series length.
func effectiveWindow(configured, n int) int {
	w := min(configured, n/2)
	if w < 1 {
		return 1
	}
	return w
}

// windowStats returns the mean and population standard deviation of window.
func windowStats(window []float64) (float64, float64, error) {
	mean, err := stats.Mean(window)
	if err != nil {
		return 0, 0, err
	}
	stdDev, err := stats.StandardDeviationPopulation(window)
	if err != nil {
		return 0, 0, err
	}
	return mean, stdDev, nil
}
