package anomaly

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func seriesOf(values ...float64) []RawPoint {
	points := make([]RawPoint, len(values))
	for i, v := range values {
		points[i] = RawPoint{Timestamp: baseTime.Add(time.Duration(i) * 15 * time.Minute), Value: v}
	}
	return points
}

func constant(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func defaultConfig() Config {
	return Config{WindowSize: 120, ThresholdMultiplier: 3, MinEventDuration: 10}
}

func TestComputeEmptySeries(t *testing.T) {
	for _, cfg := range []Config{{}, defaultConfig(), {WindowSize: 500, ThresholdMultiplier: 10, MinEventDuration: 200}} {
		if _, err := Compute(nil, cfg); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("expected ErrEmptyInput for config %+v, got %v", cfg, err)
		}
	}
}

func TestComputeMinimumLength(t *testing.T) {
	if _, err := Compute(seriesOf(constant(23, 5)...), defaultConfig()); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("23 points should fail with ErrInsufficientData, got %v", err)
	}

	res, err := Compute(seriesOf(constant(24, 5)...), defaultConfig())
	if err != nil {
		t.Fatalf("24 points should succeed: %v", err)
	}
	if res.Summary.TotalPoints != 24 {
		t.Fatalf("expected 24 total points, got %d", res.Summary.TotalPoints)
	}
}

func TestComputeSortsAndKeepsLength(t *testing.T) {
	points := seriesOf(constant(30, 1)...)
	for i := range points {
		points[i].Value = float64(i)
	}
	shuffled := make([]RawPoint, 0, len(points))
	for i := len(points) - 1; i >= 0; i -= 2 {
		shuffled = append(shuffled, points[i])
	}
	for i := len(points) - 2; i >= 0; i -= 2 {
		shuffled = append(shuffled, points[i])
	}
	original := append([]RawPoint(nil), shuffled...)

	res, err := Compute(shuffled, defaultConfig())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(res.ProcessedSeries) != len(points) {
		t.Fatalf("expected %d processed points, got %d", len(points), len(res.ProcessedSeries))
	}
	for i, p := range res.ProcessedSeries {
		if !p.Timestamp.Equal(points[i].Timestamp) || p.Value != points[i].Value {
			t.Fatalf("point %d out of order: %+v", i, p)
		}
	}
	if !reflect.DeepEqual(shuffled, original) {
		t.Fatal("input slice must not be reordered")
	}
}

func TestComputeEqualTimestampsKeepInputOrder(t *testing.T) {
	points := seriesOf(constant(24, 1)...)
	points[10].Timestamp = points[11].Timestamp
	points[10].Value = 7
	points[11].Value = 3

	res, err := Compute(points, defaultConfig())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.ProcessedSeries[10].Value != 7 || res.ProcessedSeries[11].Value != 3 {
		t.Fatalf("equal timestamps should keep input order, got %v then %v",
			res.ProcessedSeries[10].Value, res.ProcessedSeries[11].Value)
	}
}

func TestComputeStrictThreshold(t *testing.T) {
	res, err := Compute(seriesOf(constant(40, 5)...), defaultConfig())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i, p := range res.ProcessedSeries {
		if p.Threshold != 5 || p.StdDev != 0 {
			t.Fatalf("point %d: expected threshold 5 and stddev 0, got %+v", i, p)
		}
		if p.IsAnomaly {
			t.Fatalf("point %d equals its threshold and must not be anomalous", i)
		}
	}
	if res.Summary.AnomalyPoints != 0 || len(res.DetectedAnomalies) != 0 {
		t.Fatalf("constant series should have no anomalies: %+v", res.Summary)
	}
}

func TestComputeFlagsSpike(t *testing.T) {
	values := constant(40, 10)
	values[30] = 100

	res, err := Compute(seriesOf(values...), Config{WindowSize: 120, ThresholdMultiplier: 3, MinEventDuration: 1})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	for i, p := range res.ProcessedSeries {
		if p.IsAnomaly != (i == 30) {
			t.Fatalf("point %d: unexpected anomaly flag %v", i, p.IsAnomaly)
		}
	}

	spike := res.ProcessedSeries[30]
	if spike.MovingAvg != 14.5 {
		t.Fatalf("expected moving average 14.5 over a 20 point window, got %v", spike.MovingAvg)
	}
	if spike.StdDev != 19.62 {
		t.Fatalf("expected stddev 19.62, got %v", spike.StdDev)
	}
	if spike.Threshold != 73.35 {
		t.Fatalf("expected threshold 73.35, got %v", spike.Threshold)
	}

	if res.Summary.AnomalyPoints != 1 || res.Summary.AnomalyEvents != 1 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
	ev := res.DetectedAnomalies[0]
	if ev.Duration != 1 || ev.MaxValue != 100 || ev.AvgValue != 100 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestComputeClampsWindowToHalfSeries(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = float64(i)
	}

	res, err := Compute(seriesOf(values...), Config{WindowSize: 100, ThresholdMultiplier: 3, MinEventDuration: 10})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// window of 12 ending at index 20 covers 9..20
	p := res.ProcessedSeries[20]
	if p.MovingAvg != 14.5 {
		t.Fatalf("expected moving average 14.5 with a 12 point window, got %v", p.MovingAvg)
	}
	if p.StdDev != 3.45 {
		t.Fatalf("expected stddev 3.45, got %v", p.StdDev)
	}

	// the window grows from a single point
	if first := res.ProcessedSeries[0]; first.MovingAvg != 0 || first.StdDev != 0 {
		t.Fatalf("first point should have a single-value window, got %+v", first)
	}
	if second := res.ProcessedSeries[1]; second.MovingAvg != 0.5 || second.StdDev != 0.5 {
		t.Fatalf("second point should have a two-value window, got %+v", second)
	}
}

func TestComputeP95NearestRank(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(100 - i)
	}

	res, err := Compute(seriesOf(values...), defaultConfig())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.P95 != 95 || res.Summary.P95Value != 95 {
		t.Fatalf("expected p95 of 95, got %v / %v", res.P95, res.Summary.P95Value)
	}
}

func TestComputeIdempotent(t *testing.T) {
	values := make([]float64, 96)
	for i := range values {
		values[i] = float64((i*37)%23) + 0.123
	}
	for i := 60; i < 72; i++ {
		values[i] = 250
	}
	points := seriesOf(values...)
	cfg := Config{WindowSize: 30, ThresholdMultiplier: 2, MinEventDuration: 2}

	first, err := Compute(points, cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := Compute(points, cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated computation should produce identical results")
	}
	if first.Summary.AnomalyEvents == 0 {
		t.Fatal("expected the plateau to produce at least one event")
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		1.234:   1.23,
		1.235:   1.24,
		2.5:     2.5,
		0:       0,
		1.005:   1,
		2.675:   2.67,
		19.615:  19.61,
		19.6151: 19.62,
	}
	for in, want := range cases {
		if got := round2(in); got != want {
			t.Fatalf("round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestComputeFlagsMatchWindowThreshold(t *testing.T) {
	values := make([]float64, 96)
	for i := range values {
		values[i] = float64((i*37)%23) + 0.123
	}
	for i := 60; i < 72; i++ {
		values[i] = 250
	}
	cfg := Config{WindowSize: 30, ThresholdMultiplier: 2, MinEventDuration: 2}

	res, err := Compute(seriesOf(values...), cfg)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	window := min(cfg.WindowSize, len(values)/2)
	flagged := 0
	for i, p := range res.ProcessedSeries {
		win := values[max(0, i-window+1) : i+1]
		var sum float64
		for _, v := range win {
			sum += v
		}
		mean := sum / float64(len(win))
		var sq float64
		for _, v := range win {
			sq += (v - mean) * (v - mean)
		}
		threshold := mean + cfg.ThresholdMultiplier*math.Sqrt(sq/float64(len(win)))

		if p.IsAnomaly != (values[i] > threshold) {
			t.Fatalf("point %d: value %v threshold %v flagged %v", i, values[i], threshold, p.IsAnomaly)
		}
		if p.Threshold != round2(threshold) {
			t.Fatalf("point %d: threshold %v, want %v", i, p.Threshold, round2(threshold))
		}
		if p.IsAnomaly {
			flagged++
		}
	}
	if flagged == 0 || flagged != res.Summary.AnomalyPoints {
		t.Fatalf("expected anomalous points to match the summary, got %d vs %d", flagged, res.Summary.AnomalyPoints)
	}
}
