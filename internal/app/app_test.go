package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"envwatch/internal/anomaly"
	"envwatch/internal/config"
	"envwatch/internal/storage"
)

func testApp() *App {
	return NewApp(&config.Config{
		Analysis: config.AnalysisConfig{WindowSize: 120, ThresholdMultiplier: 3, MinEventDuration: 10, ListLimit: 50},
		Alerting: config.AlertingConfig{Channels: []string{"telegram"}},
		Export:   config.ExportConfig{MaxDataPoints: 100},
	}, zerolog.Nop())
}

func samplePoints(n int) []anomaly.ProcessedPoint {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]anomaly.ProcessedPoint, n)
	for i := range points {
		v := float64(10 + i%7)
		points[i] = anomaly.ProcessedPoint{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Value:     v,
			MovingAvg: 12.5,
			StdDev:    1.25,
			Threshold: 16.25,
			IsAnomaly: v > 16.25,
		}
	}
	points[n/2].Value = 90
	points[n/2].IsAnomaly = true
	return points
}

func TestDownsamplePointsKeepsEnds(t *testing.T) {
	points := samplePoints(101)
	got := downsamplePoints(points, 11)
	if len(got) != 11 {
		t.Fatalf("expected 11 points, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(points[0].Timestamp) || !got[10].Timestamp.Equal(points[100].Timestamp) {
		t.Fatal("downsampling must keep the first and last points")
	}
	if same := downsamplePoints(points, 500); len(same) != len(points) {
		t.Fatalf("series shorter than the limit must be returned as is")
	}
	if one := downsamplePoints(points, 1); len(one) != 1 {
		t.Fatalf("expected one point, got %d", len(one))
	}
}

func TestWriteSeriesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "series.csv")
	points := samplePoints(30)
	if err := writeSeriesCSV(path, points); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 31 {
		t.Fatalf("expected header plus 30 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][5] != "is_anomaly" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	spike := rows[16]
	if spike[1] != "90.00" || spike[4] != "16.25" || spike[5] != "true" {
		t.Fatalf("unexpected spike row %v", spike)
	}
}

func TestWriteSeriesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.png")
	points := samplePoints(48)
	if err := writeSeriesPNG(path, "NO2 at Station-1", points, points); err != nil {
		t.Fatalf("render png: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty png, err=%v", err)
	}
}

func TestWriteAnalyses(t *testing.T) {
	var buf bytes.Buffer
	if err := writeAnalyses(&buf, nil); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if !strings.Contains(buf.String(), "no analyses found") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	records := []storage.AnalysisRecord{{
		ID:                "a-1",
		StationID:         "Station\tKyiv",
		Pollutant:         "PM2.5",
		Params:            anomaly.Config{WindowSize: 120, ThresholdMultiplier: 2.5, MinEventDuration: 3},
		DetectedAnomalies: []anomaly.Event{{Duration: 3}},
		P95:               41.456,
		CreatedAt:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	if err := writeAnalyses(&buf, records); err != nil {
		t.Fatalf("write analyses: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"a-1", "Station Kyiv", "PM2.5", "2.50", "41.46", "2025-01-02T03:04:05Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestAnalyzeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	var sb strings.Builder
	sb.WriteString(`{"stationId":"Station-Dnipro","pollutant":"PM2.5","timeSeries":[`)
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		v := "20"
		if i >= 30 && i < 33 {
			v = "400"
		}
		sb.WriteString(`{"timestamp":"` + start.Add(time.Duration(i)*time.Hour).Format(time.RFC3339) + `","value":` + v + `}`)
	}
	sb.WriteString(`]}`)
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	var buf bytes.Buffer
	err := testApp().Analyze(context.Background(), AnalyzeOptions{
		Path:                path,
		ThresholdMultiplier: 1,
		MinEventDuration:    2,
	}, &buf)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Station-Dnipro", "48 total, 3 anomalous", "min-duration=2", "400.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "Saved as") {
		t.Fatal("analysis should not be reported as saved without --save")
	}
}

func TestAnalyzeRequiresFile(t *testing.T) {
	if err := testApp().Analyze(context.Background(), AnalyzeOptions{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error without a payload path")
	}
}

func TestNewNotifierDisabled(t *testing.T) {
	a := testApp()
	notifier, closer, err := a.newNotifier()
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer closer()
	if notifier != nil {
		t.Fatal("alerting disabled should yield no notifier")
	}

	a.Config.Alerting.Enabled = true
	a.Config.Alerting.Channels = []string{"telegram", "pager"}
	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1", APIBase: "http://127.0.0.1:0", Timeout: time.Second}
	notifier, closer, err = a.newNotifier()
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer closer()
	if notifier == nil {
		t.Fatal("expected the telegram channel to be configured")
	}
}
