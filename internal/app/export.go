package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"envwatch/internal/anomaly"
)

// Export renders a stored analysis as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.ID == "" {
		return errors.New("--id is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := store.GetAnalysis(ctx, opts.ID)
	if err != nil {
		return err
	}
	if len(rec.ProcessedSeries) == 0 {
		a.Logger.Info().Str("analysis_id", rec.ID).Msg("analysis has no processed series to export")
		return nil
	}

	downsampled := downsamplePoints(rec.ProcessedSeries, opts.MaxPoints)
	a.Logger.Info().Str("analysis_id", rec.ID).Int("total", len(rec.ProcessedSeries)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := rec.Pollutant + " at " + rec.StationID
		if err := writeSeriesPNG(opts.PNGPath, title, downsampled, rec.ProcessedSeries); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []anomaly.ProcessedPoint, max int) []anomaly.ProcessedPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[:1]
	}

	result := make([]anomaly.ProcessedPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path string, points []anomaly.ProcessedPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"timestamp", "value", "moving_avg", "std_dev", "threshold", "is_anomaly"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(p.Value, 2),
			formatFloat(p.MovingAvg, 2),
			formatFloat(p.StdDev, 2),
			formatFloat(p.Threshold, 2),
			strconv.FormatBool(p.IsAnomaly),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeSeriesPNG charts the (downsampled) series and overlays every anomalous
// point from the full series.
func writeSeriesPNG(path, title string, points, full []anomaly.ProcessedPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	values := make([]float64, len(points))
	avg := make([]float64, len(points))
	threshold := make([]float64, len(points))

	for i, p := range points {
		x[i] = p.Timestamp
		values[i] = p.Value
		avg[i] = p.MovingAvg
		threshold[i] = p.Threshold
	}

	var anomalyX []time.Time
	var anomalyY []float64
	for _, p := range full {
		if p.IsAnomaly {
			anomalyX = append(anomalyX, p.Timestamp)
			anomalyY = append(anomalyY, p.Value)
		}
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Value",
			XValues: x,
			YValues: values,
		},
		chart.TimeSeries{
			Name:    "Moving avg",
			XValues: x,
			YValues: avg,
		},
		chart.TimeSeries{
			Name:    "Threshold",
			XValues: x,
			YValues: threshold,
			Style: chart.Style{
				StrokeDashArray: []float64{5, 5},
			},
		},
	}
	if len(anomalyX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Anomalies",
			XValues: anomalyX,
			YValues: anomalyY,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
				DotColor:    chart.ColorRed,
			},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Concentration",
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// formatFloat prints v with a fixed number of decimal places.
func formatFloat(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
