package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"envwatch/internal/anomaly"
	"envwatch/internal/service"
	"envwatch/internal/storage"
)

// Analyze runs a detection over a JSON payload and prints the outcome to out.
// The analysis is persisted only when opts.Save is set.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions, out io.Writer) error {
	payload, err := readPayload(opts.Path)
	if err != nil {
		return err
	}
	if opts.WindowSize > 0 {
		payload.WindowSize = float64(opts.WindowSize)
	}
	if opts.ThresholdMultiplier > 0 {
		payload.ThresholdMultiplier = opts.ThresholdMultiplier
	}
	if opts.MinEventDuration > 0 {
		payload.MinEventDuration = float64(opts.MinEventDuration)
	}

	var store storage.AnalysisStore = storage.NewMemoryStore()
	if opts.Save {
		persistent, closeStore, err := a.requireStore(ctx, "save analysis")
		if err != nil {
			return err
		}
		defer closeStore()
		store = persistent
	}

	svc := service.New(a.Config, store, nil, a.Logger)
	det, err := svc.Detect(ctx, payload)
	if err != nil {
		return err
	}

	return printDetection(out, det, opts.Save)
}

func readPayload(path string) (service.Payload, error) {
	var payload service.Payload

	var r io.Reader
	switch path {
	case "":
		return payload, fmt.Errorf("--file is required")
	case "-":
		r = os.Stdin
	default:
		file, err := os.Open(path)
		if err != nil {
			return payload, fmt.Errorf("open payload: %w", err)
		}
		defer file.Close()
		r = file
	}

	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func printDetection(out io.Writer, det service.Detection, saved bool) error {
	sum := det.Result.Summary
	cfg := det.Config

	fmt.Fprintf(out, "Station:    %s\n", det.StationID)
	fmt.Fprintf(out, "Pollutant:  %s\n", det.Pollutant)
	fmt.Fprintf(out, "Parameters: window=%d threshold=%s min-duration=%d\n",
		cfg.WindowSize, formatFloat(cfg.ThresholdMultiplier, 2), cfg.MinEventDuration)
	fmt.Fprintf(out, "Points:     %d total, %d anomalous\n", sum.TotalPoints, sum.AnomalyPoints)
	fmt.Fprintf(out, "P95:        %s\n", formatFloat(sum.P95Value, 2))
	if saved {
		fmt.Fprintf(out, "Saved as:   %s\n", det.ID)
	}

	fmt.Fprintln(out)
	if len(det.Result.DetectedAnomalies) == 0 {
		fmt.Fprintln(out, "no anomaly events detected")
		return nil
	}
	return writeEvents(out, det.Result.DetectedAnomalies)
}

func writeEvents(out io.Writer, events []anomaly.Event) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Start (UTC)\tEnd (UTC)\tPoints\tMax\tAvg")
	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\n",
			ev.StartTime.UTC().Format(time.RFC3339),
			ev.EndTime.UTC().Format(time.RFC3339),
			ev.Duration,
			formatFloat(ev.MaxValue, 2),
			formatFloat(ev.AvgValue, 2),
		)
	}
	return writer.Flush()
}
