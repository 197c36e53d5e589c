package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"envwatch/internal/storage"
)

// Show prints recent analyses, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions, out io.Writer) error {
	store, closeStore, err := a.requireStore(ctx, "show analyses")
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListAnalyses(ctx, storage.ListFilter{
		Pollutant: opts.Pollutant,
		StationID: opts.StationID,
		Limit:     opts.Limit,
	})
	if err != nil {
		return err
	}
	return writeAnalyses(out, records)
}

func writeAnalyses(out io.Writer, records []storage.AnalysisRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no analyses found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tID\tStation\tPollutant\tWindow\tK\tEvents\tP95")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.ID,
			sanitizeInline(rec.StationID),
			rec.Pollutant,
			rec.Params.WindowSize,
			formatFloat(rec.Params.ThresholdMultiplier, 2),
			len(rec.DetectedAnomalies),
			formatFloat(rec.P95, 2),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
