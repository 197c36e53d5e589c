package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"envwatch/internal/alerting"
	"envwatch/internal/anomaly"
)

// SendTestAlert pushes a synthetic notification through every configured
// alert channel.
func (a *App) SendTestAlert(ctx context.Context) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC().Truncate(time.Minute)
	note := alerting.Notification{
		AnalysisID: "test-alert",
		StationID:  "Station-Test",
		Pollutant:  "PM2.5",
		P95:        38.4,
		Params: anomaly.Config{
			WindowSize:          a.Config.Analysis.WindowSize,
			ThresholdMultiplier: a.Config.Analysis.ThresholdMultiplier,
			MinEventDuration:    a.Config.Analysis.MinEventDuration,
		},
		Events: []anomaly.Event{{
			StartTime: now.Add(-3 * time.Hour),
			EndTime:   now.Add(-time.Hour),
			Duration:  a.Config.Analysis.MinEventDuration,
			MaxValue:  152.7,
			AvgValue:  97.35,
		}},
		DetectedAt: now,
	}

	if err := notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("send test alert: %w", err)
	}
	a.Logger.Info().Msg("test alert delivered")
	return nil
}
