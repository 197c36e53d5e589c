package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"envwatch/internal/alerting"
	"envwatch/internal/anomaly"
	"envwatch/internal/config"
	"envwatch/internal/storage"
)

// Detection is the outcome of a successful Detect call.
type Detection struct {
	ID        string
	StationID string
	Pollutant Pollutant
	Config    anomaly.Config
	Result    anomaly.Result
	CreatedAt time.Time
}

// Service orchestrates validation, detection, persistence, and alerting.
type Service struct {
	store     storage.AnalysisStore
	notifier  alerting.Notifier
	logger    zerolog.Logger
	defaults  config.AnalysisConfig
	alertsOn  bool
	minEvents int
	maxAge    time.Duration
	newID     func() string
	now       func() time.Time
}

// New constructs the detection service. notifier may be nil.
func New(cfg *config.Config, store storage.AnalysisStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		defaults:  cfg.Analysis,
		alertsOn:  cfg.Alerting.Enabled,
		minEvents: cfg.Alerting.MinEvents,
		maxAge:    cfg.Retention.MaxAge,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Detect validates payload, runs the detector and stores the analysis.
func (s *Service) Detect(ctx context.Context, payload Payload) (Detection, error) {
	req, err := payload.Request(s.defaults)
	if err != nil {
		return Detection{}, err
	}
	return s.Run(ctx, req)
}

// Run executes an already validated request.
func (s *Service) Run(ctx context.Context, req DetectRequest) (Detection, error) {
	started := time.Now()
	result, err := anomaly.Compute(req.Series, req.Config)
	if err != nil {
		return Detection{}, err
	}

	rec := storage.AnalysisRecord{
		ID:                s.newID(),
		StationID:         req.StationID,
		Pollutant:         string(req.Pollutant),
		Params:            req.Config,
		ProcessedSeries:   result.ProcessedSeries,
		DetectedAnomalies: result.DetectedAnomalies,
		P95:               result.P95,
		CreatedAt:         s.now(),
	}
	saved, err := s.store.InsertAnalysis(ctx, rec)
	if err != nil {
		return Detection{}, fmt.Errorf("store analysis: %w", err)
	}

	s.logger.Info().Str("analysis_id", saved.ID).
		Str("station_id", req.StationID).
		Str("pollutant", string(req.Pollutant)).
		Int("points", result.Summary.TotalPoints).
		Int("anomaly_points", result.Summary.AnomalyPoints).
		Int("events", result.Summary.AnomalyEvents).
		Dur("elapsed", time.Since(started)).
		Msg("analysis recorded")

	s.notify(ctx, saved)

	return Detection{
		ID:        saved.ID,
		StationID: saved.StationID,
		Pollutant: req.Pollutant,
		Config:    req.Config,
		Result:    result,
		CreatedAt: saved.CreatedAt,
	}, nil
}

func (s *Service) notify(ctx context.Context, rec storage.AnalysisRecord) {
	if !s.alertsOn || s.notifier == nil || len(rec.DetectedAnomalies) < s.minEvents {
		return
	}
	note := alerting.Notification{
		AnalysisID: rec.ID,
		StationID:  rec.StationID,
		Pollutant:  rec.Pollutant,
		P95:        rec.P95,
		Params:     rec.Params,
		Events:     rec.DetectedAnomalies,
		DetectedAt: rec.CreatedAt,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("analysis_id", rec.ID).Msg("failed to dispatch alert")
	}
}

// Get returns a stored analysis.
func (s *Service) Get(ctx context.Context, id string) (storage.AnalysisRecord, error) {
	return s.store.GetAnalysis(ctx, id)
}

// List returns recent analyses, newest first, without their series.
func (s *Service) List(ctx context.Context, filter storage.ListFilter) ([]storage.AnalysisRecord, error) {
	if filter.Limit <= 0 || filter.Limit > s.defaults.ListLimit {
		filter.Limit = s.defaults.ListLimit
	}
	return s.store.ListAnalyses(ctx, filter)
}

// Delete removes a stored analysis.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAnalysis(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("analysis_id", id).Msg("analysis deleted")
	return nil
}

// PurgeExpired deletes analyses older than the retention window relative to at.
// It matches scheduler.Job.
func (s *Service) PurgeExpired(ctx context.Context, at time.Time) error {
	if s.maxAge <= 0 {
		return errors.New("retention max age not configured")
	}
	cutoff := at.Add(-s.maxAge)
	removed, err := s.store.DeleteAnalysesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge analyses: %w", err)
	}
	s.logger.Info().Time("cutoff", cutoff).Int64("removed", removed).Msg("retention sweep complete")
	return nil
}
