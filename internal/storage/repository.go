package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"envwatch/internal/anomaly"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no analysis exists for the requested id.
	ErrNotFound = errors.New("storage: analysis not found")
)

const (
	insertAnalysisSQL = `INSERT INTO anomaly_analyses (
        id,
        station_id,
        pollutant,
        window_size,
        threshold_multiplier,
        min_event_duration,
        processed_series,
        detected_anomalies,
        p95
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING created_at;`

	getAnalysisSQL = `SELECT
        id,
        station_id,
        pollutant,
        window_size,
        threshold_multiplier::TEXT,
        min_event_duration,
        processed_series,
        detected_anomalies,
        p95::TEXT,
        created_at
    FROM anomaly_analyses
    WHERE id = $1;`

	listAnalysesSQL = `SELECT
        id,
        station_id,
        pollutant,
        window_size,
        threshold_multiplier::TEXT,
        min_event_duration,
        NULL::JSONB,
        detected_anomalies,
        p95::TEXT,
        created_at
    FROM anomaly_analyses
    WHERE ($1::TEXT = '' OR pollutant = $1)
      AND ($2::TEXT = '' OR station_id = $2)
    ORDER BY created_at DESC
    LIMIT $3;`

	deleteAnalysisSQL = `DELETE FROM anomaly_analyses WHERE id = $1;`

	deleteAnalysesBeforeSQL = `DELETE FROM anomaly_analyses WHERE created_at < $1;`
)

// AnalysisStore defines persistence of anomaly analyses.
type AnalysisStore interface {
	InsertAnalysis(ctx context.Context, rec AnalysisRecord) (AnalysisRecord, error)
	GetAnalysis(ctx context.Context, id string) (AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error)
	DeleteAnalysis(ctx context.Context, id string) error
	DeleteAnalysesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store persists analyses in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAnalysis persists a new analysis and returns it with CreatedAt set.
func (s *Store) InsertAnalysis(ctx context.Context, rec AnalysisRecord) (AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AnalysisRecord{}, err
	}

	series, err := json.Marshal(nonNilSeries(rec.ProcessedSeries))
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("encode processed series: %w", err)
	}
	events, err := json.Marshal(nonNilEvents(rec.DetectedAnomalies))
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("encode detected anomalies: %w", err)
	}

	row := pool.QueryRow(ctx, insertAnalysisSQL,
		rec.ID,
		rec.StationID,
		rec.Pollutant,
		rec.Params.WindowSize,
		decimal.NewFromFloat(rec.Params.ThresholdMultiplier).String(),
		rec.Params.MinEventDuration,
		series,
		events,
		decimal.NewFromFloat(rec.P95).String(),
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return AnalysisRecord{}, fmt.Errorf("insert analysis: %w", err)
	}
	return rec, nil
}

// GetAnalysis loads a full analysis including its processed series.
func (s *Store) GetAnalysis(ctx context.Context, id string) (AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AnalysisRecord{}, err
	}

	rows, err := pool.Query(ctx, getAnalysisSQL, id)
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("get analysis: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return AnalysisRecord{}, fmt.Errorf("get analysis: %w", rows.Err())
		}
		return AnalysisRecord{}, ErrNotFound
	}
	return scanAnalysis(rows)
}

// ListAnalyses lists the newest analyses without their processed series.
func (s *Store) ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit := filter.EffectiveLimit()
	rows, queryErr := pool.Query(ctx, listAnalysesSQL, filter.Pollutant, filter.StationID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list analyses: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAnalysis(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteAnalysis removes one analysis.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAnalysisSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete analysis: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAnalysesBefore prunes analyses created before olderThan.
func (s *Store) DeleteAnalysesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAnalysesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete analyses before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

func scanAnalysis(rows pgx.Rows) (AnalysisRecord, error) {
	var (
		rec          AnalysisRecord
		thresholdStr string
		p95Str       string
		series       []byte
		events       []byte
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.StationID,
		&rec.Pollutant,
		&rec.Params.WindowSize,
		&thresholdStr,
		&rec.Params.MinEventDuration,
		&series,
		&events,
		&p95Str,
		&rec.CreatedAt,
	); err != nil {
		return AnalysisRecord{}, err
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("parse threshold multiplier: %w", err)
	}
	rec.Params.ThresholdMultiplier = threshold.InexactFloat64()

	p95, err := decimal.NewFromString(p95Str)
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("parse p95: %w", err)
	}
	rec.P95 = p95.InexactFloat64()

	if len(series) > 0 {
		if err := json.Unmarshal(series, &rec.ProcessedSeries); err != nil {
			return AnalysisRecord{}, fmt.Errorf("decode processed series: %w", err)
		}
	}
	rec.DetectedAnomalies = make([]anomaly.Event, 0)
	if len(events) > 0 {
		if err := json.Unmarshal(events, &rec.DetectedAnomalies); err != nil {
			return AnalysisRecord{}, fmt.Errorf("decode detected anomalies: %w", err)
		}
	}

	return rec, nil
}

func nonNilSeries(series []anomaly.ProcessedPoint) []anomaly.ProcessedPoint {
	if series == nil {
		return []anomaly.ProcessedPoint{}
	}
	return series
}

func nonNilEvents(events []anomaly.Event) []anomaly.Event {
	if events == nil {
		return []anomaly.Event{}
	}
	return events
}

var _ AnalysisStore = (*Store)(nil)
