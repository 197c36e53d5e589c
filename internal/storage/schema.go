package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS anomaly_analyses (
        id                   TEXT PRIMARY KEY,
        station_id           TEXT NOT NULL,
        pollutant            TEXT NOT NULL,
        window_size          INTEGER NOT NULL,
        threshold_multiplier NUMERIC NOT NULL,
        min_event_duration   INTEGER NOT NULL,
        processed_series     JSONB NOT NULL,
        detected_anomalies   JSONB NOT NULL,
        p95                  NUMERIC NOT NULL,
        created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS anomaly_analyses_created_idx ON anomaly_analyses (created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS anomaly_analyses_station_idx ON anomaly_analyses (station_id, pollutant);`,
}

// Migrate creates the tables used by Store when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
