package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps analyses in process memory. It backs the service when no
// database is configured and is used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]AnalysisRecord
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]AnalysisRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InsertAnalysis stores a copy of rec.
func (m *MemoryStore) InsertAnalysis(ctx context.Context, rec AnalysisRecord) (AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec = cloneRecord(rec)
	m.records[rec.ID] = rec
	return cloneRecord(rec), nil
}

// GetAnalysis returns the stored analysis for id.
func (m *MemoryStore) GetAnalysis(ctx context.Context, id string) (AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return AnalysisRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// ListAnalyses returns matching analyses newest first, without their series.
func (m *MemoryStore) ListAnalyses(ctx context.Context, filter ListFilter) ([]AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AnalysisRecord, 0, len(m.records))
	for _, rec := range m.records {
		if filter.Pollutant != "" && rec.Pollutant != filter.Pollutant {
			continue
		}
		if filter.StationID != "" && rec.StationID != filter.StationID {
			continue
		}
		rec = cloneRecord(rec)
		rec.ProcessedSeries = nil
		out = append(out, rec)
	}

	slices.SortFunc(out, func(a, b AnalysisRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteAnalysis removes the analysis for id.
func (m *MemoryStore) DeleteAnalysis(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// DeleteAnalysesBefore prunes analyses created before olderThan.
func (m *MemoryStore) DeleteAnalysesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, rec := range m.records {
		if rec.CreatedAt.Before(olderThan) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

func cloneRecord(rec AnalysisRecord) AnalysisRecord {
	rec.ProcessedSeries = slices.Clone(rec.ProcessedSeries)
	rec.DetectedAnomalies = slices.Clone(rec.DetectedAnomalies)
	return rec
}

var _ AnalysisStore = (*MemoryStore)(nil)
