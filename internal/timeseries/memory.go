package timeseries

import (
	"context"
	"sync"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

const defaultMemoryCapacity = 8192

// MemoryStore is a bounded in-memory sample buffer. At the stock 500ms
// sample cadence the default capacity holds over an hour of readings.
type MemoryStore struct {
	mu       sync.Mutex
	samples  []model.WeightSample
	capacity int

	nowFn func() time.Time
}

// NewMemoryStore returns an empty store with the default capacity.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{capacity: defaultMemoryCapacity, nowFn: time.Now}
}

// WriteScaleData implements Store. When full, the oldest sample is dropped.
func (s *MemoryStore) WriteScaleData(_ context.Context, sample model.WeightSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if len(s.samples) > s.capacity {
		s.samples = s.samples[len(s.samples)-s.capacity:]
	}
	return nil
}

// RecentWeightReadings implements Store.
func (s *MemoryStore) RecentWeightReadings(_ context.Context, window time.Duration, startAfter time.Time) ([]model.WeightSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFn().Add(-window)
	if startAfter.After(cutoff) {
		cutoff = startAfter
	}

	out := make([]model.WeightSample, 0, len(s.samples))
	for _, sm := range s.samples {
		if sm.Timestamp.After(cutoff) {
			out = append(out, sm)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
