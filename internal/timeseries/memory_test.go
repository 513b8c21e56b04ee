package timeseries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

func newTestMemoryStore(now time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.nowFn = func() time.Time { return now }
	return s
}

func write(t *testing.T, s Store, ts time.Time, grams float64) {
	t.Helper()
	require.NoError(t, s.WriteScaleData(context.Background(), model.WeightSample{
		Timestamp: ts,
		Grams:     grams,
	}))
}

func TestMemoryStore_WindowFiltering(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := newTestMemoryStore(now)

	write(t, s, now.Add(-90*time.Second), 100)
	write(t, s, now.Add(-45*time.Second), 105)
	write(t, s, now.Add(-5*time.Second), 110)

	got, err := s.RecentWeightReadings(context.Background(), time.Minute, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 105.0, got[0].Grams, 1e-9)
	assert.InDelta(t, 110.0, got[1].Grams, 1e-9)
}

func TestMemoryStore_StartAfterCutoff(t *testing.T) {
	// A fresh brew must not see samples from before it started, even when
	// they fall inside the trailing window.
	now := time.Unix(1700000000, 0)
	s := newTestMemoryStore(now)

	brewStart := now.Add(-10 * time.Second)
	write(t, s, now.Add(-30*time.Second), 999) // previous brew's tail
	write(t, s, brewStart, 500)                // at the boundary: excluded
	write(t, s, now.Add(-8*time.Second), 501)
	write(t, s, now.Add(-2*time.Second), 502)

	got, err := s.RecentWeightReadings(context.Background(), time.Minute, brewStart)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 501.0, got[0].Grams, 1e-9)
	assert.InDelta(t, 502.0, got[1].Grams, 1e-9)
}

func TestMemoryStore_EmptyWindow(t *testing.T) {
	s := newTestMemoryStore(time.Unix(1700000000, 0))

	got, err := s.RecentWeightReadings(context.Background(), time.Minute, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_CapacityBounded(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := newTestMemoryStore(now)
	s.capacity = 10

	for i := 0; i < 25; i++ {
		write(t, s, now.Add(time.Duration(i-25)*time.Second), float64(i))
	}

	got, err := s.RecentWeightReadings(context.Background(), time.Hour, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.InDelta(t, 15.0, got[0].Grams, 1e-9, "oldest samples evicted first")
	assert.InDelta(t, 24.0, got[9].Grams, 1e-9)
}

func TestMemoryStore_OrderPreserved(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := newTestMemoryStore(now)

	for i := 0; i < 5; i++ {
		write(t, s, now.Add(time.Duration(i-10)*time.Second), float64(i))
	}

	got, err := s.RecentWeightReadings(context.Background(), time.Hour, time.Time{})
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}
