// Package timeseries persists scale readings and serves the recent-window
// queries the flow estimator runs on. Three backends: an in-memory ring for
// tests and dev, Redis sorted sets for a small standalone deployment, and
// InfluxDB matching the rig's historical setup.
package timeseries

import (
	"context"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Store is the sample sink and window query surface.
type Store interface {
	// WriteScaleData appends one timestamped reading.
	WriteScaleData(ctx context.Context, sample model.WeightSample) error

	// RecentWeightReadings returns samples from the trailing window, oldest
	// first. A non-zero startAfter additionally excludes anything at or
	// before that instant, so a new brew never sees the previous brew's
	// tail.
	RecentWeightReadings(ctx context.Context, window time.Duration, startAfter time.Time) ([]model.WeightSample, error)

	Close() error
}

// DefaultRetention bounds how much history the backends keep. The
// estimator only ever looks seconds back; an hour is generous.
const DefaultRetention = time.Hour
