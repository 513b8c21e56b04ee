// Package flow derives flow rate from timestamped weight samples.
package flow

import "github.com/tomnis/coldbrewer/internal/domain/model"

// Estimate computes the flow rate in g/s as the finite difference between
// the first and last sample of an ascending-time window. It reports false
// when fewer than two samples exist or the time delta is not positive;
// both mean "no rate available", which strategies treat as a NOOP tick.
func Estimate(samples []model.WeightSample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}

	first := samples[0]
	last := samples[len(samples)-1]

	dt := last.Timestamp.Sub(first.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}

	return (last.Grams - first.Grams) / dt, true
}
