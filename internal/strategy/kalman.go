package strategy

// Kalman is a scalar Kalman filter smoothing the raw flow-rate estimate.
// The constant-value process model fits a gravity-fed drip: flow changes
// slowly, so q stays small relative to the scale's measurement noise r.
type Kalman struct {
	q float64 // process variance
	r float64 // measurement variance

	estimate    float64
	variance    float64
	initialized bool
}

// Default noise parameters, tuned against a kitchen scale's jitter.
const (
	DefaultKalmanProcessNoise     = 0.0005
	DefaultKalmanMeasurementNoise = 0.15
)

// NewKalman returns an uninitialized filter. The first measurement is
// adopted directly as the estimate.
func NewKalman(q, r float64) *Kalman {
	return &Kalman{q: q, r: r, variance: 1.0}
}

// NewKalmanAt returns a filter pre-seeded with an estimate, so the first
// measurements are blended instead of adopted wholesale. Strategies seed
// at the target flow rate to avoid a cold-start transient.
func NewKalmanAt(q, r, estimate float64) *Kalman {
	return &Kalman{q: q, r: r, estimate: estimate, variance: 1.0, initialized: true}
}

// Update folds one measurement into the filter and returns the posterior
// estimate. A nil measurement (no flow rate available this tick) leaves the
// state untouched and returns the current estimate.
func (k *Kalman) Update(measurement *float64) float64 {
	if measurement == nil {
		return k.estimate
	}
	if !k.initialized {
		k.estimate = *measurement
		k.variance = k.r
		k.initialized = true
		return k.estimate
	}

	// Predict: constant-value model, variance grows by process noise.
	k.variance += k.q

	// Update.
	gain := k.variance / (k.variance + k.r)
	k.estimate += gain * (*measurement - k.estimate)
	k.variance *= 1 - gain

	return k.estimate
}

// Estimate returns the current posterior without consuming a measurement.
func (k *Kalman) Estimate() float64 { return k.estimate }

// Reset returns the filter to its uninitialized state.
func (k *Kalman) Reset() {
	k.estimate = 0
	k.variance = 1.0
	k.initialized = false
}
