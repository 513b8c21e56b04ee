package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKalman_AdoptsFirstMeasurement(t *testing.T) {
	k := NewKalman(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise)

	got := k.Update(fptr(0.042))
	assert.InDelta(t, 0.042, got, 1e-12, "first measurement adopted directly")
}

func TestKalman_NilMeasurementKeepsState(t *testing.T) {
	k := NewKalmanAt(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise, 0.05)

	before := k.Estimate()
	got := k.Update(nil)
	assert.Equal(t, before, got)
	assert.Equal(t, before, k.Estimate())
}

func TestKalman_SeededBlendsTowardMeasurement(t *testing.T) {
	k := NewKalmanAt(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise, 0.05)

	got := k.Update(fptr(0.1))
	assert.Greater(t, got, 0.05, "estimate moves toward measurement")
	assert.Less(t, got, 0.1, "but does not jump all the way")
}

func TestKalman_ConvergesOnConstantSignal(t *testing.T) {
	k := NewKalmanAt(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise, 0.0)

	var got float64
	for i := 0; i < 200; i++ {
		got = k.Update(fptr(0.05))
	}
	assert.InDelta(t, 0.05, got, 1e-3)
}

func TestKalman_SmoothsNoise(t *testing.T) {
	// Alternating +/- noise around the target should mostly cancel.
	k := NewKalmanAt(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise, 0.05)

	noise := []float64{0.02, -0.02, 0.03, -0.03, 0.01, -0.01}
	var got float64
	for i := 0; i < 60; i++ {
		got = k.Update(fptr(0.05 + noise[i%len(noise)]))
	}
	assert.InDelta(t, 0.05, got, 0.015)
}

func TestKalman_Reset(t *testing.T) {
	k := NewKalmanAt(DefaultKalmanProcessNoise, DefaultKalmanMeasurementNoise, 0.05)
	k.Update(fptr(0.1))

	k.Reset()
	require.InDelta(t, 0.0, k.Estimate(), 1e-12)

	got := k.Update(fptr(0.08))
	assert.InDelta(t, 0.08, got, 1e-12, "post-reset behaves like a fresh filter")
}
