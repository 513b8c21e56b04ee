package strategy

import (
	"log/slog"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// KalmanPID runs the PID loop on a Kalman-smoothed flow rate instead of the
// raw finite-difference estimate. The filter is seeded at the target flow so
// the first few ticks pull gently toward reality rather than slamming the
// valve on startup noise.
type KalmanPID struct {
	base   BaseParams
	core   pidCore
	filter *Kalman

	prevStep time.Time
	now      func() time.Time
}

// NewKalmanPID builds the strategy from the tuning bag.
func NewKalmanPID(p Params, base BaseParams, logger *slog.Logger) *KalmanPID {
	return &KalmanPID{
		base: base,
		core: newPIDCore(
			p.Float(logger, "kp", defaultKp),
			p.Float(logger, "ki", defaultKi),
			p.Float(logger, "kd", defaultKd),
		),
		filter: NewKalmanAt(
			p.Float(logger, "process_noise", DefaultKalmanProcessNoise),
			p.Float(logger, "measurement_noise", DefaultKalmanMeasurementNoise),
			base.TargetFlowRate,
		),
		now: time.Now,
	}
}

// Step implements Strategy.
func (s *KalmanPID) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
	if s.base.targetReached(weight) {
		return model.ValveStop, 0
	}
	if flowRate == nil {
		return model.ValveNoop, s.base.ValveInterval
	}

	now := s.now()
	dt := s.base.ValveInterval.Seconds()
	if !s.prevStep.IsZero() {
		dt = now.Sub(s.prevStep).Seconds()
	}

	filtered := s.filter.Update(flowRate)
	err := s.base.TargetFlowRate - filtered
	output := s.core.compute(err, dt)

	s.core.prevErr = err
	s.prevStep = now

	return s.base.commandFor(output)
}
