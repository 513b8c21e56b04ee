package strategy

import (
	"log/slog"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Default PID tuning shared by the PID family.
const (
	defaultKp = 1.0
	defaultKi = 0.05
	defaultKd = 0.1

	defaultOutputLimit   = 10.0
	defaultIntegralLimit = 100.0
)

// pidCore holds the arithmetic shared by every PID-family strategy. It is
// not a Strategy itself; owners decide what error signal to feed it and
// when to commit prevErr.
type pidCore struct {
	kp, ki, kd float64

	integral float64
	prevErr  float64

	outputLimit   float64
	integralLimit float64
}

func newPIDCore(kp, ki, kd float64) pidCore {
	return pidCore{
		kp:            kp,
		ki:            ki,
		kd:            kd,
		outputLimit:   defaultOutputLimit,
		integralLimit: defaultIntegralLimit,
	}
}

// compute advances the integral state and returns the clamped PID output
// for one error sample. The derivative term uses prevErr, which the caller
// commits after the step so predictor variants can replay past errors.
func (c *pidCore) compute(err, dt float64) float64 {
	p := c.kp * err

	c.integral += err * dt
	c.integral = clamp(c.integral, -c.integralLimit, c.integralLimit)
	i := c.ki * c.integral

	var d float64
	if dt > 0 {
		d = c.kd * (err - c.prevErr) / dt
	}

	return clamp(p+i+d, -c.outputLimit, c.outputLimit)
}

func (c *pidCore) reset() {
	c.integral = 0
	c.prevErr = 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PID drives the valve from the raw flow-rate error. Simple and fast to
// react, but it chases every gram of scale jitter; prefer KalmanPID on a
// noisy scale.
type PID struct {
	base BaseParams
	core pidCore

	prevStep time.Time
	now      func() time.Time
}

// NewPID builds a PID strategy from the tuning bag.
func NewPID(p Params, base BaseParams, logger *slog.Logger) *PID {
	return &PID{
		base: base,
		core: newPIDCore(
			p.Float(logger, "kp", defaultKp),
			p.Float(logger, "ki", defaultKi),
			p.Float(logger, "kd", defaultKd),
		),
		now: time.Now,
	}
}

// Step implements Strategy.
func (s *PID) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
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

	err := s.base.TargetFlowRate - *flowRate
	output := s.core.compute(err, dt)

	s.core.prevErr = err
	s.prevStep = now

	return s.base.commandFor(output)
}
