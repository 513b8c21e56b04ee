package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Plant model defaults for a gravity-fed needle valve: roughly 45s between
// a valve step and a visible flow change, 0.005 g/s per valve unit at
// steady state, first-order lag of 15s.
const (
	defaultDeadTime          = 45.0
	defaultPlantGain         = 0.005
	defaultPlantTimeConstant = 15.0
)

// SmithPredictor compensates for the transport delay between a valve step
// and its effect on measured flow. It keeps a first-order-plus-dead-time
// model of the plant and runs the PID on the model's undelayed prediction
// instead of the stale measurement, so the controller stops issuing
// corrections it has already made but not yet seen.
type SmithPredictor struct {
	base   BaseParams
	core   pidCore
	filter *Kalman

	deadTime  float64
	plantGain float64
	plantTau  float64

	modelOutput  float64
	delayBuffer  []float64
	delaySamples int

	prevStep time.Time
	now      func() time.Time
	logger   *slog.Logger
}

// NewSmithPredictor builds the strategy from the tuning bag.
func NewSmithPredictor(p Params, base BaseParams, logger *slog.Logger) *SmithPredictor {
	deadTime := p.Float(logger, "dead_time", defaultDeadTime)

	delaySamples := int(math.Round(deadTime / base.ValveInterval.Seconds()))
	if delaySamples < 1 {
		delaySamples = 1
	}

	return &SmithPredictor{
		base: base,
		core: newPIDCore(
			p.Float(logger, "kp", defaultKp),
			p.Float(logger, "ki", defaultKi),
			p.Float(logger, "kd", defaultKd),
		),
		filter: NewKalmanAt(
			p.Float(logger, "q", DefaultKalmanProcessNoise),
			p.Float(logger, "r", DefaultKalmanMeasurementNoise),
			base.TargetFlowRate,
		),
		deadTime:     deadTime,
		plantGain:    p.Float(logger, "plant_gain", defaultPlantGain),
		plantTau:     p.Float(logger, "plant_time_constant", defaultPlantTimeConstant),
		delaySamples: delaySamples,
		now:          time.Now,
		logger:       logger,
	}
}

// updatePlantModel advances the first-order model by one tick:
//
//	y[k] = alpha*y[k-1] + (1-alpha)*K*u[k-delay], alpha = exp(-dt/tau)
//
// then pushes the current command into the delay line.
func (s *SmithPredictor) updatePlantModel(command, dt float64) {
	var alpha float64
	if s.plantTau > 0 {
		alpha = math.Exp(-dt / s.plantTau)
	}

	var delayed float64
	if len(s.delayBuffer) > 0 {
		delayed = s.delayBuffer[0]
	}
	s.modelOutput = alpha*s.modelOutput + (1-alpha)*s.plantGain*delayed

	s.delayBuffer = append(s.delayBuffer, command)
	if len(s.delayBuffer) > s.delaySamples {
		s.delayBuffer = s.delayBuffer[1:]
	}
}

// Step implements Strategy.
func (s *SmithPredictor) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
	if s.base.targetReached(weight) {
		return model.ValveStop, 0
	}
	if flowRate == nil {
		return model.ValveNoop, s.base.ValveInterval
	}

	now := s.now()
	first := s.prevStep.IsZero()
	dt := s.base.ValveInterval.Seconds()
	if !first {
		dt = now.Sub(s.prevStep).Seconds()
	} else {
		// Seed the model at the observed flow so the first prediction
		// is not an artificial zero.
		s.modelOutput = *flowRate
	}

	// Smoothed measurement, kept for monitoring alongside the prediction.
	filtered := s.filter.Update(flowRate)

	if !first {
		// Reconstruct the previous control action from the stored error
		// and feed it through the delay line into the plant model.
		var lastCommand float64
		if s.core.prevErr != 0 {
			lastCommand = s.core.compute(s.core.prevErr, dt)
		}
		s.updatePlantModel(lastCommand, dt)
	}

	predicted := s.modelOutput
	err := s.base.TargetFlowRate - predicted
	output := s.core.compute(err, dt)

	s.core.prevErr = err
	s.prevStep = now

	if s.logger != nil {
		s.logger.Debug("smith predictor step",
			"raw", *flowRate,
			"filtered", filtered,
			"predicted", predicted,
			"error", err,
			"output", output)
	}

	return s.base.commandFor(output)
}
