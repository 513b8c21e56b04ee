package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

const (
	defaultMPCHorizon  = 15
	defaultMPCQError   = 1.0
	defaultMPCQControl = 0.1
	defaultMPCQDelta   = 0.5
)

// mpcDeltas are the candidate offsets from the previous control action
// evaluated each tick, coarse to fine. The order matters only for
// tie-breaking: with strictly-lower-cost wins, the first (most negative)
// candidate of a tied set is chosen, making the solve deterministic.
var mpcDeltas = [...]float64{-2.0, -1.0, -0.5, -0.25, 0.0, 0.25, 0.5, 1.0, 2.0}

// MPC is a finite-horizon model-predictive controller solved by exhaustive
// search: each tick it holds every candidate control constant over the
// horizon, simulates the first-order plant forward, and picks the candidate
// minimizing a quadratic cost in tracking error, control effort and control
// change.
type MPC struct {
	base BaseParams

	horizon   int
	plantGain float64
	plantTau  float64
	qError    float64
	qControl  float64
	qDelta    float64
	outputMin float64
	outputMax float64

	modelState  float64
	prevControl float64
	initialized bool

	prevStep time.Time
	now      func() time.Time
	logger   *slog.Logger
}

// NewMPC builds the strategy from the tuning bag.
func NewMPC(p Params, base BaseParams, logger *slog.Logger) *MPC {
	return &MPC{
		base:      base,
		horizon:   p.Int(logger, "horizon", defaultMPCHorizon),
		plantGain: p.Float(logger, "plant_gain", defaultPlantGain),
		plantTau:  p.Float(logger, "plant_time_constant", defaultPlantTimeConstant),
		qError:    p.Float(logger, "q_error", defaultMPCQError),
		qControl:  p.Float(logger, "q_control", defaultMPCQControl),
		qDelta:    p.Float(logger, "q_delta", defaultMPCQDelta),
		outputMin: p.Float(logger, "output_min", -defaultOutputLimit),
		outputMax: p.Float(logger, "output_max", defaultOutputLimit),
		now:       time.Now,
		logger:    logger,
	}
}

// solve evaluates every candidate control over the horizon and returns the
// cheapest. The control-change penalty applies only at the first step of
// the horizon, where the change actually happens.
func (s *MPC) solve(flowRate, dt float64) float64 {
	var alpha float64
	if s.plantTau > 0 {
		alpha = math.Exp(-dt / s.plantTau)
	}

	bestU := s.prevControl
	bestCost := math.Inf(1)

	for _, delta := range mpcDeltas {
		u := clamp(s.prevControl+delta, s.outputMin, s.outputMax)

		var cost float64
		state := flowRate
		for k := 0; k < s.horizon; k++ {
			state = alpha*state + (1-alpha)*s.plantGain*u

			err := s.base.TargetFlowRate - state
			var du float64
			if k == 0 {
				du = u - s.prevControl
			}
			cost += s.qError*err*err + s.qControl*u*u + s.qDelta*du*du
		}

		if cost < bestCost {
			bestCost = cost
			bestU = u
		}
	}

	return bestU
}

// Step implements Strategy.
func (s *MPC) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
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
	} else {
		s.modelState = *flowRate
		s.initialized = true
	}

	// Advance the internal model with the control applied last tick before
	// choosing the next one.
	if s.initialized {
		var alpha float64
		if s.plantTau > 0 {
			alpha = math.Exp(-dt / s.plantTau)
		}
		s.modelState = alpha*s.modelState + (1-alpha)*s.plantGain*s.prevControl
	}

	output := s.solve(*flowRate, dt)

	s.prevControl = output
	s.prevStep = now

	if s.logger != nil {
		s.logger.Debug("mpc step",
			"flow_rate", *flowRate,
			"model", s.modelState,
			"output", output)
	}

	return s.base.commandFor(output)
}
