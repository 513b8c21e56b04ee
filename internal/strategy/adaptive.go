package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Operating regions for gain scheduling, keyed by current flow rate.
type gainRegion string

const (
	regionLow  gainRegion = "low"
	regionMed  gainRegion = "med"
	regionHigh gainRegion = "high"
)

type gainSet struct {
	kp, ki, kd float64
}

const (
	defaultLowThreshold  = 0.03
	defaultHighThreshold = 0.07

	defaultAdaptationRate = 0.01
	adaptationFactorMax   = 2.0

	// Error magnitude and streak length that count as sustained error.
	sustainedErrorMin   = 0.01
	sustainedErrorTicks = 5
)

// AdaptiveGain is a gain-scheduled PID: three gain sets keyed by flow
// region (conservative at startup, aggressive at high flow), plus an
// optional real-time adaptation factor that ramps the active gains up
// under sustained error and decays back once the loop settles.
type AdaptiveGain struct {
	base BaseParams
	core pidCore

	gains         map[gainRegion]gainSet
	lowThreshold  float64
	highThreshold float64
	region        gainRegion

	adaptationEnabled bool
	adaptationRate    float64
	adaptationFactor  float64
	sustainedErrTicks int

	prevStep time.Time
	now      func() time.Time
	logger   *slog.Logger
}

// NewAdaptiveGain builds the strategy from the tuning bag.
func NewAdaptiveGain(p Params, base BaseParams, logger *slog.Logger) *AdaptiveGain {
	gains := map[gainRegion]gainSet{
		regionLow: {
			kp: p.Float(logger, "kp_low", 0.5),
			ki: p.Float(logger, "ki_low", 0.05),
			kd: p.Float(logger, "kd_low", 0.02),
		},
		regionMed: {
			kp: p.Float(logger, "kp_med", 1.5),
			ki: p.Float(logger, "ki_med", 0.15),
			kd: p.Float(logger, "kd_med", 0.08),
		},
		regionHigh: {
			kp: p.Float(logger, "kp_high", 2.5),
			ki: p.Float(logger, "ki_high", 0.25),
			kd: p.Float(logger, "kd_high", 0.1),
		},
	}

	low := gains[regionLow]
	return &AdaptiveGain{
		base:              base,
		core:              newPIDCore(low.kp, low.ki, low.kd),
		gains:             gains,
		lowThreshold:      p.Float(logger, "flow_rate_low_threshold", defaultLowThreshold),
		highThreshold:     p.Float(logger, "flow_rate_high_threshold", defaultHighThreshold),
		region:            regionLow,
		adaptationEnabled: p.Bool(logger, "adaptation_enabled", true),
		adaptationRate:    p.Float(logger, "adaptation_rate", defaultAdaptationRate),
		adaptationFactor:  1.0,
		now:               time.Now,
		logger:            logger,
	}
}

func (s *AdaptiveGain) regionFor(flowRate float64) gainRegion {
	switch {
	case flowRate < s.lowThreshold:
		return regionLow
	case flowRate > s.highThreshold:
		return regionHigh
	default:
		return regionMed
	}
}

// updateGains picks the region's base gains and applies the adaptation
// factor. A region change resets adaptation so the new gain set starts
// from its tuned values.
func (s *AdaptiveGain) updateGains(flowRate, err float64) {
	if region := s.regionFor(flowRate); region != s.region {
		if s.logger != nil {
			s.logger.Info("gain scheduling region change",
				"from", string(s.region),
				"to", string(region),
				"flow_rate", flowRate)
		}
		s.region = region
		s.adaptationFactor = 1.0
		s.sustainedErrTicks = 0
	}

	if s.adaptationEnabled {
		if math.Abs(err) > sustainedErrorMin {
			s.sustainedErrTicks++
			if s.sustainedErrTicks > sustainedErrorTicks {
				s.adaptationFactor = math.Min(adaptationFactorMax, s.adaptationFactor+s.adaptationRate)
			}
		} else {
			s.sustainedErrTicks = 0
			s.adaptationFactor = math.Max(1.0, s.adaptationFactor-2*s.adaptationRate)
		}
	}

	base := s.gains[s.region]
	s.core.kp = base.kp * s.adaptationFactor
	s.core.ki = base.ki * s.adaptationFactor
	s.core.kd = base.kd * s.adaptationFactor
}

// Step implements Strategy.
func (s *AdaptiveGain) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
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
	s.updateGains(*flowRate, err)
	output := s.core.compute(err, dt)

	s.core.prevErr = err
	s.prevStep = now

	return s.base.commandFor(output)
}
