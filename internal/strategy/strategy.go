// Package strategy implements the pluggable control laws that turn a noisy
// flow-rate signal into valve commands: a bang-bang threshold controller, a
// PID family (raw, Kalman-filtered, gain-scheduled, Smith-predicted) and a
// brute-force finite-horizon MPC.
package strategy

import (
	"time"

	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Default base parameters, overridable per brew.
const (
	DefaultTargetFlowRate = 0.05 // g/s
	DefaultEpsilon        = 0.008
	DefaultTargetWeight   = 1337.0 // grams, vessel included
	DefaultVesselWeight   = 229.0
	DefaultScaleInterval  = 500 * time.Millisecond
	DefaultValveInterval  = 60 * time.Second
)

// commandDeadband is the fixed zone around zero controller output within
// which the PID family issues no actuation, suppressing valve chatter.
const commandDeadband = 0.1

// Strategy consumes one (flow rate, weight) observation and returns a valve
// command plus the interval until the next control tick. Implementations
// own their mutable controller state exclusively; a strategy instance is
// bound to a single brew and never shared.
type Strategy interface {
	Step(flowRate, weight *float64) (model.ValveCommand, time.Duration)
}

// BaseParams is the per-brew configuration shared by every strategy,
// resolved once at brew start.
type BaseParams struct {
	TargetFlowRate float64
	Epsilon        float64
	TargetWeight   float64
	VesselWeight   float64
	ScaleInterval  time.Duration
	ValveInterval  time.Duration
}

// DefaultBaseParams returns the stock configuration.
func DefaultBaseParams() BaseParams {
	return BaseParams{
		TargetFlowRate: DefaultTargetFlowRate,
		Epsilon:        DefaultEpsilon,
		TargetWeight:   DefaultTargetWeight,
		VesselWeight:   DefaultVesselWeight,
		ScaleInterval:  DefaultScaleInterval,
		ValveInterval:  DefaultValveInterval,
	}
}

// CoffeeTarget is the liquid-only target: total target minus vessel tare.
func (b BaseParams) CoffeeTarget() float64 {
	return b.TargetWeight - b.VesselWeight
}

// Validate rejects configurations no control law can act on.
func (b BaseParams) Validate() error {
	if b.CoffeeTarget() < 0 {
		return brewerr.Configuration("target_weight", "must be at least the vessel weight")
	}
	if b.ValveInterval <= 0 {
		return brewerr.Configuration("valve_interval", "must be positive")
	}
	if b.ScaleInterval <= 0 {
		return brewerr.Configuration("scale_interval", "must be positive")
	}
	return nil
}

// targetReached applies the precedence rule shared by every strategy:
// weight-target satisfaction always wins over flow-rate control.
func (b BaseParams) targetReached(weight *float64) bool {
	if weight == nil {
		return false
	}
	return *weight-b.VesselWeight >= b.CoffeeTarget()
}

// commandFor maps a continuous controller output to a discrete valve
// command. Outputs inside the deadband coast at double the base interval.
func (b BaseParams) commandFor(output float64) (model.ValveCommand, time.Duration) {
	switch {
	case output < commandDeadband && output > -commandDeadband:
		return model.ValveNoop, 2 * b.ValveInterval
	case output > 0:
		return model.ValveForward, b.ValveInterval
	default:
		return model.ValveBackward, b.ValveInterval
	}
}
