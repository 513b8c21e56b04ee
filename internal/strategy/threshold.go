package strategy

import (
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

// Threshold is the stateless bang-bang controller and the default strategy:
// open when flow is at or below target, close when above, coast while
// within epsilon of target. It carries no controller state, so a mid-brew
// restart costs nothing.
type Threshold struct {
	base BaseParams
}

// NewThreshold builds the default strategy. It takes no tuning parameters
// beyond the base set.
func NewThreshold(base BaseParams) *Threshold {
	return &Threshold{base: base}
}

// Step implements Strategy.
func (s *Threshold) Step(flowRate, weight *float64) (model.ValveCommand, time.Duration) {
	if s.base.targetReached(weight) {
		return model.ValveStop, 0
	}
	if flowRate == nil {
		return model.ValveNoop, s.base.ValveInterval
	}

	diff := s.base.TargetFlowRate - *flowRate
	switch {
	case diff <= s.base.Epsilon && diff >= -s.base.Epsilon:
		// Close enough; settle and check back later.
		return model.ValveNoop, 2 * s.base.ValveInterval
	case *flowRate <= s.base.TargetFlowRate:
		return model.ValveForward, s.base.ValveInterval
	default:
		return model.ValveBackward, s.base.ValveInterval
	}
}
