package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tomnis/coldbrewer/internal/domain/model"
)

func newTestAdaptive(p Params) *AdaptiveGain {
	s := NewAdaptiveGain(p, DefaultBaseParams(), testLogger())
	s.now = newTickClock(time.Minute).now
	return s
}

func TestAdaptive_StartsInLowRegion(t *testing.T) {
	s := newTestAdaptive(nil)
	assert.Equal(t, regionLow, s.region)
	assert.InDelta(t, 0.5, s.core.kp, 1e-9)
	assert.InDelta(t, 0.05, s.core.ki, 1e-9)
	assert.InDelta(t, 0.02, s.core.kd, 1e-9)
}

func TestAdaptive_RegionFor(t *testing.T) {
	s := newTestAdaptive(nil)
	assert.Equal(t, regionLow, s.regionFor(0.02))
	assert.Equal(t, regionMed, s.regionFor(0.03), "boundary belongs to medium")
	assert.Equal(t, regionMed, s.regionFor(0.05))
	assert.Equal(t, regionMed, s.regionFor(0.07), "boundary belongs to medium")
	assert.Equal(t, regionHigh, s.regionFor(0.08))
}

func TestAdaptive_RegionSwitchLoadsNewGains(t *testing.T) {
	s := newTestAdaptive(nil)

	s.Step(fptr(0.05), fptr(500.0)) // medium-region flow
	assert.Equal(t, regionMed, s.region)
	assert.InDelta(t, 1.5, s.core.kp, 1e-9)
	assert.InDelta(t, 0.15, s.core.ki, 1e-9)
	assert.InDelta(t, 0.08, s.core.kd, 1e-9)

	s.Step(fptr(0.1), fptr(500.0)) // high-region flow
	assert.Equal(t, regionHigh, s.region)
	assert.InDelta(t, 2.5, s.core.kp, 1e-9)
}

func TestAdaptive_SustainedErrorRampsGains(t *testing.T) {
	s := newTestAdaptive(nil)

	// Flow stuck well below target in the low region: after the sustained
	// streak threshold the adaptation factor starts climbing.
	for i := 0; i < 6; i++ {
		s.Step(fptr(0.0), fptr(500.0))
	}
	assert.InDelta(t, 1.0+defaultAdaptationRate, s.adaptationFactor, 1e-9)

	s.Step(fptr(0.0), fptr(500.0))
	assert.InDelta(t, 1.0+2*defaultAdaptationRate, s.adaptationFactor, 1e-9)
	assert.InDelta(t, 0.5*s.adaptationFactor, s.core.kp, 1e-9, "factor applied to region gains")
}

func TestAdaptive_SmallErrorDecaysFactor(t *testing.T) {
	s := newTestAdaptive(nil)
	s.adaptationFactor = 1.5
	s.region = regionMed
	s.sustainedErrTicks = 10

	// Error within tolerance: streak resets and the factor decays twice as
	// fast as it ramps, floored at 1.
	s.Step(fptr(0.045), fptr(500.0))
	assert.Equal(t, 0, s.sustainedErrTicks)
	assert.InDelta(t, 1.5-2*defaultAdaptationRate, s.adaptationFactor, 1e-9)

	for i := 0; i < 100; i++ {
		s.Step(fptr(0.045), fptr(500.0))
	}
	assert.InDelta(t, 1.0, s.adaptationFactor, 1e-9, "decay floors at 1")
}

func TestAdaptive_RegionChangeResetsAdaptation(t *testing.T) {
	s := newTestAdaptive(nil)
	s.adaptationFactor = 1.8
	s.sustainedErrTicks = 9

	s.Step(fptr(0.05), fptr(500.0)) // low -> med
	assert.Equal(t, regionMed, s.region)
	// Reset to 1.0 on switch; this same step then counts one sustained-error
	// tick but the streak is far below the ramp threshold.
	assert.InDelta(t, 1.0, s.adaptationFactor, 1e-9)
	assert.Equal(t, 0, s.sustainedErrTicks)
}

func TestAdaptive_FactorCapped(t *testing.T) {
	s := newTestAdaptive(Params{"adaptation_rate": 0.5})

	for i := 0; i < 20; i++ {
		s.Step(fptr(0.0), fptr(500.0))
	}
	assert.InDelta(t, adaptationFactorMax, s.adaptationFactor, 1e-9)
}

func TestAdaptive_AdaptationDisabled(t *testing.T) {
	s := newTestAdaptive(Params{"adaptation_enabled": false})

	for i := 0; i < 20; i++ {
		s.Step(fptr(0.0), fptr(500.0))
	}
	assert.InDelta(t, 1.0, s.adaptationFactor, 1e-9)
}

func TestAdaptive_CommandsTrackErrorSign(t *testing.T) {
	s := newTestAdaptive(nil)

	cmd, _ := s.Step(fptr(0.0), fptr(500.0))
	assert.Equal(t, model.ValveForward, cmd)

	s = newTestAdaptive(nil)
	cmd, _ = s.Step(fptr(0.5), fptr(500.0))
	assert.Equal(t, model.ValveBackward, cmd)
}
