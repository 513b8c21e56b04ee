package orchestrator

import (
	"context"
	"time"

	"github.com/tomnis/coldbrewer/internal/domain/model"
	"github.com/tomnis/coldbrewer/internal/flow"
)

// ScaleStatus snapshots the scale, reconnecting lazily the same way the
// collector does. A dead link reports connected=false rather than failing.
func (o *Orchestrator) ScaleStatus() model.ScaleStatus {
	if !o.scale.Connected() {
		if err := o.breaker.Allow(); err != nil {
			return model.ScaleStatus{Connected: false}
		}
		err := o.scale.Connect()
		o.breaker.Record(err)
		if err != nil {
			return model.ScaleStatus{Connected: false}
		}
	}

	weight, err := o.scale.Weight()
	if err != nil {
		return model.ScaleStatus{Connected: false}
	}
	units, err := o.scale.Units()
	if err != nil {
		return model.ScaleStatus{Connected: false}
	}
	battery, err := o.scale.BatteryPercentage()
	if err != nil {
		return model.ScaleStatus{Connected: false}
	}

	return model.ScaleStatus{
		Connected:  true,
		Weight:     weight,
		Units:      units,
		BatteryPct: battery,
	}
}

// FlowRate estimates the current flow from the trailing window, scoped to
// the live brew when one exists.
func (o *Orchestrator) FlowRate(ctx context.Context) (float64, bool) {
	o.mu.Lock()
	base := o.base
	if base.ValveInterval == 0 {
		base = o.defaults
	}
	var started time.Time
	if o.brew != nil {
		started = o.brew.TimeStarted
	}
	o.mu.Unlock()

	samples, err := o.store.RecentWeightReadings(ctx, base.ValveInterval, started)
	if err != nil {
		return 0, false
	}
	return flow.Estimate(samples)
}

// Status assembles the wire status snapshot.
func (o *Orchestrator) Status(ctx context.Context) model.BrewStatus {
	o.mu.Lock()
	brew := o.brew
	var snapshot model.Brew
	if brew != nil {
		snapshot = *brew
	}
	o.mu.Unlock()

	status := model.BrewStatus{
		BrewState: model.StateIdle,
		Timestamp: o.nowFn(),
	}
	if brew == nil {
		return status
	}

	status.BrewID = snapshot.ID
	status.BrewState = snapshot.State
	status.Strategy = snapshot.Strategy
	status.TimeStarted = snapshot.TimeStarted
	status.TargetWeight = snapshot.TargetWeight
	status.ErrorMessage = snapshot.ErrorMessage

	if rate, ok := o.FlowRate(ctx); ok {
		status.CurrentFlowRate = &rate
	}
	if o.scale.Connected() {
		if weight, err := o.scale.Weight(); err == nil {
			status.CurrentWeight = &weight
		}
	}
	return status
}
