package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
	"github.com/tomnis/coldbrewer/internal/flow"
	"github.com/tomnis/coldbrewer/internal/metrics"
	"github.com/tomnis/coldbrewer/internal/strategy"
)

// runControl executes one strategy step per tick and applies the resulting
// valve command, sleeping whatever interval the strategy asks for. Faults
// degrade the brew and keep the cadence; STOP completes it.
func (o *Orchestrator) runControl(ctx context.Context, brewID string, base strategy.BaseParams) {
	logger := o.logger.With("task", "control", "brew_id", brewID)
	logger.Info("control loop started")
	defer logger.Info("control loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if o.currentState() == model.StatePaused {
			o.sleepFn(ctx, pausedPollInterval)
			continue
		}

		cmd, wait, err := o.controlTick(ctx, brewID, base)
		if err != nil {
			o.noteFailure(brewID, "control", err)
			o.sleepFn(ctx, base.ValveInterval)
			continue
		}
		o.noteSuccess(brewID)

		if cmd == model.ValveStop {
			o.complete(brewID)
			return
		}
		o.sleepFn(ctx, wait)
	}
}

// controlTick runs one estimate-step-actuate cycle.
func (o *Orchestrator) controlTick(ctx context.Context, brewID string, base strategy.BaseParams) (model.ValveCommand, time.Duration, error) {
	ctx, span := o.tracer.Start(ctx, "control_tick")
	defer span.End()

	o.mu.Lock()
	strat := o.strat
	var started time.Time
	strategyName := ""
	if o.brew != nil {
		started = o.brew.TimeStarted
		strategyName = o.brew.Strategy
	}
	o.mu.Unlock()

	if strat == nil {
		return model.ValveNoop, base.ValveInterval, brewerr.InvalidBrewState(string(model.StateIdle), "control tick")
	}

	tickStart := time.Now()
	defer func() {
		metrics.ControlTickLatency.WithLabelValues(strategyName).Observe(time.Since(tickStart).Seconds())
	}()
	metrics.ControlTicksTotal.WithLabelValues(strategyName).Inc()

	samples, err := o.store.RecentWeightReadings(ctx, base.ValveInterval, started)
	if err != nil {
		metrics.ControlErrors.WithLabelValues(strategyName).Inc()
		return model.ValveNoop, 0, err
	}

	var flowPtr, weightPtr *float64
	if rate, ok := flow.Estimate(samples); ok {
		flowPtr = &rate
		metrics.FlowRateGPS.Set(rate)
	}
	if len(samples) > 0 {
		weightPtr = &samples[len(samples)-1].Grams
	}

	cmd, wait := strat.Step(flowPtr, weightPtr)
	metrics.ValveCommandsTotal.WithLabelValues(strategyName, cmd.String()).Inc()
	span.SetAttributes(
		attribute.String("command", cmd.String()),
		attribute.Int("samples", len(samples)),
	)

	switch cmd {
	case model.ValveForward:
		if err := o.valve.StepForward(); err != nil {
			metrics.ControlErrors.WithLabelValues(strategyName).Inc()
			return cmd, wait, brewerr.ValveOperation("forward", err)
		}
	case model.ValveBackward:
		if err := o.valve.StepBackward(); err != nil {
			metrics.ControlErrors.WithLabelValues(strategyName).Inc()
			return cmd, wait, brewerr.ValveOperation("backward", err)
		}
	}

	o.logger.Debug("control tick",
		"brew_id", brewID,
		"command", cmd.String(),
		"next_tick_in", wait,
		"samples", len(samples))
	return cmd, wait, nil
}
