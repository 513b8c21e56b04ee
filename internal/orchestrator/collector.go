package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tomnis/coldbrewer/internal/alert"
	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
	"github.com/tomnis/coldbrewer/internal/metrics"
	"github.com/tomnis/coldbrewer/internal/retry"
)

// runCollector reads the scale every scale interval and writes samples to
// the store until the brew context is cancelled. It keeps collecting in the
// acquired (idle) state so client-driven brews still get flow data; only
// paused brews skip the body.
func (o *Orchestrator) runCollector(ctx context.Context, brewID string, interval time.Duration) {
	logger := o.logger.With("task", "collector", "brew_id", brewID)
	logger.Info("sample collector started")
	defer logger.Info("sample collector stopped")

	writePolicy := retry.Policy{MaxAttempts: 2, Logger: logger}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if o.currentState() == model.StatePaused {
			o.sleepFn(ctx, interval)
			continue
		}

		if err := o.collectOnce(ctx, writePolicy); err != nil {
			metrics.CollectorErrors.Inc()
			o.noteFailure(brewID, "collector", err)
		} else {
			o.noteSuccess(brewID)
		}

		o.sleepFn(ctx, interval)
	}
}

// collectOnce performs one sample collection: lazy reconnect through the
// breaker, read, persist.
func (o *Orchestrator) collectOnce(ctx context.Context, writePolicy retry.Policy) error {
	ctx, span := o.tracer.Start(ctx, "collect_sample")
	defer span.End()

	if !o.scale.Connected() {
		if err := o.breaker.Allow(); err != nil {
			return err
		}
		metrics.CollectorScaleReconnects.Inc()
		err := o.scale.Connect()
		o.breaker.Record(err)
		if err != nil {
			return err
		}
	}

	weight, err := o.scale.Weight()
	if err != nil {
		return err
	}
	battery, err := o.scale.BatteryPercentage()
	if err != nil {
		return err
	}

	sample := model.WeightSample{Timestamp: o.nowFn(), Grams: weight}
	err = writePolicy.Do(ctx, "write sample", func(ctx context.Context) error {
		return o.store.WriteScaleData(ctx, sample)
	})
	if err != nil {
		return err
	}

	metrics.CollectorSamplesTotal.Inc()
	metrics.ScaleWeightGrams.Set(weight)
	metrics.ScaleBatteryPercent.Set(float64(battery))
	span.SetAttributes(
		attribute.Float64("weight_grams", weight),
		attribute.Int("battery_pct", battery),
	)

	if battery <= o.lowBattery {
		o.lowBatteryAlert(battery)
	}
	return nil
}

// lowBatteryAlert fires once per cooldown; the alerter dedups repeats.
func (o *Orchestrator) lowBatteryAlert(pct int) {
	brew, ok := o.Brew()
	if !ok {
		return
	}
	c := brewerr.Classify(brewerr.ScaleBatteryLow(pct))
	_ = o.alerter.Send(context.Background(), alert.Alert{
		Type:    alert.AlertTypeBatteryLow,
		BrewID:  brew.ID,
		Title:   "scale battery low",
		Message: c.Message,
		Fields:  map[string]string{"suggestion": c.Suggestion},
	})
}
