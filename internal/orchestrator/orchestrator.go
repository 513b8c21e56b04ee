// Package orchestrator owns the single in-flight brew: its state machine,
// the sample-collector and control-loop tasks bound to it, and the
// fault-isolation rules that keep a brew degraded instead of dead when the
// hardware misbehaves.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomnis/coldbrewer/internal/alert"
	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/circuitbreaker"
	"github.com/tomnis/coldbrewer/internal/device"
	"github.com/tomnis/coldbrewer/internal/domain/model"
	"github.com/tomnis/coldbrewer/internal/metrics"
	"github.com/tomnis/coldbrewer/internal/strategy"
	"github.com/tomnis/coldbrewer/internal/timeseries"
	"github.com/tomnis/coldbrewer/internal/tracing"
)

const (
	// pausedPollInterval is how often a paused control loop rechecks state.
	pausedPollInterval = time.Second

	defaultLowBatteryPct = 15
)

// Config assembles the orchestrator's collaborators. Scale, Valve and Store
// are required; the rest default sensibly.
type Config struct {
	Scale   device.Scale
	Valve   device.Valve
	Store   timeseries.Store
	Alerter alert.Alerter
	Logger  *slog.Logger

	// Defaults is the base parameter set brews start from before request
	// overrides are applied.
	Defaults strategy.BaseParams

	// LowBatteryPct triggers a battery alert at or below this level.
	LowBatteryPct int
}

// Orchestrator runs at most one brew at a time. All brew and state access
// goes through mu; the two task goroutines hold it only for snapshots and
// transitions, never across I/O.
type Orchestrator struct {
	scale   device.Scale
	valve   device.Valve
	store   timeseries.Store
	alerter alert.Alerter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
	tracer  trace.Tracer

	defaults   strategy.BaseParams
	lowBattery int

	mu     sync.Mutex
	brew   *model.Brew
	strat  strategy.Strategy
	base   strategy.BaseParams
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// injectable for tests
	sleepFn func(ctx context.Context, d time.Duration)
	nowFn   func() time.Time
}

// New builds an orchestrator. The scale-link circuit breaker is wired to
// the breaker-state gauge.
func New(cfg Config) *Orchestrator {
	if cfg.Alerter == nil {
		cfg.Alerter = &alert.NoopAlerter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LowBatteryPct <= 0 {
		cfg.LowBatteryPct = defaultLowBatteryPct
	}
	if cfg.Defaults == (strategy.BaseParams{}) {
		cfg.Defaults = strategy.DefaultBaseParams()
	}

	o := &Orchestrator{
		scale:      cfg.Scale,
		valve:      cfg.Valve,
		store:      cfg.Store,
		alerter:    cfg.Alerter,
		logger:     cfg.Logger.With("component", "orchestrator"),
		tracer:     tracing.Tracer("orchestrator"),
		defaults:   cfg.Defaults,
		lowBattery: cfg.LowBatteryPct,
		sleepFn:    sleepCtx,
		nowFn:      time.Now,
	}
	o.breaker = circuitbreaker.New(circuitbreaker.Config{
		OnStateChange: func(from, to circuitbreaker.State) {
			o.logger.Warn("scale breaker state change", "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(float64(to))
		},
	})
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// resolveBase merges request overrides onto the configured defaults.
func (o *Orchestrator) resolveBase(req model.StartBrewRequest) strategy.BaseParams {
	base := o.defaults
	if req.TargetFlowRate != nil {
		base.TargetFlowRate = *req.TargetFlowRate
	}
	if req.Epsilon != nil {
		base.Epsilon = *req.Epsilon
	}
	if req.TargetWeight != nil {
		base.TargetWeight = *req.TargetWeight
	}
	if req.VesselWeight != nil {
		base.VesselWeight = *req.VesselWeight
	}
	if req.ScaleInterval != nil {
		base.ScaleInterval = time.Duration(*req.ScaleInterval * float64(time.Second))
	}
	if req.ValveInterval != nil {
		base.ValveInterval = time.Duration(*req.ValveInterval * float64(time.Second))
	}
	return base
}

// Start begins a new brew. Fails with a conflict while another brew is
// live; a completed brew's record is replaced.
func (o *Orchestrator) Start(ctx context.Context, req model.StartBrewRequest) (model.Brew, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.brew != nil && o.brew.State != model.StateCompleted {
		return model.Brew{}, brewerr.BrewConflict(o.brew.ID)
	}

	base := o.resolveBase(req)
	strat, err := strategy.New(strategy.Type(req.Strategy), req.Params, base, o.logger)
	if err != nil {
		return model.Brew{}, err
	}

	brew := &model.Brew{
		ID:           uuid.NewString(),
		State:        model.StateBrewing,
		Strategy:     string(strategy.Type(req.Strategy)),
		TargetWeight: base.TargetWeight,
		VesselWeight: base.VesselWeight,
		CoffeeTarget: base.CoffeeTarget(),
		TimeStarted:  o.nowFn(),
	}
	if brew.Strategy == "" {
		brew.Strategy = string(strategy.TypeThreshold)
	}

	brewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.brew = brew
	o.strat = strat
	o.base = base
	o.cancel = cancel

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.runCollector(brewCtx, brew.ID, base.ScaleInterval)
	}()
	go func() {
		defer o.wg.Done()
		o.runControl(brewCtx, brew.ID, base)
	}()

	o.logger.Info("brew started",
		"brew_id", brew.ID,
		"strategy", brew.Strategy,
		"target_weight", base.TargetWeight,
		"coffee_target", base.CoffeeTarget())
	metrics.BrewsStartedTotal.WithLabelValues(brew.Strategy).Inc()
	o.setStateGauge(model.StateBrewing)

	return *brew, nil
}

// Acquire claims the brew slot without starting the control loop: only the
// sample collector runs, and the client drives the valve through the HTTP
// surface.
func (o *Orchestrator) Acquire(ctx context.Context) (model.Brew, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.brew != nil && o.brew.State != model.StateCompleted {
		return model.Brew{}, brewerr.BrewConflict(o.brew.ID)
	}

	brew := &model.Brew{
		ID:          uuid.NewString(),
		State:       model.StateIdle,
		TimeStarted: o.nowFn(),
	}

	brewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.brew = brew
	o.strat = nil
	o.base = o.defaults
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runCollector(brewCtx, brew.ID, o.defaults.ScaleInterval)
	}()

	o.logger.Info("brew slot acquired", "brew_id", brew.ID)
	return *brew, nil
}

// Pause flips brewing to paused. Pausing a paused brew is a no-op.
func (o *Orchestrator) Pause() (model.BrewState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.brew == nil:
		return "", brewerr.BrewNotFound("")
	case o.brew.State == model.StatePaused:
		return model.StatePaused, nil
	case o.brew.State == model.StateBrewing:
		o.brew.State = model.StatePaused
		o.setStateGauge(model.StatePaused)
		o.logger.Info("brew paused", "brew_id", o.brew.ID)
		return model.StatePaused, nil
	default:
		return o.brew.State, brewerr.InvalidBrewState(string(o.brew.State), "pause")
	}
}

// Resume flips paused back to brewing. Resuming a brewing brew is a no-op.
func (o *Orchestrator) Resume() (model.BrewState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.brew == nil:
		return "", brewerr.BrewNotFound("")
	case o.brew.State == model.StateBrewing:
		return model.StateBrewing, nil
	case o.brew.State == model.StatePaused:
		o.brew.State = model.StateBrewing
		o.setStateGauge(model.StateBrewing)
		o.logger.Info("brew resumed", "brew_id", o.brew.ID)
		return model.StateBrewing, nil
	default:
		return o.brew.State, brewerr.InvalidBrewState(string(o.brew.State), "resume")
	}
}

// Stop gracefully ends the identified brew: valve released, scale
// disconnected, slot freed.
func (o *Orchestrator) Stop(brewID string) error {
	return o.Release(brewID)
}

// Release tears down the identified brew. Unlike Kill it is id-guarded and
// does not home the valve, matching the acquire/release contract where the
// client owns valve position.
func (o *Orchestrator) Release(brewID string) error {
	o.mu.Lock()
	if err := o.matchBrewLocked(brewID); err != nil {
		o.mu.Unlock()
		return err
	}
	id := o.brew.ID
	o.teardownLocked()
	o.mu.Unlock()

	if err := o.valve.Release(); err != nil {
		o.logger.Warn("valve release failed", "brew_id", id, "error", err)
	}
	if err := o.scale.Disconnect(); err != nil {
		o.logger.Warn("scale disconnect failed", "brew_id", id, "error", err)
	}
	o.logger.Info("brew released", "brew_id", id)
	return nil
}

// Kill forcefully ends whatever brew is live, homing and releasing the
// valve. It is the escape hatch and takes no id.
func (o *Orchestrator) Kill() (string, error) {
	o.mu.Lock()
	if o.brew == nil {
		o.mu.Unlock()
		return "", brewerr.BrewNotFound("")
	}
	id := o.brew.ID
	o.teardownLocked()
	o.mu.Unlock()

	if err := o.valve.ReturnToStart(); err != nil {
		o.logger.Warn("valve homing failed during kill", "brew_id", id, "error", err)
	}
	if err := o.valve.Release(); err != nil {
		o.logger.Warn("valve release failed during kill", "brew_id", id, "error", err)
	}
	o.logger.Info("brew killed", "brew_id", id)
	return id, nil
}

// matchBrewLocked enforces the brew-id guard. Caller holds mu.
func (o *Orchestrator) matchBrewLocked(brewID string) error {
	if o.brew == nil {
		return brewerr.BrewNotFound(brewID)
	}
	if o.brew.ID != brewID {
		return brewerr.BrewNotFound(brewID)
	}
	return nil
}

// teardownLocked cancels the brew context and frees the slot. Caller holds
// mu and performs hardware cleanup after unlocking.
func (o *Orchestrator) teardownLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.brew = nil
	o.strat = nil
	o.setStateGauge(model.StateIdle)
}

// complete marks the brew finished after a STOP command. The control loop
// calls this and then exits.
func (o *Orchestrator) complete(brewID string) {
	o.mu.Lock()
	if o.matchBrewLocked(brewID) != nil {
		o.mu.Unlock()
		return
	}
	o.brew.State = model.StateCompleted
	o.brew.TimeCompleted = o.nowFn()
	brew := *o.brew
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.setStateGauge(model.StateCompleted)
	o.mu.Unlock()

	if err := o.scale.Disconnect(); err != nil {
		o.logger.Warn("scale disconnect failed", "brew_id", brewID, "error", err)
	}
	if err := o.valve.ReturnToStart(); err != nil {
		o.logger.Warn("valve homing failed", "brew_id", brewID, "error", err)
	}
	if err := o.valve.Release(); err != nil {
		o.logger.Warn("valve release failed", "brew_id", brewID, "error", err)
	}

	o.logger.Info("brew completed", "brew_id", brewID, "strategy", brew.Strategy)
	metrics.BrewsCompletedTotal.WithLabelValues(brew.Strategy).Inc()
	_ = o.alerter.Send(context.Background(), alert.Alert{
		Type:    alert.AlertTypeCompleted,
		BrewID:  brewID,
		Title:   "brew completed",
		Message: "target weight reached",
		Fields:  map[string]string{"strategy": brew.Strategy},
	})
}

// noteFailure classifies a task error and degrades the brew to the error
// state without stopping the cadence.
func (o *Orchestrator) noteFailure(brewID, task string, err error) {
	c := brewerr.Classify(err)

	o.mu.Lock()
	if o.matchBrewLocked(brewID) != nil {
		o.mu.Unlock()
		return
	}
	firstFault := o.brew.State == model.StateBrewing
	if firstFault {
		o.brew.State = model.StateError
		o.setStateGauge(model.StateError)
	}
	o.brew.ErrorMessage = c.Message
	o.mu.Unlock()

	o.logger.Error("brew task fault",
		"brew_id", brewID,
		"task", task,
		"category", c.Category,
		"severity", c.Severity,
		"retryable", c.Retryable,
		"error", err)
	metrics.BrewFaultsTotal.WithLabelValues(string(c.Category)).Inc()

	if firstFault {
		_ = o.alerter.Send(context.Background(), alert.Alert{
			Type:    alert.AlertTypeBrewError,
			BrewID:  brewID,
			Title:   "brew degraded: " + task + " fault",
			Message: c.Message,
			Fields:  map[string]string{"suggestion": c.Suggestion},
		})
	}
}

// noteSuccess heals the error state after a clean task iteration.
func (o *Orchestrator) noteSuccess(brewID string) {
	o.mu.Lock()
	if o.matchBrewLocked(brewID) != nil || o.brew.State != model.StateError {
		o.mu.Unlock()
		return
	}
	o.brew.State = model.StateBrewing
	o.brew.ErrorMessage = ""
	o.setStateGauge(model.StateBrewing)
	o.mu.Unlock()

	o.logger.Info("brew recovered", "brew_id", brewID)
	metrics.BrewRecoveriesTotal.Inc()
	_ = o.alerter.Send(context.Background(), alert.Alert{
		Type:   alert.AlertTypeRecovery,
		BrewID: brewID,
		Title:  "brew recovered",
	})
}

// currentState returns the live brew's state, or idle when no brew exists.
func (o *Orchestrator) currentState() model.BrewState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.brew == nil {
		return model.StateIdle
	}
	return o.brew.State
}

// Brew returns a copy of the live brew record.
func (o *Orchestrator) Brew() (model.Brew, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.brew == nil {
		return model.Brew{}, false
	}
	return *o.brew, true
}

// MatchBrew validates an externally supplied brew id.
func (o *Orchestrator) MatchBrew(brewID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.matchBrewLocked(brewID)
}

func (o *Orchestrator) setStateGauge(s model.BrewState) {
	var v float64
	switch s {
	case model.StateIdle:
		v = 0
	case model.StateBrewing:
		v = 1
	case model.StatePaused:
		v = 2
	case model.StateCompleted:
		v = 3
	case model.StateError:
		v = 4
	}
	metrics.BrewState.Set(v)
}

// StepValveForward services the manual valve endpoint, id-guarded.
func (o *Orchestrator) StepValveForward(brewID string) error {
	if err := o.MatchBrew(brewID); err != nil {
		return err
	}
	if err := o.valve.StepForward(); err != nil {
		return brewerr.ValveOperation("forward", err)
	}
	return nil
}

// StepValveBackward services the manual valve endpoint, id-guarded.
func (o *Orchestrator) StepValveBackward(brewID string) error {
	if err := o.MatchBrew(brewID); err != nil {
		return err
	}
	if err := o.valve.StepBackward(); err != nil {
		return brewerr.ValveOperation("backward", err)
	}
	return nil
}

// Wait blocks until all task goroutines have exited. Tests and shutdown
// paths use it after Kill/Release.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
