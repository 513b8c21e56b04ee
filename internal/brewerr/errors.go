// Package brewerr defines the typed error taxonomy shared by the devices,
// the sample store, and the orchestrator, plus the classifier that maps any
// error to a structured, client-facing description.
package brewerr

import (
	"fmt"
	"time"
)

// Severity is the client-facing severity of a classified error.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category groups errors by the subsystem that raised them.
type Category string

const (
	CategoryScale         Category = "scale"
	CategoryValve         Category = "valve"
	CategoryTimeSeries    Category = "timeseries"
	CategoryBrew          Category = "brew"
	CategoryConfiguration Category = "configuration"
)

// TransientError is a temporary condition worth retrying: flaky Bluetooth,
// a store hiccup, a stuck motor that frees itself.
type TransientError struct {
	Message    string
	Category   Category
	RetryAfter time.Duration
	MaxRetries int
	Cause      error
}

func (e *TransientError) Error() string { return e.Message }
func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError is a condition retries cannot fix: bad configuration,
// a missing device, an illegal state transition.
type PermanentError struct {
	Message  string
	Category Category
	Cause    error
}

func (e *PermanentError) Error() string { return e.Message }
func (e *PermanentError) Unwrap() error { return e.Cause }

// Kind identifies the concrete failure for classification and metrics.
type Kind string

const (
	KindScaleNotFound   Kind = "scale_not_found"
	KindScaleConnection Kind = "scale_connection"
	KindScaleRead       Kind = "scale_read"
	KindScaleBatteryLow Kind = "scale_battery_low"

	KindValveOperation   Kind = "valve_operation"
	KindValveTimeout     Kind = "valve_timeout"
	KindValveNotAcquired Kind = "valve_not_acquired"

	KindTimeSeriesConnection Kind = "timeseries_connection"
	KindTimeSeriesWrite      Kind = "timeseries_write"

	KindBrewConflict     Kind = "brew_conflict"
	KindBrewNotFound     Kind = "brew_not_found"
	KindInvalidBrewState Kind = "invalid_brew_state"
	KindBrewAborted      Kind = "brew_aborted"

	KindStrategyExecution Kind = "strategy_execution"
	KindStrategyCreation  Kind = "strategy_creation"

	KindConfiguration Kind = "configuration"
	KindUnknown       Kind = "unknown"
)

// kindError tags a Transient/PermanentError with its concrete kind so the
// classifier can route without a type per failure mode.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// ScaleNotFound reports a scale that cannot be discovered at all.
func ScaleNotFound(mac string) error {
	return &kindError{kind: KindScaleNotFound, err: &PermanentError{
		Message:  fmt.Sprintf("scale not found at %s", mac),
		Category: CategoryScale,
	}}
}

// ScaleConnection reports a failed connection attempt.
func ScaleConnection(cause error) error {
	return &kindError{kind: KindScaleConnection, err: &TransientError{
		Message:    "failed to connect to scale",
		Category:   CategoryScale,
		RetryAfter: 2 * time.Second,
		MaxRetries: 3,
		Cause:      cause,
	}}
}

// ScaleRead reports a failed weight read on an established connection.
func ScaleRead(cause error) error {
	return &kindError{kind: KindScaleRead, err: &TransientError{
		Message:    "failed to read weight from scale",
		Category:   CategoryScale,
		RetryAfter: time.Second,
		MaxRetries: 3,
		Cause:      cause,
	}}
}

// ScaleBatteryLow warns that the scale may power off mid-brew.
func ScaleBatteryLow(pct int) error {
	return &kindError{kind: KindScaleBatteryLow, err: &PermanentError{
		Message:  fmt.Sprintf("scale battery is low: %d%%", pct),
		Category: CategoryScale,
	}}
}

// ValveOperation reports a failed motor operation.
func ValveOperation(op string, cause error) error {
	return &kindError{kind: KindValveOperation, err: &PermanentError{
		Message:  fmt.Sprintf("valve operation %q failed", op),
		Category: CategoryValve,
		Cause:    cause,
	}}
}

// ValveTimeout reports a motor operation that did not finish in time.
func ValveTimeout(op string, timeout time.Duration) error {
	return &kindError{kind: KindValveTimeout, err: &TransientError{
		Message:    fmt.Sprintf("valve operation %q timed out after %s", op, timeout),
		Category:   CategoryValve,
		RetryAfter: time.Second,
		MaxRetries: 3,
	}}
}

// ValveNotAcquired reports an operation on a valve nobody holds.
func ValveNotAcquired(op string) error {
	return &kindError{kind: KindValveNotAcquired, err: &PermanentError{
		Message:  fmt.Sprintf("cannot perform %q: valve not acquired", op),
		Category: CategoryValve,
	}}
}

// TimeSeriesConnection reports an unreachable sample store.
func TimeSeriesConnection(cause error) error {
	return &kindError{kind: KindTimeSeriesConnection, err: &TransientError{
		Message:    "failed to connect to sample store",
		Category:   CategoryTimeSeries,
		RetryAfter: 5 * time.Second,
		MaxRetries: 3,
		Cause:      cause,
	}}
}

// TimeSeriesWrite reports a failed sample write.
func TimeSeriesWrite(cause error) error {
	return &kindError{kind: KindTimeSeriesWrite, err: &TransientError{
		Message:    "failed to write sample",
		Category:   CategoryTimeSeries,
		RetryAfter: 2 * time.Second,
		MaxRetries: 3,
		Cause:      cause,
	}}
}

// BrewConflict rejects starting a brew while one is in progress.
func BrewConflict(currentID string) error {
	return &kindError{kind: KindBrewConflict, err: &PermanentError{
		Message:  fmt.Sprintf("a brew is already in progress with id %s", currentID),
		Category: CategoryBrew,
	}}
}

// BrewNotFound reports a brew id that does not match anything live.
func BrewNotFound(id string) error {
	return &kindError{kind: KindBrewNotFound, err: &PermanentError{
		Message:  fmt.Sprintf("brew %q not found", id),
		Category: CategoryBrew,
	}}
}

// InvalidBrewState rejects an operation illegal in the current state.
func InvalidBrewState(state, op string) error {
	return &kindError{kind: KindInvalidBrewState, err: &PermanentError{
		Message:  fmt.Sprintf("cannot perform %q while brew is %s", op, state),
		Category: CategoryBrew,
	}}
}

// BrewAborted reports a killed brew.
func BrewAborted(id, reason string) error {
	msg := fmt.Sprintf("brew %q was aborted", id)
	if reason != "" {
		msg += ": " + reason
	}
	return &kindError{kind: KindBrewAborted, err: &PermanentError{
		Message:  msg,
		Category: CategoryBrew,
	}}
}

// StrategyExecution reports a failure inside a strategy step.
func StrategyExecution(strategy string, cause error) error {
	return &kindError{kind: KindStrategyExecution, err: &PermanentError{
		Message:  fmt.Sprintf("strategy %q error: %v", strategy, cause),
		Category: CategoryBrew,
		Cause:    cause,
	}}
}

// StrategyCreation reports an unconstructible strategy (unknown id, bad
// parameters).
func StrategyCreation(strategy, reason string) error {
	return &kindError{kind: KindStrategyCreation, err: &PermanentError{
		Message:  fmt.Sprintf("cannot create strategy %q: %s", strategy, reason),
		Category: CategoryBrew,
	}}
}

// Configuration reports invalid or missing configuration.
func Configuration(parameter, reason string) error {
	return &kindError{kind: KindConfiguration, err: &PermanentError{
		Message:  fmt.Sprintf("invalid configuration for %s: %s", parameter, reason),
		Category: CategoryConfiguration,
	}}
}
