package brewerr

import (
	"errors"
	"fmt"
)

// Classification is the structured description handed to clients and to the
// orchestrator's degraded-state bookkeeping.
type Classification struct {
	Kind       Kind     `json:"kind"`
	Message    string   `json:"error"`
	Detailed   string   `json:"error_detailed,omitempty"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Retryable  bool     `json:"retryable"`
	Suggestion string   `json:"recovery_suggestion,omitempty"`
	// GoType preserves the concrete error type of unknown errors for
	// diagnostics.
	GoType string `json:"exception_type,omitempty"`
}

// suggestions is keyed by Kind; unknown kinds fall through to the generic
// response.
var suggestions = map[Kind]string{
	KindScaleNotFound:        "Check the scale MAC address in configuration and ensure the scale is powered on and in range.",
	KindScaleConnection:      "Check that the scale is powered on and in range. Try power cycling the scale.",
	KindScaleRead:            "Ensure the scale is stable and nothing is touching it.",
	KindScaleBatteryLow:      "Replace the scale battery soon to avoid interruption.",
	KindValveOperation:       "Check that the motor kit is connected and functioning.",
	KindValveTimeout:         "Check that the valve is not stuck or obstructed.",
	KindValveNotAcquired:     "Acquire the valve before performing operations.",
	KindTimeSeriesConnection: "Check that the sample store is running and accessible.",
	KindTimeSeriesWrite:      "Data collection will continue. This may resolve on its own.",
	KindBrewConflict:         "Stop the current brew before starting a new one.",
	KindInvalidBrewState:     "Wait for the brew to reach a valid state first.",
	KindBrewAborted:          "You can start a new brew.",
	KindStrategyExecution:    "Check strategy parameters and try again.",
	KindStrategyCreation:     "Check the strategy identifier and its parameters.",
	KindConfiguration:        "Check the named configuration parameter.",
}

var severities = map[Kind]Severity{
	KindScaleBatteryLow:  SeverityWarning,
	KindValveNotAcquired: SeverityWarning,
	KindBrewConflict:     SeverityWarning,
	KindInvalidBrewState: SeverityWarning,
	KindBrewAborted:      SeverityInfo,
}

// Classify maps any error to its Classification. Typed brewerr errors route
// on their kind; untyped errors degrade to a generic non-retryable response
// preserving the Go type name.
func Classify(err error) Classification {
	var tagged *kindError
	if errors.As(err, &tagged) {
		c := Classification{
			Kind:       tagged.kind,
			Detailed:   err.Error(),
			Suggestion: suggestions[tagged.kind],
			Severity:   SeverityError,
		}
		if sev, ok := severities[tagged.kind]; ok {
			c.Severity = sev
		}
		var transient *TransientError
		var permanent *PermanentError
		switch {
		case errors.As(err, &transient):
			c.Message = transient.Message
			c.Category = transient.Category
			c.Retryable = true
		case errors.As(err, &permanent):
			c.Message = permanent.Message
			c.Category = permanent.Category
			c.Retryable = false
		}
		return c
	}

	// Bare Transient/PermanentError without a kind tag.
	var transient *TransientError
	if errors.As(err, &transient) {
		return Classification{
			Kind:       KindUnknown,
			Message:    transient.Message,
			Detailed:   err.Error(),
			Category:   transient.Category,
			Severity:   SeverityError,
			Retryable:  true,
			Suggestion: "This error may resolve on its own. The system will retry automatically.",
		}
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return Classification{
			Kind:     KindUnknown,
			Message:  permanent.Message,
			Detailed: err.Error(),
			Category: permanent.Category,
			Severity: SeverityError,
		}
	}

	return Classification{
		Kind:       KindUnknown,
		Message:    "an unexpected error occurred",
		Detailed:   err.Error(),
		Category:   CategoryBrew,
		Severity:   SeverityError,
		Retryable:  false,
		Suggestion: "Please check the logs for more details or restart the application.",
		GoType:     fmt.Sprintf("%T", err),
	}
}

// IsRetryable reports whether err should be retried. Unknown errors are
// treated as non-retryable.
func IsRetryable(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsPermanent reports whether err is explicitly permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
