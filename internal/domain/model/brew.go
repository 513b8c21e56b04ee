package model

import "time"

// BrewState is the lifecycle state of the single process-wide brew.
type BrewState string

const (
	StateIdle      BrewState = "idle"
	StateBrewing   BrewState = "brewing"
	StatePaused    BrewState = "paused"
	StateCompleted BrewState = "completed"
	StateError     BrewState = "error"
)

func (s BrewState) String() string { return string(s) }

// Active reports whether the state belongs to a live brew with tasks bound
// to it. Completed is terminal but the brew record still exists; idle means
// no brew exists at all.
func (s BrewState) Active() bool {
	switch s {
	case StateBrewing, StatePaused, StateError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether next is a legal successor of s. Kill is the
// one transition not covered here: any state may be torn down to idle.
func (s BrewState) CanTransition(next BrewState) bool {
	switch s {
	case StateIdle:
		return next == StateBrewing
	case StateBrewing:
		return next == StatePaused || next == StateError || next == StateCompleted
	case StatePaused:
		return next == StateBrewing
	case StateError:
		// Self-healing: the next successful task iteration returns to brewing.
		return next == StateBrewing || next == StateCompleted
	case StateCompleted:
		return false
	default:
		return false
	}
}

// Brew is the single in-flight brew. Owned by the orchestrator; all access
// is serialized behind its lock.
type Brew struct {
	ID           string
	State        BrewState
	Strategy     string
	TargetWeight float64
	VesselWeight float64
	// CoffeeTarget is TargetWeight minus VesselWeight, resolved once at start.
	CoffeeTarget  float64
	TimeStarted   time.Time
	TimeCompleted time.Time
	ErrorMessage  string
}
