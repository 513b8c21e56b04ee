package model

import "time"

// StartBrewRequest carries per-brew overrides. Nil fields fall back to the
// configured defaults; Params is the strategy-specific parameter bag.
type StartBrewRequest struct {
	Strategy       string         `json:"strategy,omitempty"`
	TargetFlowRate *float64       `json:"target_flow_rate,omitempty"`
	ScaleInterval  *float64       `json:"scale_interval,omitempty"`
	ValveInterval  *float64       `json:"valve_interval,omitempty"`
	Epsilon        *float64       `json:"epsilon,omitempty"`
	TargetWeight   *float64       `json:"target_weight,omitempty"`
	VesselWeight   *float64       `json:"vessel_weight,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// BrewStatus is the wire shape pushed to clients over REST and websocket.
type BrewStatus struct {
	BrewID          string    `json:"brew_id,omitempty"`
	BrewState       BrewState `json:"brew_state"`
	Strategy        string    `json:"strategy,omitempty"`
	TimeStarted     time.Time `json:"time_started,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	CurrentFlowRate *float64  `json:"current_flow_rate,omitempty"`
	CurrentWeight   *float64  `json:"current_weight,omitempty"`
	TargetWeight    float64   `json:"target_weight,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}
