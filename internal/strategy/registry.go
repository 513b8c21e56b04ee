package strategy

import (
	"log/slog"
	"sort"

	"github.com/tomnis/coldbrewer/internal/brewerr"
)

// Type identifies a registered control strategy.
type Type string

const (
	TypeThreshold      Type = "default"
	TypePID            Type = "pid"
	TypeKalmanPID      Type = "kalman_pid"
	TypeAdaptiveGain   Type = "adaptive_gain_scheduling"
	TypeSmithPredictor Type = "smith_predictor_advanced"
	TypeMPC            Type = "mpc"
)

// ParamSpec describes one tunable parameter for API discovery.
type ParamSpec struct {
	Type        string `json:"type"`
	Default     any    `json:"default"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type factory func(p Params, base BaseParams, logger *slog.Logger) Strategy

type registration struct {
	build  factory
	schema map[string]ParamSpec
}

var registry = map[Type]registration{
	TypeThreshold: {
		build: func(_ Params, base BaseParams, _ *slog.Logger) Strategy {
			return NewThreshold(base)
		},
		schema: map[string]ParamSpec{},
	},
	TypePID: {
		build: func(p Params, base BaseParams, l *slog.Logger) Strategy {
			return NewPID(p, base, l)
		},
		schema: pidSchema(),
	},
	TypeKalmanPID: {
		build: func(p Params, base BaseParams, l *slog.Logger) Strategy {
			return NewKalmanPID(p, base, l)
		},
		schema: merge(pidSchema(), map[string]ParamSpec{
			"process_noise": {Type: "number", Default: DefaultKalmanProcessNoise, Label: "Kalman Process Noise",
				Description: "How much the flow naturally varies; higher reacts faster"},
			"measurement_noise": {Type: "number", Default: DefaultKalmanMeasurementNoise, Label: "Kalman Measurement Noise",
				Description: "How noisy the scale is; higher smooths harder"},
		}),
	},
	TypeAdaptiveGain: {
		build: func(p Params, base BaseParams, l *slog.Logger) Strategy {
			return NewAdaptiveGain(p, base, l)
		},
		schema: adaptiveSchema(),
	},
	TypeSmithPredictor: {
		build: func(p Params, base BaseParams, l *slog.Logger) Strategy {
			return NewSmithPredictor(p, base, l)
		},
		schema: merge(pidSchema(), map[string]ParamSpec{
			"dead_time": {Type: "number", Default: defaultDeadTime, Label: "Dead Time (s)",
				Description: "Transport delay between a valve step and its effect on flow"},
			"plant_gain": {Type: "number", Default: defaultPlantGain, Label: "Plant Gain",
				Description: "Steady-state flow change per valve unit"},
			"plant_time_constant": {Type: "number", Default: defaultPlantTimeConstant, Label: "Plant Time Constant (s)"},
			"q": {Type: "number", Default: DefaultKalmanProcessNoise, Label: "Kalman Process Noise"},
			"r": {Type: "number", Default: DefaultKalmanMeasurementNoise, Label: "Kalman Measurement Noise"},
		}),
	},
	TypeMPC: {
		build: func(p Params, base BaseParams, l *slog.Logger) Strategy {
			return NewMPC(p, base, l)
		},
		schema: map[string]ParamSpec{
			"horizon":             {Type: "number", Default: defaultMPCHorizon, Label: "Prediction Horizon (ticks)"},
			"plant_gain":          {Type: "number", Default: defaultPlantGain, Label: "Plant Gain"},
			"plant_time_constant": {Type: "number", Default: defaultPlantTimeConstant, Label: "Plant Time Constant (s)"},
			"q_error":             {Type: "number", Default: defaultMPCQError, Label: "Tracking Error Weight"},
			"q_control":           {Type: "number", Default: defaultMPCQControl, Label: "Control Effort Weight"},
			"q_delta":             {Type: "number", Default: defaultMPCQDelta, Label: "Control Change Weight"},
		},
	},
}

func pidSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"kp": {Type: "number", Default: defaultKp, Label: "Proportional Gain (Kp)"},
		"ki": {Type: "number", Default: defaultKi, Label: "Integral Gain (Ki)"},
		"kd": {Type: "number", Default: defaultKd, Label: "Derivative Gain (Kd)"},
	}
}

func adaptiveSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"kp_low":  {Type: "number", Default: 0.5, Label: "Kp (Low Region)"},
		"ki_low":  {Type: "number", Default: 0.05, Label: "Ki (Low Region)"},
		"kd_low":  {Type: "number", Default: 0.02, Label: "Kd (Low Region)"},
		"kp_med":  {Type: "number", Default: 1.5, Label: "Kp (Medium Region)"},
		"ki_med":  {Type: "number", Default: 0.15, Label: "Ki (Medium Region)"},
		"kd_med":  {Type: "number", Default: 0.08, Label: "Kd (Medium Region)"},
		"kp_high": {Type: "number", Default: 2.5, Label: "Kp (High Region)"},
		"ki_high": {Type: "number", Default: 0.25, Label: "Ki (High Region)"},
		"kd_high": {Type: "number", Default: 0.1, Label: "Kd (High Region)"},
		"flow_rate_low_threshold": {Type: "number", Default: defaultLowThreshold, Label: "Low to Medium Threshold (g/s)"},
		"flow_rate_high_threshold": {Type: "number", Default: defaultHighThreshold, Label: "Medium to High Threshold (g/s)"},
		"adaptation_enabled": {Type: "boolean", Default: true, Label: "Enable Real-time Adaptation"},
		"adaptation_rate":    {Type: "number", Default: defaultAdaptationRate, Label: "Adaptation Rate"},
	}
}

func merge(dst, src map[string]ParamSpec) map[string]ParamSpec {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// New constructs the strategy registered under typ. An empty type falls
// back to the threshold default. Unknown types fail with a permanent
// strategy-creation error.
func New(typ Type, p Params, base BaseParams, logger *slog.Logger) (Strategy, error) {
	if typ == "" {
		typ = TypeThreshold
	}
	reg, ok := registry[typ]
	if !ok {
		return nil, brewerr.StrategyCreation(string(typ), "unknown strategy type")
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return reg.build(p, base, logger), nil
}

// Types lists the registered strategy identifiers, sorted.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Schemas returns the tunable-parameter descriptions per strategy, for the
// API's discovery endpoint.
func Schemas() map[Type]map[string]ParamSpec {
	out := make(map[Type]map[string]ParamSpec, len(registry))
	for t, reg := range registry {
		schema := make(map[string]ParamSpec, len(reg.schema))
		for k, v := range reg.schema {
			schema[k] = v
		}
		out[t] = schema
	}
	return out
}
