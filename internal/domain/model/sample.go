package model

import "time"

// WeightSample is one timestamped scale reading. Samples are immutable and
// consumed as ascending-time ordered sequences.
type WeightSample struct {
	Timestamp time.Time `json:"timestamp"`
	Grams     float64   `json:"grams"`
}

// ScaleStatus is a point-in-time snapshot of the scale.
type ScaleStatus struct {
	Connected  bool    `json:"connected"`
	Weight     float64 `json:"weight"`
	Units      string  `json:"units"`
	BatteryPct int     `json:"battery_pct"`
}
