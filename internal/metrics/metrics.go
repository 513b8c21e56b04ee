package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Brew loop and device instrumentation, partitioned by strategy where the
// behavior differs per control law.

var (
	// Sample collector
	CollectorSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "collector",
		Name:      "samples_total",
		Help:      "Total weight samples written to the time-series store",
	})

	CollectorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "collector",
		Name:      "errors_total",
		Help:      "Total sample collection failures (read or store write)",
	})

	CollectorScaleReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "collector",
		Name:      "scale_reconnects_total",
		Help:      "Total scale reconnect attempts",
	})

	ScaleWeightGrams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "scale",
		Name:      "weight_grams",
		Help:      "Last weight reading from the scale",
	})

	ScaleBatteryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "scale",
		Name:      "battery_percent",
		Help:      "Last battery reading from the scale",
	})

	// Control loop
	ControlTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "control",
		Name:      "ticks_total",
		Help:      "Total control ticks executed",
	}, []string{"strategy"})

	ControlErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "control",
		Name:      "errors_total",
		Help:      "Total control tick failures",
	}, []string{"strategy"})

	ControlTickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coldbrewer",
		Subsystem: "control",
		Name:      "tick_duration_seconds",
		Help:      "Control tick processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"strategy"})

	ValveCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "valve",
		Name:      "commands_total",
		Help:      "Total valve commands issued",
	}, []string{"strategy", "command"})

	FlowRateGPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "control",
		Name:      "flow_rate_gps",
		Help:      "Last estimated flow rate in grams per second",
	})

	// Brew lifecycle
	BrewState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "brew",
		Name:      "state",
		Help:      "Current brew state (0=idle, 1=brewing, 2=paused, 3=completed, 4=error)",
	})

	BrewsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "brew",
		Name:      "started_total",
		Help:      "Total brews started",
	}, []string{"strategy"})

	BrewsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "brew",
		Name:      "completed_total",
		Help:      "Total brews that reached target weight",
	}, []string{"strategy"})

	BrewFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "brew",
		Name:      "faults_total",
		Help:      "Total faults that pushed a brew into the error state",
	}, []string{"category"})

	BrewRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "brew",
		Name:      "recoveries_total",
		Help:      "Total automatic error-to-brewing recoveries",
	})

	// Scale link breaker
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "scale",
		Name:      "breaker_state",
		Help:      "Scale link circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests served",
	}, []string{"route", "method", "status"})

	HTTPRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total requests rejected by the per-IP rate limiter",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coldbrewer",
		Subsystem: "http",
		Name:      "websocket_clients",
		Help:      "Currently connected status-stream websocket clients",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coldbrewer",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
