package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// Enabled indicates whether new entries are allowed.
	Enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_circuit_breaker_enabled",
		Help: "Whether the circuit breaker allows new entries (1=enabled, 0=disabled)",
	})

	// LastEquity tracks the last checked account equity.
	LastEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_circuit_breaker_equity",
		Help: "Last checked account equity in the quote currency",
	})

	// DisableThreshold tracks the equity below which entries are blocked.
	DisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_circuit_breaker_disable_threshold",
		Help: "Equity threshold for blocking new entries",
	})

	// EnableThreshold tracks the equity required to allow entries again.
	EnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_circuit_breaker_enable_threshold",
		Help: "Equity threshold for re-allowing entries (with hysteresis)",
	})

	// AvgMargin tracks the rolling average entry margin.
	AvgMargin = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_circuit_breaker_avg_margin",
		Help: "Rolling average margin of recent entries",
	})

	// StateChanges counts enable/disable transitions.
	StateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	})

	// CheckDuration tracks equity check latency.
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalbot_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to check account equity",
		Buckets: prometheus.DefBuckets,
	})
)
