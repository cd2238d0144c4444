package instruments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalbot_instrument_fetch_duration_seconds",
		Help:    "Time to fetch instrument rules from the exchange",
		Buckets: prometheus.DefBuckets,
	})

	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_instrument_fetch_errors_total",
		Help: "Instrument rules fetch failures",
	})
)
