package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_state_saves_total",
		Help: "State persist attempts by result",
	}, []string{"result"})

	SaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalbot_state_save_duration_seconds",
		Help:    "Time spent persisting the state blob",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)
