package stoploss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var StopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signalbot_stoploss_computed_total",
	Help: "Stops computed by source (structure, clamp-min, clamp-max, fallback)",
}, []string{"source"})
