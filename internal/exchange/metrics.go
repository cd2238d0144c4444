package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_exchange_requests_total",
		Help: "Exchange REST requests by endpoint and result",
	}, []string{"endpoint", "result"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalbot_exchange_request_duration_seconds",
		Help:    "Exchange REST request latency",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"endpoint"})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_executions_received_total",
		Help: "Execution events received on the private stream",
	}, []string{"exec_type"})

	DryRunCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_dry_run_calls_total",
		Help: "Exchange writes suppressed in dry-run mode",
	}, []string{"method"})
)
