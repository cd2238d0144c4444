package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MessagesTotal counts feed messages by source and decode result.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_feed_messages_total",
		Help: "Total feed messages received by source and result",
	}, []string{"source", "result"})
)
