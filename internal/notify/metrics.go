package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signalbot_notifications_total",
	Help: "Outbound notifications by channel and result",
}, []string{"channel", "result"})
