package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveConnections tracks whether each named connection is up.
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalbot_ws_active_connections",
		Help: "Whether the WebSocket connection is up (1) or down (0)",
	}, []string{"ws"})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	}, []string{"ws"})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_ws_reconnect_failures_total",
		Help: "Total number of WebSocket reconnection failures",
	}, []string{"ws"})

	// MessagesReceivedTotal tracks frames received.
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_ws_messages_received_total",
		Help: "Total number of WebSocket frames received",
	}, []string{"ws"})

	// MessagesDroppedTotal tracks frames dropped due to a full channel.
	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_ws_messages_dropped_total",
		Help: "Total number of WebSocket frames dropped",
	}, []string{"ws", "reason"})

	// ConnectionDuration tracks WebSocket connection lifetime.
	ConnectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalbot_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	}, []string{"ws"})
)
