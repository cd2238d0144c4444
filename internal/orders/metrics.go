package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_entries_total",
		Help: "Entry attempts by result (placed, failed, skipped_too_far, skipped_zero_qty)",
	}, []string{"result"})

	PostEntryOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_post_entry_orders_total",
		Help: "Protective order submissions by leg (sl, tp) and result",
	}, []string{"leg", "result"})

	StopMoveAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_sl_move_attempts_total",
		Help: "Individual stop-loss move attempts including retries",
	})

	StopMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_sl_moves_total",
		Help: "Stop-loss moves by final result",
	}, []string{"result"})

	TrailingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_trailing_updates_total",
		Help: "Trailing stop activations by result",
	}, []string{"result"})
)
