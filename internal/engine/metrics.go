package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SignalsTotal counts feed messages offered to admission.
	SignalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_signals_total",
		Help: "Total feed messages offered to signal admission",
	})

	// SignalsSkippedTotal counts messages that did not become trades, by reason.
	SignalsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_signals_skipped_total",
		Help: "Total messages not traded by reason",
	}, []string{"reason"})

	// TradesPlacedTotal counts accepted signals with a submitted entry.
	TradesPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_trades_placed_total",
		Help: "Total entries placed",
	})

	// TradesOpenedTotal counts entry fills.
	TradesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_trades_opened_total",
		Help: "Total entries filled",
	})

	// TradesExpiredTotal counts entries cancelled unfilled.
	TradesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_trades_expired_total",
		Help: "Total entries expired unfilled",
	})

	// TradesClosedTotal counts closed trades by exit reason.
	TradesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_trades_closed_total",
		Help: "Total trades closed by exit reason",
	}, []string{"exit_reason"})

	// TakeProfitFillsTotal counts recorded TP fills.
	TakeProfitFillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_tp_fills_total",
		Help: "Total take-profit fills recorded",
	})

	// BreakevenTotal counts stop moves to breakeven by source (push, fallback).
	BreakevenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_breakeven_moves_total",
		Help: "Total stop-loss moves to breakeven by source",
	}, []string{"source"})

	// RealizedPnL accumulates realized PnL of closed trades.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_realized_pnl",
		Help: "Sum of realized PnL of trades closed since start",
	})

	// AlertsTotal counts position alerts fired.
	AlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalbot_position_alerts_total",
		Help: "Total position ROE alerts fired",
	})

	// ActiveTrades tracks pending plus open trades.
	ActiveTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_active_trades",
		Help: "Number of pending or open trades",
	})

	// OrphanPositions tracks untracked exchange positions found at startup.
	OrphanPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalbot_orphan_positions",
		Help: "Exchange positions without a tracked trade at startup",
	})

	// SweepDuration tracks maintenance sweep latency.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalbot_sweep_duration_seconds",
		Help:    "Maintenance sweep duration",
		Buckets: prometheus.DefBuckets,
	})

	// SweepErrorsTotal counts failed or panicking sweep steps.
	SweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_sweep_errors_total",
		Help: "Total maintenance sweep step failures by step",
	}, []string{"step"})

	// HandlerPanicsTotal counts recovered panics in push handlers.
	HandlerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalbot_handler_panics_total",
		Help: "Total recovered panics in signal and execution handlers by path",
	}, []string{"path"})
)
