package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	WinRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalbot_win_rate_percent",
		Help: "Win rate of closed trades by reporting period",
	}, []string{"period"})

	TotalPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalbot_period_pnl",
		Help: "Realized PnL summed over the reporting period",
	}, []string{"period"})
)
