// Package stats aggregates archived trades into performance summaries.
package stats

import (
	"math"
	"strconv"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Exit reasons recorded on closed trades.
const (
	ExitTrailingStop = "trailing_stop"
	ExitAllTargets   = "all_tps_hit"
	ExitBreakeven    = "breakeven"
	ExitStopLoss     = "stop_loss"
	ExitUnknown      = "unknown"
)

// Summary is the performance of the trades closed within a period.
type Summary struct {
	PeriodDays    int     `json:"period_days"` // 0 means all time
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
	AvgTPFills    float64 `json:"avg_tp_fills"`
	TrailingExits int     `json:"trailing_exits"`
	SLExits       int     `json:"sl_exits"`
	BEExits       int     `json:"be_exits"`
}

// Label names the period for reports.
func (s Summary) Label() string {
	switch s.PeriodDays {
	case 0:
		return "all-time"
	case 1:
		return "1d"
	default:
		return strconv.Itoa(s.PeriodDays) + "d"
	}
}

// Compute summarizes history. days <= 0 covers all trades; otherwise only
// trades whose close time is within the last days*24h of now count.
func Compute(history []types.ArchivedTrade, days int, now time.Time) Summary {
	s := Summary{PeriodDays: max(days, 0)}

	var cutoff time.Time
	if days > 0 {
		cutoff = now.Add(-time.Duration(days) * 24 * time.Hour)
	}

	var total, fills float64
	first := true
	for _, t := range history {
		if days > 0 && (t.ClosedAt.IsZero() || t.ClosedAt.Before(cutoff)) {
			continue
		}

		pnl := t.PnL()
		s.TotalTrades++
		if t.IsWin {
			s.Wins++
		}
		total += pnl
		fills += float64(t.TPFills)
		if first || pnl > s.BestTrade {
			s.BestTrade = pnl
		}
		if first || pnl < s.WorstTrade {
			s.WorstTrade = pnl
		}
		first = false

		switch t.ExitReason {
		case ExitTrailingStop:
			s.TrailingExits++
		case ExitStopLoss:
			s.SLExits++
		case ExitBreakeven:
			s.BEExits++
		}
	}

	if s.TotalTrades == 0 {
		return s
	}

	n := float64(s.TotalTrades)
	s.Losses = s.TotalTrades - s.Wins
	s.WinRate = round(float64(s.Wins)/n*100, 1)
	s.TotalPnL = round(total, 2)
	s.AvgPnL = round(total/n, 2)
	s.BestTrade = round(s.BestTrade, 2)
	s.WorstTrade = round(s.WorstTrade, 2)
	s.AvgTPFills = round(fills/n, 1)

	return s
}

// Report is the standard 7 day, 30 day and all-time breakdown.
type Report struct {
	Week    Summary `json:"7d"`
	Month   Summary `json:"30d"`
	AllTime Summary `json:"all"`
}

// BuildReport computes the standard periods.
func BuildReport(history []types.ArchivedTrade, now time.Time) Report {
	return Report{
		Week:    Compute(history, 7, now),
		Month:   Compute(history, 30, now),
		AllTime: Compute(history, 0, now),
	}
}

// Periods returns the summaries in report order.
func (r Report) Periods() []Summary {
	return []Summary{r.Week, r.Month, r.AllTime}
}

// LogReport writes the report and updates the performance gauges.
func LogReport(logger *zap.Logger, r Report) {
	for _, s := range r.Periods() {
		label := s.Label()
		WinRate.WithLabelValues(label).Set(s.WinRate)
		TotalPnL.WithLabelValues(label).Set(s.TotalPnL)

		if s.TotalTrades == 0 {
			logger.Info("performance-report", zap.String("period", label), zap.Int("trades", 0))
			continue
		}

		logger.Info("performance-report",
			zap.String("period", label),
			zap.Int("trades", s.TotalTrades),
			zap.Int("wins", s.Wins),
			zap.Int("losses", s.Losses),
			zap.Float64("win-rate", s.WinRate),
			zap.Float64("total-pnl", s.TotalPnL),
			zap.Float64("avg-pnl", s.AvgPnL),
			zap.Float64("best", s.BestTrade),
			zap.Float64("worst", s.WorstTrade),
			zap.Float64("avg-tp-fills", s.AvgTPFills),
			zap.Int("trailing-exits", s.TrailingExits),
			zap.Int("sl-exits", s.SLExits),
			zap.Int("be-exits", s.BEExits))
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
