package engine

import (
	"context"
	"fmt"

	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// SyncReport is the result of comparing exchange positions with tracked trades.
type SyncReport struct {
	Positions []types.Position
	Orphans   []types.Position
}

// FindOrphans returns the positions whose symbol has no pending or open trade.
func FindOrphans(positions []types.Position, trades map[string]*types.Trade) []types.Position {
	tracked := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t.Active() {
			tracked[t.Symbol] = struct{}{}
		}
	}

	var orphans []types.Position
	for _, p := range positions {
		if p.Size <= 0 {
			continue
		}
		if _, ok := tracked[p.Symbol]; !ok {
			orphans = append(orphans, p)
		}
	}
	return orphans
}

// StartupSync logs exchange positions that no tracked trade owns. Orphans
// are reported only; they are never adopted or closed.
func (e *Engine) StartupSync(ctx context.Context) (SyncReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions, err := e.exchange.Positions(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("positions: %w", err)
	}

	report := SyncReport{
		Positions: positions,
		Orphans:   FindOrphans(positions, e.blob.OpenTrades),
	}
	OrphanPositions.Set(float64(len(report.Orphans)))

	for _, p := range report.Orphans {
		e.logger.Warn("orphan-position",
			zap.String("symbol", p.Symbol),
			zap.String("side", p.Side),
			zap.Float64("size", p.Size),
			zap.Float64("avg-price", p.AvgPrice),
			zap.Float64("unrealised-pnl", p.UnrealisedPnL))
	}
	if len(report.Orphans) == 0 {
		e.logger.Info("startup-sync-clean", zap.Int("positions", len(positions)))
	}

	if len(e.blob.TradeHistory) > 0 {
		stats.LogReport(e.logger, stats.BuildReport(e.blob.TradeHistory, e.now()))
	}

	return report, nil
}
