package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
}

// StoreTrade pretty-prints a closed trade to console.
func (c *ConsoleStorage) StoreTrade(_ context.Context, rec *types.TradeExport) error {
	pnl := "n/a"
	verdict := "⚪ UNKNOWN"
	if rec.RealizedPnL != nil {
		pnl = fmt.Sprintf("$%.2f", *rec.RealizedPnL)
		if rec.IsWin {
			verdict = "✅ WIN"
		} else {
			verdict = "❌ LOSS"
		}
	}

	fmt.Fprintln(c.out, "\n"+rule)
	fmt.Fprintf(c.out, "📒 TRADE CLOSED  %s\n", verdict)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "Export:   %s\n", rec.ExportID)
	fmt.Fprintf(c.out, "Trade:    %s\n", rec.ID)
	fmt.Fprintf(c.out, "Symbol:   %s (%s)\n", rec.Symbol, rec.Side)
	fmt.Fprintf(c.out, "Opened:   %s\n", rec.FilledAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(c.out, "Closed:   %s\n", rec.ClosedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "  Trigger:       %g\n", rec.Trigger)
	fmt.Fprintf(c.out, "  Entry:         %g\n", rec.EntryPrice)
	fmt.Fprintf(c.out, "  Margin used:   $%.2f\n", rec.MarginUsed)
	fmt.Fprintf(c.out, "  Realized PnL:  %s\n", pnl)
	fmt.Fprintf(c.out, "  Exit:          %s\n", rec.ExitReason)
	fmt.Fprintf(c.out, "  TPs hit:       %d/%d\n", rec.TPFills, rec.TPCount)
	fmt.Fprintf(c.out, "  Trailing:      %t\n", rec.TrailingUsed)
	fmt.Fprintf(c.out, "  Equity:        $%.2f\n", rec.EquityAtClose)
	fmt.Fprintln(c.out, rule)

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
