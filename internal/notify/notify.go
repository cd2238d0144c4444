// Package notify delivers trade lifecycle messages to operators.
package notify

import (
	"context"
	"errors"

	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Opened describes a filled entry.
type Opened struct {
	TradeID string
	Symbol  string
	Side    types.Side
	Entry   float64
	Qty     float64
}

// Closed describes a trade whose position went flat.
type Closed struct {
	TradeID    string
	Symbol     string
	Side       types.Side
	PnL        *float64
	ExitReason string
	TPFills    int
}

// Alert describes a position crossing an ROE threshold.
type Alert struct {
	TradeID   string
	Symbol    string
	Side      types.Side
	Entry     float64
	Current   float64
	ROE       float64
	Threshold float64
}

// Notifier receives trade lifecycle messages. Implementations must not block
// for long; the engine calls them while holding its lock.
type Notifier interface {
	TradeOpened(ctx context.Context, ev Opened) error
	TradeClosed(ctx context.Context, ev Closed) error
	PositionAlert(ctx context.Context, ev Alert) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) TradeOpened(_ context.Context, ev Opened) error {
	l.logger.Info("notify-trade-opened",
		zap.String("trade-id", ev.TradeID),
		zap.String("symbol", ev.Symbol),
		zap.String("side", string(ev.Side)),
		zap.Float64("entry", ev.Entry),
		zap.Float64("qty", ev.Qty))
	return nil
}

func (l *LogNotifier) TradeClosed(_ context.Context, ev Closed) error {
	fields := []zap.Field{
		zap.String("trade-id", ev.TradeID),
		zap.String("symbol", ev.Symbol),
		zap.String("side", string(ev.Side)),
		zap.String("exit-reason", ev.ExitReason),
		zap.Int("tp-fills", ev.TPFills),
	}
	if ev.PnL != nil {
		fields = append(fields, zap.Float64("pnl", *ev.PnL))
	}
	l.logger.Info("notify-trade-closed", fields...)
	return nil
}

func (l *LogNotifier) PositionAlert(_ context.Context, ev Alert) error {
	l.logger.Warn("notify-position-alert",
		zap.String("trade-id", ev.TradeID),
		zap.String("symbol", ev.Symbol),
		zap.Float64("roe", ev.ROE),
		zap.Float64("threshold", ev.Threshold),
		zap.Float64("current", ev.Current))
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) TradeOpened(ctx context.Context, ev Opened) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TradeOpened(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m Multi) TradeClosed(ctx context.Context, ev Closed) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TradeClosed(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m Multi) PositionAlert(ctx context.Context, ev Alert) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.PositionAlert(ctx, ev))
	}
	return errors.Join(errs...)
}
