package exchange

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Backend is the full exchange surface used by the bot.
type Backend interface {
	PlaceOrder(ctx context.Context, req *types.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	OpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	Position(ctx context.Context, symbol string) (*types.Position, error)
	Positions(ctx context.Context) ([]types.Position, error)
	Equity(ctx context.Context) (float64, error)
	InstrumentInfo(ctx context.Context, symbol string) (*types.InstrumentInfo, error)
	Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, isolated bool, leverage int) error
	SetTradingStop(ctx context.Context, stop *types.TradingStop) error
	ClosedPnL(ctx context.Context, symbol string, since time.Time, limit int) ([]types.ClosedPnL, error)
}

// DryRun passes reads through to a real backend and logs writes instead of
// sending them.
type DryRun struct {
	Backend
	seq    atomic.Int64
	logger *zap.Logger
}

// NewDryRun wraps backend.
func NewDryRun(backend Backend, logger *zap.Logger) *DryRun {
	logger.Warn("dry-run-mode-enabled")
	return &DryRun{Backend: backend, logger: logger}
}

func (d *DryRun) PlaceOrder(_ context.Context, req *types.OrderRequest) (string, error) {
	DryRunCallsTotal.WithLabelValues("PlaceOrder").Inc()
	id := fmt.Sprintf("dry-%d", d.seq.Add(1))
	d.logger.Info("dry-run-place-order",
		zap.String("order-id", id),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("qty", req.Qty),
		zap.Float64("price", req.Price),
		zap.Bool("reduce-only", req.ReduceOnly),
		zap.String("client-order-id", req.ClientOrderID))
	return id, nil
}

func (d *DryRun) CancelOrder(_ context.Context, symbol, orderID string) error {
	DryRunCallsTotal.WithLabelValues("CancelOrder").Inc()
	d.logger.Info("dry-run-cancel-order", zap.String("symbol", symbol), zap.String("order-id", orderID))
	return nil
}

func (d *DryRun) SetLeverage(_ context.Context, symbol string, leverage int) error {
	DryRunCallsTotal.WithLabelValues("SetLeverage").Inc()
	d.logger.Debug("dry-run-set-leverage", zap.String("symbol", symbol), zap.Int("leverage", leverage))
	return nil
}

func (d *DryRun) SetMarginMode(_ context.Context, symbol string, isolated bool, _ int) error {
	DryRunCallsTotal.WithLabelValues("SetMarginMode").Inc()
	d.logger.Debug("dry-run-set-margin-mode", zap.String("symbol", symbol), zap.Bool("isolated", isolated))
	return nil
}

func (d *DryRun) SetTradingStop(_ context.Context, stop *types.TradingStop) error {
	DryRunCallsTotal.WithLabelValues("SetTradingStop").Inc()
	d.logger.Info("dry-run-set-trading-stop",
		zap.String("symbol", stop.Symbol),
		zap.Float64("stop-loss", stop.StopLoss),
		zap.Float64("trailing", stop.TrailingStop),
		zap.Float64("active-price", stop.ActivePrice))
	return nil
}
