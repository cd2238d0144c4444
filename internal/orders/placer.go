// Package orders builds and submits entry, stop-loss, take-profit and
// trailing-stop requests.
package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/mselser95/signal-bot/internal/instruments"
	"github.com/mselser95/signal-bot/internal/sizing"
	"github.com/mselser95/signal-bot/internal/stoploss"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Entry skip reasons.
const (
	SkipTooFar  = "too-far"
	SkipZeroQty = "zero-qty"
)

// Exchange is the subset of exchange operations the placer needs.
type Exchange interface {
	PlaceOrder(ctx context.Context, req *types.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	OpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, isolated bool, leverage int) error
	SetTradingStop(ctx context.Context, stop *types.TradingStop) error
}

// RulesSource returns rounding rules for a symbol.
type RulesSource interface {
	Get(ctx context.Context, symbol string) (instruments.Rules, error)
}

// StopSource picks the protective stop for a new position.
type StopSource interface {
	Stop(ctx context.Context, symbol string, side types.Side, entry float64) stoploss.Result
}

// QuantitySource sizes new entries.
type QuantitySource interface {
	Quantity(ctx context.Context, symbol string, price float64) (sizing.Result, error)
}

// Placer submits orders for the trade lifecycle.
type Placer struct {
	exchange       Exchange
	rules          RulesSource
	stops          StopSource
	sizer          QuantitySource
	leverage       int
	isolated       bool
	limitOffsetPct float64
	tooFarPct      float64
	splits         []float64
	trailPct       float64
	workers        int
	retry          RetryPolicy
	logger         *zap.Logger
}

// Config holds placer configuration.
type Config struct {
	Exchange       Exchange
	Rules          RulesSource
	Stops          StopSource
	Sizer          QuantitySource
	Leverage       int
	MarginMode     string // ISOLATED or CROSS
	LimitOffsetPct float64
	TooFarPct      float64
	TPSplits       []float64
	TrailPct       float64
	Workers        int
	Retry          RetryPolicy
	Logger         *zap.Logger
}

// New creates a new Placer.
func New(cfg *Config) *Placer {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Placer{
		exchange:       cfg.Exchange,
		rules:          cfg.Rules,
		stops:          cfg.Stops,
		sizer:          cfg.Sizer,
		leverage:       cfg.Leverage,
		isolated:       strings.EqualFold(cfg.MarginMode, "ISOLATED"),
		limitOffsetPct: cfg.LimitOffsetPct,
		tooFarPct:      cfg.TooFarPct,
		splits:         cfg.TPSplits,
		trailPct:       cfg.TrailPct,
		workers:        workers,
		retry:          cfg.Retry,
		logger:         cfg.Logger,
	}
}

// EntryResult describes an entry attempt. SkipReason is set when the signal
// was deliberately not traded.
type EntryResult struct {
	OrderID    string
	Price      float64
	Qty        float64
	Margin     float64
	SkipReason string
}

// Placed reports whether an entry order was submitted.
func (r EntryResult) Placed() bool {
	return r.OrderID != ""
}

// TooFar reports whether last has already run past trigger far enough that
// a sell (below) or buy (above) entry is no longer worth chasing.
func TooFar(side types.Side, last, trigger, pct float64) bool {
	if side == types.SideSell {
		return last <= trigger*(1-pct/100)
	}
	return last >= trigger*(1+pct/100)
}

// EntryPrice offsets trigger in the fill-favorable direction.
func EntryPrice(side types.Side, trigger, offsetPct float64) float64 {
	if side == types.SideBuy {
		return trigger * (1 - offsetPct/100)
	}
	return trigger * (1 + offsetPct/100)
}

// PlaceEntry submits the GTC limit entry for sig with tradeID as client id.
func (p *Placer) PlaceEntry(ctx context.Context, sig *types.Signal, tradeID string) (EntryResult, error) {
	side := sig.OrderSide()

	p.configureSymbol(ctx, sig.Symbol)

	last, err := p.exchange.LastPrice(ctx, sig.Symbol)
	if err != nil {
		return EntryResult{}, fmt.Errorf("last price %s: %w", sig.Symbol, err)
	}

	if TooFar(side, last, sig.Trigger, p.tooFarPct) {
		p.logger.Info("entry-skipped-too-far",
			zap.String("symbol", sig.Symbol),
			zap.String("side", string(side)),
			zap.Float64("last", last),
			zap.Float64("trigger", sig.Trigger))
		EntriesTotal.WithLabelValues("skipped_too_far").Inc()
		return EntryResult{SkipReason: SkipTooFar}, nil
	}

	rules, err := p.rules.Get(ctx, sig.Symbol)
	if err != nil {
		return EntryResult{}, err
	}

	price := rules.RoundPrice(EntryPrice(side, sig.Trigger, p.limitOffsetPct))

	size, err := p.sizer.Quantity(ctx, sig.Symbol, sig.Trigger)
	if err != nil {
		return EntryResult{}, fmt.Errorf("size %s: %w", sig.Symbol, err)
	}
	if size.Qty <= 0 {
		p.logger.Warn("entry-skipped-zero-qty", zap.String("symbol", sig.Symbol))
		EntriesTotal.WithLabelValues("skipped_zero_qty").Inc()
		return EntryResult{SkipReason: SkipZeroQty}, nil
	}

	orderID, err := p.exchange.PlaceOrder(ctx, &types.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          side,
		OrderType:     types.OrderTypeLimit,
		Qty:           size.Qty,
		Price:         price,
		TimeInForce:   types.TimeInForceGTC,
		ClientOrderID: tradeID,
	})
	if err != nil {
		EntriesTotal.WithLabelValues("failed").Inc()
		return EntryResult{}, fmt.Errorf("place entry %s: %w", sig.Symbol, err)
	}

	EntriesTotal.WithLabelValues("placed").Inc()
	p.logger.Info("entry-placed",
		zap.String("trade-id", tradeID),
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("qty", size.Qty),
		zap.String("order-id", orderID))

	return EntryResult{OrderID: orderID, Price: price, Qty: size.Qty, Margin: size.Margin}, nil
}

// configureSymbol sets leverage and margin mode. "Not modified" answers are
// expected on every entry after the first and are ignored.
func (p *Placer) configureSymbol(ctx context.Context, symbol string) {
	err := p.exchange.SetLeverage(ctx, symbol, p.leverage)
	if err != nil && !types.IsNotModified(err) {
		p.logger.Warn("set-leverage-failed", zap.String("symbol", symbol), zap.Error(err))
	}

	err = p.exchange.SetMarginMode(ctx, symbol, p.isolated, p.leverage)
	if err != nil && !types.IsNotModified(err) {
		p.logger.Warn("set-margin-mode-failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// CancelOrder cancels a single order.
func (p *Placer) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := p.exchange.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return fmt.Errorf("cancel %s %s: %w", symbol, orderID, err)
	}
	return nil
}

// CancelTradeOrders cancels every resting order whose client id belongs to
// tradeID's child orders. Individual cancel failures are logged and skipped.
func (p *Placer) CancelTradeOrders(ctx context.Context, symbol, tradeID string) (int, error) {
	open, err := p.exchange.OpenOrders(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("open orders %s: %w", symbol, err)
	}

	prefix := tradeID + ":"
	cancelled := 0
	for _, o := range open {
		if !strings.HasPrefix(o.ClientOrderID, prefix) || o.OrderID == "" {
			continue
		}
		err = p.exchange.CancelOrder(ctx, symbol, o.OrderID)
		if err != nil {
			p.logger.Warn("child-order-cancel-failed",
				zap.String("trade-id", tradeID),
				zap.String("order-id", o.OrderID),
				zap.Error(err))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		p.logger.Info("child-orders-cancelled",
			zap.String("trade-id", tradeID),
			zap.Int("count", cancelled))
	}

	return cancelled, nil
}

// OpenOrders lists resting orders for symbol.
func (p *Placer) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	return p.exchange.OpenOrders(ctx, symbol)
}

// LastPrice returns the last traded price for symbol.
func (p *Placer) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return p.exchange.LastPrice(ctx, symbol)
}
