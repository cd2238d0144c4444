// Package sizing converts account equity into an order quantity.
package sizing

import (
	"context"
	"fmt"

	"github.com/mselser95/signal-bot/internal/instruments"
	"go.uber.org/zap"
)

// EquitySource returns the current account equity in quote currency.
type EquitySource interface {
	Equity(ctx context.Context) (float64, error)
}

// RulesSource returns rounding rules for a symbol.
type RulesSource interface {
	Get(ctx context.Context, symbol string) (instruments.Rules, error)
}

// Sizer computes risk-based order quantities.
type Sizer struct {
	equity   EquitySource
	rules    RulesSource
	riskPct  float64
	leverage float64
	logger   *zap.Logger
}

// Config holds sizer configuration.
type Config struct {
	Equity   EquitySource
	Rules    RulesSource
	RiskPct  float64
	Leverage int
	Logger   *zap.Logger
}

// New creates a new Sizer.
func New(cfg *Config) *Sizer {
	return &Sizer{
		equity:   cfg.Equity,
		rules:    cfg.Rules,
		riskPct:  cfg.RiskPct,
		leverage: float64(cfg.Leverage),
		logger:   cfg.Logger,
	}
}

// Result is a sized quantity and the inputs that produced it.
type Result struct {
	Qty      float64
	Equity   float64
	Margin   float64
	Notional float64
}

// Quantity returns equity*risk%*leverage/price rounded down to the step and
// lifted to the exchange minimum. Equity is fetched on every call.
func (s *Sizer) Quantity(ctx context.Context, symbol string, price float64) (Result, error) {
	if price <= 0 {
		return Result{}, fmt.Errorf("invalid reference price %f", price)
	}

	equity, err := s.equity.Equity(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch equity: %w", err)
	}

	rules, err := s.rules.Get(ctx, symbol)
	if err != nil {
		return Result{}, err
	}

	margin := equity * s.riskPct / 100
	notional := margin * s.leverage
	qty := rules.RoundQty(notional / price)

	s.logger.Info("position-sized",
		zap.String("symbol", symbol),
		zap.Float64("equity", equity),
		zap.Float64("margin", margin),
		zap.Float64("notional", notional),
		zap.Float64("qty", qty))

	return Result{Qty: qty, Equity: equity, Margin: margin, Notional: notional}, nil
}
