package orders

import (
	"context"
	"fmt"
	"math"

	"github.com/mselser95/signal-bot/internal/stoploss"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// MoveStopLoss sets the position stop to price under the retry policy.
func (p *Placer) MoveStopLoss(ctx context.Context, symbol string, price float64) error {
	rules, err := p.rules.Get(ctx, symbol)
	if err != nil {
		return err
	}
	price = rules.RoundPrice(price)

	attempts, err := p.retry.Do(ctx, func(ctx context.Context) error {
		StopMoveAttemptsTotal.Inc()
		attemptErr := p.exchange.SetTradingStop(ctx, &types.TradingStop{Symbol: symbol, StopLoss: price})
		if attemptErr != nil {
			p.logger.Warn("sl-move-attempt-failed",
				zap.String("symbol", symbol),
				zap.Float64("stop", price),
				zap.Error(attemptErr))
		}
		return attemptErr
	})
	if err != nil {
		StopMovesTotal.WithLabelValues("failed").Inc()
		p.logger.Error("sl-move-failed",
			zap.String("symbol", symbol),
			zap.Float64("stop", price),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return fmt.Errorf("move stop %s after %d attempts: %w", symbol, attempts, err)
	}

	StopMovesTotal.WithLabelValues("moved").Inc()
	p.logger.Info("sl-moved",
		zap.String("symbol", symbol),
		zap.Float64("stop", price),
		zap.Int("attempts", attempts))

	return nil
}

// TrailingPlan is a computed trailing-stop update.
type TrailingPlan struct {
	Anchor      float64
	Distance    float64
	ActivePrice float64 // zero when the anchor has already been reached
	StopLoss    float64 // breakeven floor, zero when not at breakeven
}

// PlanTrailing anchors the trail at TP tpIdx's price, or at current when the
// trade has fewer targets. The activation price is only set while the
// anchor is still ahead of the market.
func PlanTrailing(trade *types.Trade, tpIdx int, current, trailPct float64, round func(float64) float64) TrailingPlan {
	anchor := current
	if tpIdx >= 1 && len(trade.TPPrices) >= tpIdx {
		anchor = trade.TPPrices[tpIdx-1]
	}
	anchor = round(anchor)

	plan := TrailingPlan{
		Anchor:   anchor,
		Distance: round(anchor * trailPct / 100),
	}

	if trade.OrderSide == types.SideSell {
		if anchor < current {
			plan.ActivePrice = anchor
		}
	} else if anchor > current {
		plan.ActivePrice = anchor
	}

	if trade.SLMovedToBE {
		plan.StopLoss = round(trade.BreakevenPrice())
	}

	return plan
}

// StartTrailing arms the trailing stop for trade after TP tpIdx filled.
func (p *Placer) StartTrailing(ctx context.Context, trade *types.Trade, tpIdx int) (TrailingPlan, error) {
	rules, err := p.rules.Get(ctx, trade.Symbol)
	if err != nil {
		return TrailingPlan{}, err
	}

	current, err := p.exchange.LastPrice(ctx, trade.Symbol)
	if err != nil {
		return TrailingPlan{}, fmt.Errorf("last price %s: %w", trade.Symbol, err)
	}

	plan := PlanTrailing(trade, tpIdx, current, p.trailPct, rules.RoundPrice)

	attempts, err := p.retry.Do(ctx, func(ctx context.Context) error {
		return p.exchange.SetTradingStop(ctx, &types.TradingStop{
			Symbol:       trade.Symbol,
			StopLoss:     plan.StopLoss,
			TrailingStop: plan.Distance,
			ActivePrice:  plan.ActivePrice,
		})
	})
	if err != nil {
		TrailingTotal.WithLabelValues("failed").Inc()
		p.logger.Warn("trailing-start-failed",
			zap.String("trade-id", trade.ID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return plan, fmt.Errorf("start trailing %s: %w", trade.Symbol, err)
	}

	TrailingTotal.WithLabelValues("started").Inc()
	p.logger.Info("trailing-started",
		zap.String("trade-id", trade.ID),
		zap.Int("tp", tpIdx),
		zap.Float64("anchor", plan.Anchor),
		zap.Float64("distance", plan.Distance),
		zap.Float64("active-price", plan.ActivePrice),
		zap.Float64("be-floor", plan.StopLoss))

	return plan, nil
}

// RestoreStopLoss recomputes the protective stop for an open trade whose
// initial stop submission failed and sets it under the retry policy.
func (p *Placer) RestoreStopLoss(ctx context.Context, trade *types.Trade) (stoploss.Result, error) {
	rules, err := p.rules.Get(ctx, trade.Symbol)
	if err != nil {
		return stoploss.Result{}, err
	}

	entry := trade.BreakevenPrice()
	stop := p.stops.Stop(ctx, trade.Symbol, trade.OrderSide, entry)
	stop.Price = rules.RoundPrice(stop.Price)
	stop.DistancePct = math.Round(stoploss.DistancePct(trade.OrderSide, entry, stop.Price)*100) / 100

	err = p.MoveStopLoss(ctx, trade.Symbol, stop.Price)
	if err != nil {
		return stop, err
	}
	return stop, nil
}
