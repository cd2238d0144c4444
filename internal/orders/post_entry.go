package orders

import (
	"context"
	"math"
	"sync"

	"github.com/mselser95/signal-bot/internal/stoploss"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PostEntryResult is what the protective-order step achieved.
type PostEntryResult struct {
	StopLoss        stoploss.Result
	StopLossErr     error
	Targets         []float64 // targets used, fallback ladder if the signal had none
	FallbackTargets bool
	Plan            TakeProfitPlan
	TPOrderIDs      map[int]string
	TPErrors        map[int]error
}

// PlacePostEntry computes the stop and take-profit plan for an open trade of
// the given position size and submits them concurrently, stop first. It
// waits for every submission; individual failures are recorded, not returned.
func (p *Placer) PlacePostEntry(ctx context.Context, trade *types.Trade, size float64) (*PostEntryResult, error) {
	rules, err := p.rules.Get(ctx, trade.Symbol)
	if err != nil {
		return nil, err
	}

	entry := trade.BreakevenPrice()
	side := trade.OrderSide

	stop := p.stops.Stop(ctx, trade.Symbol, side, entry)
	stop.Price = rules.RoundPrice(stop.Price)
	stop.DistancePct = math.Round(stoploss.DistancePct(side, entry, stop.Price)*100) / 100

	res := &PostEntryResult{
		StopLoss:   stop,
		Targets:    trade.TPPrices,
		TPOrderIDs: make(map[int]string),
		TPErrors:   make(map[int]error),
	}

	if len(res.Targets) == 0 {
		res.Targets = FallbackTargets(side, entry, rules)
		res.FallbackTargets = true
		p.logger.Warn("fallback-targets-used",
			zap.String("trade-id", trade.ID),
			zap.Float64s("targets", res.Targets))
	}

	res.Plan = BuildTakeProfits(trade.ID, size, res.Targets, p.splits, rules)
	if res.Plan.DroppedPct > 0 {
		p.logger.Warn("tp-carry-forward-dropped",
			zap.String("trade-id", trade.ID),
			zap.Float64("pct", res.Plan.DroppedPct))
	}

	p.logger.Info("post-entry-plan",
		zap.String("trade-id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.Float64("size", size),
		zap.Float64("stop", stop.Price),
		zap.String("stop-source", stop.Source),
		zap.String("tp-mode", res.Plan.Mode),
		zap.Int("tp-orders", len(res.Plan.Orders)))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	// Stop first: it closes the unprotected window.
	g.Go(func() error {
		res.StopLossErr = p.exchange.SetTradingStop(ctx, &types.TradingStop{
			Symbol:   trade.Symbol,
			StopLoss: stop.Price,
		})
		if res.StopLossErr != nil {
			PostEntryOrdersTotal.WithLabelValues("sl", "failed").Inc()
			p.logger.Error("stop-loss-placement-failed",
				zap.String("trade-id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.Float64("stop", stop.Price),
				zap.Error(res.StopLossErr))
			return nil
		}
		PostEntryOrdersTotal.WithLabelValues("sl", "placed").Inc()
		p.logger.Info("stop-loss-set",
			zap.String("trade-id", trade.ID),
			zap.Float64("stop", stop.Price))
		return nil
	})

	for _, tp := range res.Plan.Orders {
		g.Go(func() error {
			orderID, err := p.exchange.PlaceOrder(ctx, &types.OrderRequest{
				Symbol:        trade.Symbol,
				Side:          side.Opposite(),
				OrderType:     types.OrderTypeLimit,
				Qty:           tp.Qty,
				Price:         tp.Price,
				TimeInForce:   types.TimeInForceGTC,
				ReduceOnly:    true,
				ClientOrderID: tp.ClientOrderID,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.TPErrors[tp.Index] = err
				PostEntryOrdersTotal.WithLabelValues("tp", "failed").Inc()
				p.logger.Warn("take-profit-placement-failed",
					zap.String("client-order-id", tp.ClientOrderID),
					zap.Error(err))
				return nil
			}
			res.TPOrderIDs[tp.Index] = orderID
			PostEntryOrdersTotal.WithLabelValues("tp", "placed").Inc()
			return nil
		})
	}

	_ = g.Wait()

	return res, nil
}
