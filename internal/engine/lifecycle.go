package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mselser95/signal-bot/internal/notify"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/internal/storage"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// pnlLookback widens the closed-PnL query before the fill time.
const pnlLookback = 60 * time.Second

// pnlRecordLimit caps the closed-PnL records fetched per closure.
const pnlRecordLimit = 20

// OnExecution applies an execution push. Entry fills open the pending trade
// whose id equals the client order id; "<trade-id>:TP<n>" fills record TP n.
// Unknown ids are ignored and redelivery is a no-op.
func (e *Engine) OnExecution(ctx context.Context, ev types.ExecutionEvent) {
	defer e.recoverPanic("execution")

	if ev.ClientOrderID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.blob.OpenTrades[ev.ClientOrderID]; ok {
		if t.Status == types.StatusPending {
			at := ev.ExecTime
			if at.IsZero() {
				at = e.now()
			}
			e.openTrade(ctx, t, ev.ExecPrice, at)
			e.persist(ctx)
		}
		return
	}

	tradeID, idx, ok := ParseTakeProfitID(ev.ClientOrderID)
	if !ok {
		return
	}
	t, ok := e.blob.OpenTrades[tradeID]
	if !ok {
		return
	}
	e.applyTakeProfitFill(ctx, t, idx)
	e.persist(ctx)
}

// ParseTakeProfitID splits a "<trade-id>:TP<n>" client order id.
func ParseTakeProfitID(clientOrderID string) (string, int, bool) {
	i := strings.LastIndex(clientOrderID, ":TP")
	if i <= 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(clientOrderID[i+3:])
	if err != nil || idx < 1 {
		return "", 0, false
	}
	return clientOrderID[:i], idx, true
}

// openTrade moves a pending trade to open and attempts its protective
// orders. Caller holds mu.
func (e *Engine) openTrade(ctx context.Context, t *types.Trade, price float64, at time.Time) {
	if !t.Open(price, at) {
		return
	}

	TradesOpenedTotal.Inc()
	e.logger.Info("entry-filled",
		zap.String("trade-id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.Float64("entry", t.EntryPrice))

	err := e.notifier.TradeOpened(ctx, notify.Opened{
		TradeID: t.ID,
		Symbol:  t.Symbol,
		Side:    t.OrderSide,
		Entry:   t.EntryPrice,
		Qty:     t.BaseQty,
	})
	if err != nil {
		e.logger.Warn("notify-opened-failed", zap.String("trade-id", t.ID), zap.Error(err))
	}

	e.placePostEntry(ctx, t)
}

// placePostEntry submits stop and take-profits once the exchange reports a
// position. Anything short of that leaves the trade for the next sweep.
// Caller holds mu.
func (e *Engine) placePostEntry(ctx context.Context, t *types.Trade) {
	if t.Status != types.StatusOpen || t.PostOrdersPlaced {
		return
	}

	pos, err := e.exchange.Position(ctx, t.Symbol)
	if err != nil {
		e.logger.Warn("post-entry-position-failed", zap.String("trade-id", t.ID), zap.Error(err))
		return
	}
	if pos == nil || pos.Size <= 0 {
		e.logger.Info("post-entry-deferred",
			zap.String("trade-id", t.ID),
			zap.String("reason", "no position size yet"))
		return
	}

	res, err := e.orders.PlacePostEntry(ctx, t, pos.Size)
	if err != nil {
		e.logger.Warn("post-entry-failed", zap.String("trade-id", t.ID), zap.Error(err))
		return
	}

	if res.FallbackTargets {
		t.TPPrices = res.Targets
	}
	if res.StopLossErr == nil {
		t.SetStopLoss(res.StopLoss.Price, res.StopLoss.DistancePct)
	}
	for idx, id := range res.TPOrderIDs {
		t.SetTakeProfitOrder(idx, id)
	}
	t.MarkPostOrdersPlaced()

	e.logger.Info("post-entry-placed",
		zap.String("trade-id", t.ID),
		zap.Float64("size", pos.Size),
		zap.Bool("stop-set", res.StopLossErr == nil),
		zap.Int("tp-orders", len(res.TPOrderIDs)),
		zap.Int("tp-failures", len(res.TPErrors)))
}

// applyTakeProfitFill records TP idx and runs the breakeven and trailing
// follow-ups it triggers. Caller holds mu.
func (e *Engine) applyTakeProfitFill(ctx context.Context, t *types.Trade, idx int) {
	if t.Status != types.StatusOpen {
		return
	}

	if t.RecordTakeProfit(idx) {
		TakeProfitFillsTotal.Inc()
		e.logger.Info("tp-filled",
			zap.String("trade-id", t.ID),
			zap.Int("tp", idx),
			zap.Int("fills", t.TPFillCount()),
			zap.Int("targets", len(t.TPPrices)))
	}

	if idx == 1 && e.moveSLToBE {
		e.applyBreakeven(ctx, t, "push")
	}
	if e.trailOnTP && idx == e.trailAfterTP {
		e.startTrailing(ctx, t, idx)
	}
}

// applyBreakeven moves the stop to the entry price. The flag is only set
// when the exchange accepted the move so the sweep can retry. Caller holds mu.
func (e *Engine) applyBreakeven(ctx context.Context, t *types.Trade, source string) {
	if t.SLMovedToBE || !t.HasTakeProfit(1) {
		return
	}

	be := t.BreakevenPrice()
	err := e.orders.MoveStopLoss(ctx, t.Symbol, be)
	if err != nil {
		return
	}

	t.MarkBreakeven()
	BreakevenTotal.WithLabelValues(source).Inc()
	e.logger.Info("sl-moved-to-breakeven",
		zap.String("trade-id", t.ID),
		zap.Float64("price", be),
		zap.String("source", source))
}

// startTrailing arms the trailing stop after TP idx. Caller holds mu.
func (e *Engine) startTrailing(ctx context.Context, t *types.Trade, idx int) {
	if t.TrailingStarted || !t.HasTakeProfit(idx) {
		return
	}

	_, err := e.orders.StartTrailing(ctx, t, idx)
	if err != nil {
		return
	}
	t.MarkTrailing(idx)
}

// closeTrade settles an open trade whose position went flat. The status
// guard makes it run once per trade. Caller holds mu.
func (e *Engine) closeTrade(ctx context.Context, t *types.Trade) {
	now := e.now()
	if !t.Close(now) {
		return
	}

	_, err := e.orders.CancelTradeOrders(ctx, t.Symbol, t.ID)
	if err != nil {
		e.logger.Warn("child-order-cleanup-failed", zap.String("trade-id", t.ID), zap.Error(err))
	}

	pnl := e.realizedPnL(ctx, t)
	reason := stats.ClassifyExit(stats.ExitInput{
		PnL:             pnl,
		TPFills:         t.TPFillCount(),
		TPCount:         len(t.TPPrices),
		TrailingStarted: t.TrailingStarted,
		SLMovedToBE:     t.SLMovedToBE,
	}, e.breakevenEpsilon)
	t.Settle(pnl, reason)

	TradesClosedTotal.WithLabelValues(reason).Inc()
	fields := []zap.Field{
		zap.String("trade-id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.PosSide)),
		zap.Float64("entry", t.BreakevenPrice()),
		zap.String("exit-reason", reason),
		zap.Int("tp-fills", t.TPFillCount()),
		zap.Int("tp-count", len(t.TPPrices)),
		zap.Bool("win", t.IsWin),
	}
	if pnl != nil {
		RealizedPnL.Add(*pnl)
		fields = append(fields, zap.Float64("pnl", *pnl))
	}
	e.logger.Info("trade-closed", fields...)

	e.export(ctx, t, now)

	err = e.notifier.TradeClosed(ctx, notify.Closed{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Side:       t.OrderSide,
		PnL:        pnl,
		ExitReason: reason,
		TPFills:    t.TPFillCount(),
	})
	if err != nil {
		e.logger.Warn("notify-closed-failed", zap.String("trade-id", t.ID), zap.Error(err))
	}

	if e.alerts != nil {
		e.alerts.Clear(t.ID)
	}
}

// realizedPnL sums closed-PnL records created at or after the fill. It
// returns nil when the records could not be fetched.
func (e *Engine) realizedPnL(ctx context.Context, t *types.Trade) *float64 {
	filled := t.FilledAt
	if filled.IsZero() {
		filled = t.PlacedAt
	}

	recs, err := e.exchange.ClosedPnL(ctx, t.Symbol, filled.Add(-pnlLookback), pnlRecordLimit)
	if err != nil {
		e.logger.Warn("closed-pnl-fetch-failed", zap.String("trade-id", t.ID), zap.Error(err))
		return nil
	}

	cutoff := filled.Truncate(time.Millisecond)
	total := 0.0
	for _, r := range recs {
		if !r.CreatedAt.Before(cutoff) {
			total += r.ClosedPnL
		}
	}
	return &total
}

// export hands the closed trade to the export sink. Caller holds mu.
func (e *Engine) export(ctx context.Context, t *types.Trade, now time.Time) {
	if _, ok := e.exports.(storage.NopStorage); ok {
		return
	}

	equity, err := e.exchange.Equity(ctx)
	if err != nil {
		e.logger.Warn("export-equity-failed", zap.String("trade-id", t.ID), zap.Error(err))
	}

	margin := 0.0
	if e.leverage > 0 {
		margin = t.BreakevenPrice() * t.BaseQty / float64(e.leverage)
	}

	err = e.exports.StoreTrade(ctx, &types.TradeExport{
		ArchivedTrade: t.Archive(),
		ExportID:      storage.NewExportID(now),
		MarginUsed:    margin,
		EquityAtClose: equity,
	})
	if err != nil {
		e.logger.Warn("trade-export-failed", zap.String("trade-id", t.ID), zap.Error(err))
	}
}
