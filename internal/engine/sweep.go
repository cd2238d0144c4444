package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/signal-bot/internal/notify"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

type sweepStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Sweep runs one maintenance pass. Each step is isolated so an error or
// panic in one does not stop the rest.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	logger := e.logger.With(zap.String("sweep-id", uuid.NewString()))

	steps := []sweepStep{
		{"expire-entries", e.expireEntries},
		{"poll-fills", e.pollFills},
		{"post-entry", e.retryPostEntry},
		{"restore-stops", e.restoreStops},
		{"detect-closures", e.detectClosures},
		{"archive", e.archiveTrades},
		{"breakeven-fallback", e.breakevenFallback},
		{"trailing-retry", e.retryTrailing},
		{"position-alerts", e.positionAlerts},
		{"daily-stats", e.dailyStats},
		{"heartbeat", e.heartbeat},
	}
	for _, s := range steps {
		e.safeStep(ctx, logger, s)
	}

	e.persist(ctx)
	ActiveTrades.Set(float64(e.blob.ActiveTrades()))
	SweepDuration.Observe(time.Since(start).Seconds())

	if e.health != nil {
		e.health.MarkSweep(e.now())
	}
}

func (e *Engine) safeStep(ctx context.Context, logger *zap.Logger, s sweepStep) {
	defer func() {
		if r := recover(); r != nil {
			SweepErrorsTotal.WithLabelValues(s.name).Inc()
			logger.Error("sweep-step-panic",
				zap.String("step", s.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	err := s.fn(ctx)
	if err != nil {
		SweepErrorsTotal.WithLabelValues(s.name).Inc()
		logger.Warn("sweep-step-failed", zap.String("step", s.name), zap.Error(err))
	}
}

// expireEntries cancels pending entries older than the expiration window.
// An entry whose position already exists is left for the fill poll.
func (e *Engine) expireEntries(ctx context.Context) error {
	now := e.now()
	var errs []error

	for _, t := range e.tradesWhere(withStatus(types.StatusPending)) {
		if now.Sub(t.PlacedAt) <= e.entryExpiration {
			continue
		}

		pos, err := e.exchange.Position(ctx, t.Symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("position %s: %w", t.Symbol, err))
			continue
		}
		if pos != nil && pos.Size > 0 {
			continue
		}

		if t.EntryOrderID != "" {
			err = e.orders.CancelOrder(ctx, t.Symbol, t.EntryOrderID)
			if err != nil && !isOrderGone(err) {
				errs = append(errs, fmt.Errorf("cancel entry %s: %w", t.ID, err))
				continue
			}
		}

		t.Expire(now)
		TradesExpiredTotal.Inc()
		e.logger.Info("entry-expired",
			zap.String("trade-id", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Duration("age", now.Sub(t.PlacedAt)))
	}

	return errors.Join(errs...)
}

func isOrderGone(err error) bool {
	var apiErr *types.APIError
	return errors.As(err, &apiErr) && apiErr.Code == types.CodeOrderNotExists
}

// pollFills opens pending trades whose position shows up without a push.
func (e *Engine) pollFills(ctx context.Context) error {
	var errs []error
	for _, t := range e.tradesWhere(withStatus(types.StatusPending)) {
		pos, err := e.exchange.Position(ctx, t.Symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("position %s: %w", t.Symbol, err))
			continue
		}
		if pos == nil || pos.Size <= 0 || pos.AvgPrice <= 0 {
			continue
		}
		e.logger.Info("entry-fill-detected", zap.String("trade-id", t.ID), zap.Float64("avg", pos.AvgPrice))
		e.openTrade(ctx, t, pos.AvgPrice, e.now())
	}
	return errors.Join(errs...)
}

// retryPostEntry places protective orders that could not be placed at fill time.
func (e *Engine) retryPostEntry(ctx context.Context) error {
	for _, t := range e.tradesWhere(func(t *types.Trade) bool {
		return t.Status == types.StatusOpen && !t.PostOrdersPlaced
	}) {
		e.placePostEntry(ctx, t)
	}
	return nil
}

// restoreStops re-submits the stop of trades whose initial stop failed.
func (e *Engine) restoreStops(ctx context.Context) error {
	var errs []error
	for _, t := range e.tradesWhere(func(t *types.Trade) bool {
		return t.Status == types.StatusOpen && t.PostOrdersPlaced && t.SLPrice == nil
	}) {
		stop, err := e.orders.RestoreStopLoss(ctx, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore stop %s: %w", t.ID, err))
			continue
		}
		t.SetStopLoss(stop.Price, stop.DistancePct)
		e.logger.Info("stop-loss-restored", zap.String("trade-id", t.ID), zap.Float64("stop", stop.Price))
	}
	return errors.Join(errs...)
}

// detectClosures closes open trades whose position is flat.
func (e *Engine) detectClosures(ctx context.Context) error {
	var errs []error
	for _, t := range e.tradesWhere(withStatus(types.StatusOpen)) {
		pos, err := e.exchange.Position(ctx, t.Symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("position %s: %w", t.Symbol, err))
			continue
		}
		if pos != nil && pos.Size > 0 {
			continue
		}
		e.closeTrade(ctx, t)
	}
	return errors.Join(errs...)
}

// archiveTrades moves terminal trades past the retention age to history.
func (e *Engine) archiveTrades(_ context.Context) error {
	now := e.now()
	for _, t := range e.tradesWhere(func(t *types.Trade) bool { return t.Status.Terminal() }) {
		if now.Sub(t.RetentionAnchor()) <= e.retention {
			continue
		}
		e.blob.AppendHistory(t.Archive())
		delete(e.blob.OpenTrades, t.ID)
		e.logger.Debug("trade-archived", zap.String("trade-id", t.ID), zap.String("status", string(t.Status)))
	}
	return nil
}

// breakevenFallback applies the TP1 breakeven move when the push never
// arrived: the TP1 order is gone from the book or price crossed TP1.
func (e *Engine) breakevenFallback(ctx context.Context) error {
	if !e.moveSLToBE {
		return nil
	}

	var errs []error
	for _, t := range e.tradesWhere(func(t *types.Trade) bool {
		return t.Status == types.StatusOpen && t.PostOrdersPlaced && !t.SLMovedToBE && len(t.TPPrices) > 0
	}) {
		reached, err := e.takeProfitReached(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !reached {
			continue
		}
		if t.RecordTakeProfit(1) {
			TakeProfitFillsTotal.Inc()
		}
		e.applyBreakeven(ctx, t, "fallback")
	}
	return errors.Join(errs...)
}

func (e *Engine) takeProfitReached(ctx context.Context, t *types.Trade) (bool, error) {
	if t.HasTakeProfit(1) {
		return true, nil
	}

	if id, ok := t.TPOrderIDs[1]; ok && id != "" {
		open, err := e.orders.OpenOrders(ctx, t.Symbol)
		if err == nil {
			stillOpen := false
			for _, o := range open {
				if o.OrderID == id {
					stillOpen = true
					break
				}
			}
			if !stillOpen {
				return true, nil
			}
		}
	}

	last, err := e.orders.LastPrice(ctx, t.Symbol)
	if err != nil {
		return false, fmt.Errorf("last price %s: %w", t.Symbol, err)
	}
	tp1 := t.TPPrices[0]
	if t.OrderSide == types.SideSell {
		return last <= tp1, nil
	}
	return last >= tp1, nil
}

// retryTrailing arms trailing stops whose activation failed on the push path.
func (e *Engine) retryTrailing(ctx context.Context) error {
	if !e.trailOnTP {
		return nil
	}
	for _, t := range e.tradesWhere(func(t *types.Trade) bool {
		return t.Status == types.StatusOpen && !t.TrailingStarted && t.HasTakeProfit(e.trailAfterTP)
	}) {
		e.startTrailing(ctx, t, e.trailAfterTP)
	}
	return nil
}

// positionAlerts notifies when an open trade's leveraged ROE crosses a threshold.
func (e *Engine) positionAlerts(ctx context.Context) error {
	if e.alerts == nil {
		return nil
	}

	var errs []error
	for _, t := range e.tradesWhere(withStatus(types.StatusOpen)) {
		if t.EntryPrice <= 0 {
			continue
		}
		last, err := e.orders.LastPrice(ctx, t.Symbol)
		if err != nil || last <= 0 {
			continue
		}

		roe := notify.ROE(t.OrderSide, t.EntryPrice, last, e.leverage)
		for _, th := range e.alerts.Check(t.ID, roe) {
			AlertsTotal.Inc()
			err = e.notifier.PositionAlert(ctx, notify.Alert{
				TradeID:   t.ID,
				Symbol:    t.Symbol,
				Side:      t.OrderSide,
				Entry:     t.EntryPrice,
				Current:   last,
				ROE:       roe,
				Threshold: th,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("alert %s: %w", t.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// dailyStats logs the previous day's count and the performance report once
// per UTC day change.
func (e *Engine) dailyStats(_ context.Context) error {
	today := state.DayKey(e.now())
	if e.lastStatsDay == today {
		return nil
	}

	if e.lastStatsDay != "" {
		count := e.blob.DailyCount(e.lastStatsDay)
		if count > 0 {
			e.logger.Info("daily-stats", zap.String("day", e.lastStatsDay), zap.Int("trades", count))
			stats.LogReport(e.logger, stats.BuildReport(e.blob.TradeHistory, e.now()))
		}
	}
	e.lastStatsDay = today
	return nil
}

func (e *Engine) heartbeat(_ context.Context) error {
	now := e.now()
	if !e.lastHeartbeat.IsZero() && now.Sub(e.lastHeartbeat) < e.heartbeatInterval {
		return nil
	}
	e.lastHeartbeat = now

	pending, open := 0, 0
	for _, t := range e.blob.OpenTrades {
		switch t.Status {
		case types.StatusPending:
			pending++
		case types.StatusOpen:
			open++
		}
	}
	e.logger.Info("heartbeat",
		zap.Int("pending", pending),
		zap.Int("open", open),
		zap.Int("trades-today", e.blob.DailyCount(state.DayKey(now))),
		zap.Int("history", len(e.blob.TradeHistory)))
	return nil
}
