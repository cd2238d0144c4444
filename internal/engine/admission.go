package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/signal-bot/internal/feed"
	"github.com/mselser95/signal-bot/internal/signal"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Admission outcomes.
const (
	OutcomePlaced  = "placed"
	OutcomeSkipped = "skipped"
	OutcomeIgnored = "ignored"
	OutcomeFailed  = "failed"
)

// Skip reasons recorded on Decision.Reason.
const (
	ReasonStale         = "stale"
	ReasonNotSignal     = "not-signal"
	ReasonExcluded      = "excluded"
	ReasonMaxConcurrent = "max-concurrent"
	ReasonMaxDaily      = "max-daily"
	ReasonWindow        = "window"
	ReasonDuplicate     = "duplicate"
	ReasonBreaker       = "circuit-breaker"
)

// Decision is what happened to one feed message.
type Decision struct {
	Outcome string
	Reason  string
	TradeID string
	Err     error
}

// HandleMessage admits a feed message; it is the feed.Handler of the engine.
func (e *Engine) HandleMessage(ctx context.Context, msg feed.Message) {
	defer e.recoverPanic("signal")

	d := e.Admit(ctx, msg)

	fields := []zap.Field{
		zap.String("msg-id", msg.ID),
		zap.String("outcome", d.Outcome),
	}
	switch d.Outcome {
	case OutcomePlaced:
		e.logger.Info("signal-accepted", append(fields, zap.String("trade-id", d.TradeID))...)
	case OutcomeFailed:
		e.logger.Warn("signal-failed", append(fields, zap.Error(d.Err))...)
	case OutcomeSkipped:
		e.logger.Info("signal-skipped", append(fields, zap.String("reason", d.Reason))...)
	}
}

// Admit runs the admission gates for msg and, when it passes, places the
// entry and records a pending trade. Gates, in order: message lag, parse,
// excluded symbol, concurrent trades, daily count, batch window, duplicate
// hash, circuit breaker. The hash is marked seen before the entry is sent.
func (e *Engine) Admit(ctx context.Context, msg feed.Message) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	SignalsTotal.Inc()

	if e.maxLag > 0 && !msg.Time.IsZero() && now.Sub(msg.Time) > e.maxLag {
		return e.skip(ReasonStale)
	}

	sig, ok := signal.Parse(msg.Text, e.quote)
	if !ok {
		if signal.LooksLikeSignal(msg.Text) {
			e.logger.Debug("signal-unparsed", zap.String("msg-id", msg.ID))
		}
		SignalsSkippedTotal.WithLabelValues(ReasonNotSignal).Inc()
		return Decision{Outcome: OutcomeIgnored, Reason: ReasonNotSignal}
	}

	logger := e.logger.With(
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Float64("trigger", sig.Trigger))
	logger.Info("signal-parsed", zap.Float64s("targets", sig.TPPrices))

	if e.isExcluded(sig) {
		return e.skip(ReasonExcluded)
	}

	if e.maxConcurrent > 0 && e.blob.ActiveTrades() >= e.maxConcurrent {
		return e.skip(ReasonMaxConcurrent)
	}

	day := state.DayKey(now)
	if e.maxPerDay > 0 && e.blob.DailyCount(day) >= e.maxPerDay {
		return e.skip(ReasonMaxDaily)
	}

	if e.signalsPerWindow > 0 && e.placedSince(now.Add(-e.signalWindow)) >= e.signalsPerWindow {
		return e.skip(ReasonWindow)
	}

	hash := signal.Hash(sig)
	if e.blob.Seen(hash) {
		return e.skip(ReasonDuplicate)
	}

	if e.breaker != nil && !e.breaker.Allow() {
		return e.skip(ReasonBreaker)
	}

	e.blob.MarkSeen(hash)

	tradeID := fmt.Sprintf("%s|%s|%d", sig.Symbol, sig.Side, now.Unix())
	if _, exists := e.blob.OpenTrades[tradeID]; exists {
		e.persist(ctx)
		return e.skip(ReasonDuplicate)
	}

	res, err := e.orders.PlaceEntry(ctx, sig, tradeID)
	if err != nil {
		e.persist(ctx)
		SignalsSkippedTotal.WithLabelValues("entry-failed").Inc()
		return Decision{Outcome: OutcomeFailed, TradeID: tradeID, Err: err}
	}
	if !res.Placed() {
		e.persist(ctx)
		return e.skip(res.SkipReason)
	}

	trade := types.NewPendingTrade(tradeID, sig, res.OrderID, res.Qty, now)
	e.blob.OpenTrades[tradeID] = trade
	e.blob.IncDaily(day)
	if e.breaker != nil {
		e.breaker.RecordTrade(res.Margin)
	}
	e.persist(ctx)

	TradesPlacedTotal.Inc()
	logger.Info("trade-pending",
		zap.String("trade-id", tradeID),
		zap.String("order-id", res.OrderID),
		zap.Float64("price", res.Price),
		zap.Float64("qty", res.Qty))

	return Decision{Outcome: OutcomePlaced, TradeID: tradeID}
}

func (e *Engine) skip(reason string) Decision {
	SignalsSkippedTotal.WithLabelValues(reason).Inc()
	return Decision{Outcome: OutcomeSkipped, Reason: reason}
}

func (e *Engine) isExcluded(sig *types.Signal) bool {
	if _, ok := e.excluded[sig.Base]; ok {
		return true
	}
	_, ok := e.excluded[sig.Symbol]
	return ok
}

// placedSince counts live trades placed at or after since. Caller holds mu.
func (e *Engine) placedSince(since time.Time) int {
	n := 0
	for _, t := range e.blob.OpenTrades {
		if !t.PlacedAt.Before(since) {
			n++
		}
	}
	return n
}
