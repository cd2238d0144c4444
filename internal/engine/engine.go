// Package engine owns the trade records and drives them from signal to
// archive. Signal admission, execution pushes and the maintenance sweep all
// mutate state under one mutex, and every mutation ends with a full persist.
package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/signal-bot/internal/notify"
	"github.com/mselser95/signal-bot/internal/orders"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/internal/stoploss"
	"github.com/mselser95/signal-bot/internal/storage"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Exchange is the read side of the exchange the engine reconciles against.
type Exchange interface {
	Position(ctx context.Context, symbol string) (*types.Position, error)
	Positions(ctx context.Context) ([]types.Position, error)
	Equity(ctx context.Context) (float64, error)
	ClosedPnL(ctx context.Context, symbol string, since time.Time, limit int) ([]types.ClosedPnL, error)
}

// OrderPlacer submits and cancels the orders of a trade.
type OrderPlacer interface {
	PlaceEntry(ctx context.Context, sig *types.Signal, tradeID string) (orders.EntryResult, error)
	PlacePostEntry(ctx context.Context, trade *types.Trade, size float64) (*orders.PostEntryResult, error)
	RestoreStopLoss(ctx context.Context, trade *types.Trade) (stoploss.Result, error)
	MoveStopLoss(ctx context.Context, symbol string, price float64) error
	StartTrailing(ctx context.Context, trade *types.Trade, tpIdx int) (orders.TrailingPlan, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelTradeOrders(ctx context.Context, symbol, tradeID string) (int, error)
	OpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Breaker gates new entries. RecordTrade receives the margin of each entry.
type Breaker interface {
	Allow() bool
	RecordTrade(margin float64)
}

// SweepRecorder is told when a maintenance sweep completes.
type SweepRecorder interface {
	MarkSweep(at time.Time)
}

// Engine is the trade lifecycle state machine.
type Engine struct {
	mu   sync.Mutex
	blob *state.Blob

	exchange Exchange
	orders   OrderPlacer
	store    state.Store
	notifier notify.Notifier
	exports  storage.Storage
	alerts   *notify.AlertTracker
	breaker  Breaker
	health   SweepRecorder

	quote             string
	leverage          int
	entryExpiration   time.Duration
	moveSLToBE        bool
	trailOnTP         bool
	trailAfterTP      int
	breakevenEpsilon  float64
	maxConcurrent     int
	maxPerDay         int
	signalsPerWindow  int
	signalWindow      time.Duration
	maxLag            time.Duration
	excluded          map[string]struct{}
	sweepInterval     time.Duration
	heartbeatInterval time.Duration
	retention         time.Duration

	lastStatsDay  string
	lastHeartbeat time.Time

	now    func() time.Time
	logger *zap.Logger
}

// Config holds engine configuration.
type Config struct {
	Exchange Exchange
	Orders   OrderPlacer
	Store    state.Store
	State    *state.Blob // loaded blob; empty when nil
	Notifier notify.Notifier
	Exports  storage.Storage      // optional
	Alerts   *notify.AlertTracker // optional, disables position alerts when nil
	Breaker  Breaker              // optional
	Health   SweepRecorder        // optional

	Quote             string
	Leverage          int
	EntryExpiration   time.Duration
	MoveSLToBEOnTP1   bool
	TrailActivateOnTP bool
	TrailAfterTPIndex int
	BreakevenEpsilon  float64
	MaxConcurrent     int
	MaxPerDay         int
	SignalsPerWindow  int
	SignalWindow      time.Duration
	MaxLag            time.Duration
	ExcludedSymbols   []string
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	Retention         time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

// New creates an engine over the loaded state.
func New(cfg *Config) *Engine {
	blob := cfg.State
	if blob == nil {
		blob = state.NewBlob()
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedSymbols))
	for _, s := range cfg.ExcludedSymbols {
		excluded[strings.ToUpper(s)] = struct{}{}
	}

	exports := cfg.Exports
	if exports == nil {
		exports = storage.NopStorage{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		blob:              blob,
		exchange:          cfg.Exchange,
		orders:            cfg.Orders,
		store:             cfg.Store,
		notifier:          cfg.Notifier,
		exports:           exports,
		alerts:            cfg.Alerts,
		breaker:           cfg.Breaker,
		health:            cfg.Health,
		quote:             cfg.Quote,
		leverage:          cfg.Leverage,
		entryExpiration:   cfg.EntryExpiration,
		moveSLToBE:        cfg.MoveSLToBEOnTP1,
		trailOnTP:         cfg.TrailActivateOnTP,
		trailAfterTP:      cfg.TrailAfterTPIndex,
		breakevenEpsilon:  cfg.BreakevenEpsilon,
		maxConcurrent:     cfg.MaxConcurrent,
		maxPerDay:         cfg.MaxPerDay,
		signalsPerWindow:  cfg.SignalsPerWindow,
		signalWindow:      cfg.SignalWindow,
		maxLag:            cfg.MaxLag,
		excluded:          excluded,
		sweepInterval:     cfg.SweepInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		retention:         cfg.Retention,
		now:               now,
		logger:            cfg.Logger,
	}
}

// persist saves the whole blob. Caller holds mu. Failures are logged; the
// in-memory state stays authoritative until the next successful save.
func (e *Engine) persist(ctx context.Context) {
	err := e.store.Save(context.WithoutCancel(ctx), e.blob)
	if err != nil {
		e.logger.Error("state-save-failed", zap.Error(err))
	}
}

// recoverPanic keeps a panicking push handler from killing the feed or
// stream goroutine that delivered it. Deferred before mu is taken so the
// lock is released first.
func (e *Engine) recoverPanic(path string) {
	if r := recover(); r != nil {
		HandlerPanicsTotal.WithLabelValues(path).Inc()
		e.logger.Error("handler-panic", zap.String("path", path), zap.Any("panic", r), zap.Stack("stack"))
	}
}

// tradesWhere returns live trades matching keep, ordered by id. Caller holds mu.
func (e *Engine) tradesWhere(keep func(*types.Trade) bool) []*types.Trade {
	out := make([]*types.Trade, 0, len(e.blob.OpenTrades))
	for _, t := range e.blob.OpenTrades {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func withStatus(s types.TradeStatus) func(*types.Trade) bool {
	return func(t *types.Trade) bool { return t.Status == s }
}

// Trades returns a copy of every live trade, oldest first.
func (e *Engine) Trades() []*types.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*types.Trade, 0, len(e.blob.OpenTrades))
	for _, t := range e.blob.OpenTrades {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// Trade returns a copy of one live trade.
func (e *Engine) Trade(id string) (*types.Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.blob.OpenTrades[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// History returns the archived trades.
func (e *Engine) History() []types.ArchivedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blob.History()
}

// Report computes the 7d/30d/all-time statistics.
func (e *Engine) Report() stats.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.BuildReport(e.blob.TradeHistory, e.now())
}

// TradesToday returns the number of entries placed on the current UTC day.
func (e *Engine) TradesToday() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blob.DailyCount(state.DayKey(e.now()))
}

// Run drives the maintenance sweep every SweepInterval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("sweeper-starting", zap.Duration("interval", e.sweepInterval))

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sweeper-stopping")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
