package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/signal-bot/internal/feed"
	"github.com/mselser95/signal-bot/internal/orders"
	"github.com/mselser95/signal-bot/internal/signal"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/testutil"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdmit_PlacesPendingTrade(t *testing.T) {
	breaker := &stubBreaker{allow: true}
	h := newHarness(t, func(c *Config) { c.Breaker = breaker })

	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	require.Equal(t, OutcomePlaced, d.Outcome)
	assert.Equal(t, "EPICUSDT|sell|1772445600", d.TradeID)

	tr := h.trade(t, d.TradeID)
	assert.Equal(t, types.StatusPending, tr.Status)
	assert.Equal(t, types.SideSell, tr.OrderSide)
	assert.Equal(t, types.PositionShort, tr.PosSide)
	assert.InDelta(t, 0.5904, tr.Trigger, 1e-9)
	assert.Equal(t, []float64{0.5845, 0.5786, 0.5727, 0.5668}, tr.TPPrices)
	assert.Equal(t, "ord-1", tr.EntryOrderID)
	assert.InDelta(t, 338, tr.BaseQty, 1e-9)
	assert.Equal(t, t0, tr.PlacedAt)

	placed := h.ex.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, d.TradeID, placed[0].ClientOrderID)
	assert.InDelta(t, 0.5910, placed[0].Price, 1e-9)

	assert.Equal(t, 1, h.engine.TradesToday())
	assert.Equal(t, []float64{20}, breaker.margins)
	assert.GreaterOrEqual(t, h.store.Saves(), 1)

	saved, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, saved.OpenTrades, d.TradeID)
	assert.True(t, saved.Seen(signal.Hash(testutil.EPICSignal())))
}

func TestAdmit_Gates(t *testing.T) {
	day := state.DayKey(t0)

	tests := []struct {
		name    string
		opts    func(*Config)
		msg     func(h *harness) feed.Message
		outcome string
		reason  string
	}{
		{
			name: "stale-message",
			msg: func(h *harness) feed.Message {
				m := h.message(testutil.EPICSignalText)
				m.Time = t0.Add(-5 * time.Minute)
				return m
			},
			outcome: OutcomeSkipped,
			reason:  ReasonStale,
		},
		{
			name:    "not-a-signal",
			msg:     func(h *harness) feed.Message { return h.message("gm everyone") },
			outcome: OutcomeIgnored,
			reason:  ReasonNotSignal,
		},
		{
			name:    "excluded-base",
			opts:    func(c *Config) { c.ExcludedSymbols = []string{"epic"} },
			outcome: OutcomeSkipped,
			reason:  ReasonExcluded,
		},
		{
			name:    "excluded-symbol",
			opts:    func(c *Config) { c.ExcludedSymbols = []string{"EPICUSDT"} },
			outcome: OutcomeSkipped,
			reason:  ReasonExcluded,
		},
		{
			name: "max-concurrent",
			opts: func(c *Config) {
				c.MaxConcurrent = 1
				c.State = state.NewBlob()
				c.State.OpenTrades["x"] = &types.Trade{ID: "x", Symbol: "BTCUSDT", Status: types.StatusOpen, PlacedAt: t0.Add(-48 * time.Hour)}
			},
			outcome: OutcomeSkipped,
			reason:  ReasonMaxConcurrent,
		},
		{
			name: "terminal-trades-do-not-count",
			opts: func(c *Config) {
				c.MaxConcurrent = 1
				c.State = state.NewBlob()
				c.State.OpenTrades["x"] = &types.Trade{ID: "x", Symbol: "BTCUSDT", Status: types.StatusClosed, PlacedAt: t0.Add(-48 * time.Hour)}
			},
			outcome: OutcomePlaced,
		},
		{
			name: "max-daily",
			opts: func(c *Config) {
				c.MaxPerDay = 3
				c.State = state.NewBlob()
				c.State.DailyCounts[day] = 3
			},
			outcome: OutcomeSkipped,
			reason:  ReasonMaxDaily,
		},
		{
			name: "window-full",
			opts: func(c *Config) {
				c.SignalsPerWindow = 1
				c.SignalWindow = 10 * time.Minute
				c.State = state.NewBlob()
				c.State.OpenTrades["x"] = &types.Trade{ID: "x", Symbol: "BTCUSDT", Status: types.StatusExpired, PlacedAt: t0.Add(-5 * time.Minute)}
			},
			outcome: OutcomeSkipped,
			reason:  ReasonWindow,
		},
		{
			name: "window-elapsed",
			opts: func(c *Config) {
				c.SignalsPerWindow = 1
				c.SignalWindow = 10 * time.Minute
				c.State = state.NewBlob()
				c.State.OpenTrades["x"] = &types.Trade{ID: "x", Symbol: "BTCUSDT", Status: types.StatusExpired, PlacedAt: t0.Add(-11 * time.Minute)}
			},
			outcome: OutcomePlaced,
		},
		{
			name: "duplicate-hash",
			opts: func(c *Config) {
				c.State = state.NewBlob()
				c.State.MarkSeen(signal.Hash(testutil.EPICSignal()))
			},
			outcome: OutcomeSkipped,
			reason:  ReasonDuplicate,
		},
		{
			name:    "breaker-open",
			opts:    func(c *Config) { c.Breaker = &stubBreaker{allow: false} },
			outcome: OutcomeSkipped,
			reason:  ReasonBreaker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []func(*Config){}
			if tt.opts != nil {
				opts = append(opts, tt.opts)
			}
			h := newHarness(t, opts...)

			msg := h.message(testutil.EPICSignalText)
			if tt.msg != nil {
				msg = tt.msg(h)
			}

			d := h.engine.Admit(context.Background(), msg)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.outcome != OutcomePlaced {
				assert.Empty(t, h.ex.Placed())
			}
		})
	}
}

func TestAdmit_DuplicateAcrossMessages(t *testing.T) {
	h := newHarness(t)
	h.placeEPIC(t)

	h.clock.Advance(time.Minute)
	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.Equal(t, ReasonDuplicate, d.Reason)
	assert.Len(t, h.ex.Placed(), 1)
	assert.Len(t, h.engine.Trades(), 1)
}

func TestAdmit_BreakerBlockDoesNotMarkSeen(t *testing.T) {
	breaker := &stubBreaker{allow: false}
	h := newHarness(t, func(c *Config) { c.Breaker = breaker })

	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	require.Equal(t, ReasonBreaker, d.Reason)

	breaker.mu.Lock()
	breaker.allow = true
	breaker.mu.Unlock()

	h.clock.Advance(time.Second)
	d = h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, OutcomePlaced, d.Outcome)
}

type panickingBreaker struct{}

func (panickingBreaker) Allow() bool { panic("breaker state corrupt") }

func (panickingBreaker) RecordTrade(float64) {}

func TestHandleMessage_PanicRecovered(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Breaker = panickingBreaker{} })

	core, logs := observer.New(zapcore.InfoLevel)
	h.engine.logger = zap.New(core)

	assert.NotPanics(t, func() {
		h.engine.HandleMessage(context.Background(), h.message(testutil.EPICSignalText))
	})
	require.Equal(t, 1, logs.FilterMessage("handler-panic").Len())
	assert.Equal(t, "signal", logs.FilterMessage("handler-panic").All()[0].ContextMap()["path"])

	h.engine.breaker = &stubBreaker{allow: true}
	h.clock.Advance(time.Second)
	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, OutcomePlaced, d.Outcome, "engine lock released after recovery")
}

func TestAdmit_TooFarMarksSeen(t *testing.T) {
	h := newHarness(t)
	h.ex.SetPrice("EPICUSDT", 0.5800)

	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.Equal(t, orders.SkipTooFar, d.Reason)
	assert.Empty(t, h.engine.Trades())
	assert.Equal(t, 0, h.engine.TradesToday())

	h.ex.SetPrice("EPICUSDT", 0.5900)
	h.clock.Advance(time.Second)
	d = h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, ReasonDuplicate, d.Reason)
}

func TestAdmit_EntryFailure(t *testing.T) {
	h := newHarness(t)
	h.ex.FailNext(testutil.MethodPlaceOrder, 1, nil)

	d := h.engine.Admit(context.Background(), h.message(testutil.EPICSignalText))
	assert.Equal(t, OutcomeFailed, d.Outcome)
	require.ErrorIs(t, d.Err, testutil.ErrInjected)
	assert.Empty(t, h.engine.Trades())
	assert.Equal(t, 0, h.engine.TradesToday())
}

func TestAdmit_TradeIDCollision(t *testing.T) {
	h := newHarness(t)
	h.placeEPIC(t)

	d := h.engine.Admit(context.Background(), h.message(longSignalText("EPIC", 0.5904, 0.6)))
	assert.Equal(t, OutcomePlaced, d.Outcome)

	// Same symbol, side and second as the first trade.
	d = h.engine.Admit(context.Background(), h.message(
		"📉 Short\nName: EPIC/USDT\n\n↪️ Entry price(USDT):\n0.5905\n\nTargets(USDT):\n1) 0.58\n"))
	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.Equal(t, ReasonDuplicate, d.Reason)
	assert.Len(t, h.engine.Trades(), 2)
}

func TestHandleMessage(t *testing.T) {
	h := newHarness(t)

	h.engine.HandleMessage(context.Background(), h.message(testutil.EPICSignalText))
	h.engine.HandleMessage(context.Background(), h.message("not a signal"))

	assert.Len(t, h.engine.Trades(), 1)
}
