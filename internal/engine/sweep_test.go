package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/signal-bot/internal/notify"
	"github.com/mselser95/signal-bot/internal/orders"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/internal/storage"
	"github.com/mselser95/signal-bot/internal/testutil"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweep_ExpiresStaleEntry(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)

	h.clock.Advance(30 * time.Minute)
	h.engine.Sweep(context.Background())
	assert.Equal(t, types.StatusPending, h.trade(t, id).Status)

	h.clock.Advance(time.Second)
	h.engine.Sweep(context.Background())

	tr := h.trade(t, id)
	assert.Equal(t, types.StatusExpired, tr.Status)
	assert.Equal(t, h.clock.Now(), tr.ClosedAt)
	assert.Equal(t, []string{"ord-1"}, h.ex.Cancelled())
	assert.Equal(t, 0, h.ex.OpenOrderCount())
	assert.Empty(t, h.notifier.Closed())
}

func TestSweep_ExpiryCancelErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status types.TradeStatus
	}{
		{name: "transient-error-retries", err: testutil.ErrInjected, status: types.StatusPending},
		{name: "order-already-gone", err: &types.APIError{Code: types.CodeOrderNotExists, Message: "order not exists"}, status: types.StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.placeEPIC(t)

			h.ex.FailNext(testutil.MethodCancelOrder, 1, tt.err)
			h.clock.Advance(31 * time.Minute)
			h.engine.Sweep(context.Background())
			assert.Equal(t, tt.status, h.trade(t, id).Status)

			h.engine.Sweep(context.Background())
			assert.Equal(t, types.StatusExpired, h.trade(t, id).Status)
		})
	}
}

func TestSweep_ExpiredEntryWithPositionOpens(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)

	h.clock.Advance(45 * time.Minute)
	h.ex.SetPosition("EPICUSDT", 338, 0.5912)
	h.engine.Sweep(context.Background())

	tr := h.trade(t, id)
	assert.Equal(t, types.StatusOpen, tr.Status)
	assert.InDelta(t, 0.5912, tr.EntryPrice, 1e-9)
	assert.Empty(t, h.ex.Cancelled())
}

func TestSweep_PollsFill(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)

	h.clock.Advance(2 * time.Minute)
	h.ex.SetPosition("EPICUSDT", 338, 0.5912)
	h.engine.Sweep(context.Background())

	tr := h.trade(t, id)
	assert.Equal(t, types.StatusOpen, tr.Status)
	assert.InDelta(t, 0.5912, tr.EntryPrice, 1e-9)
	assert.Equal(t, h.clock.Now(), tr.FilledAt)
	assert.True(t, tr.PostOrdersPlaced)
	assert.Len(t, h.notifier.Opened(), 1)

	// A late push for the same fill changes nothing.
	h.engine.OnExecution(context.Background(), types.ExecutionEvent{ClientOrderID: id, ExecPrice: 0.5910})
	assert.InDelta(t, 0.5912, h.trade(t, id).EntryPrice, 1e-9)
	assert.Len(t, h.notifier.Opened(), 1)
}

func TestSweep_ClosureSettlesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)
	filled := h.clock.Now()

	h.clock.Advance(10 * time.Minute)
	h.ex.SetPosition("EPICUSDT", 0, 0)
	h.ex.AddClosedPnL("EPICUSDT", 50, filled.Add(-30*time.Second))
	h.ex.AddClosedPnL("EPICUSDT", -4.5, h.clock.Now())

	h.engine.Sweep(context.Background())
	h.engine.Sweep(context.Background())

	tr := h.trade(t, id)
	assert.Equal(t, types.StatusClosed, tr.Status)
	assert.Equal(t, h.clock.Now(), tr.ClosedAt)
	require.NotNil(t, tr.RealizedPnL)
	assert.InDelta(t, -4.5, *tr.RealizedPnL, 1e-9)
	assert.False(t, tr.IsWin)
	assert.Equal(t, stats.ExitStopLoss, tr.ExitReason)

	assert.Equal(t, []time.Time{filled.Add(-time.Minute)}, h.ex.PnLQueries())
	assert.Len(t, h.notifier.Closed(), 1)
	assert.Equal(t, 0, h.ex.OpenOrderCount())
}

func TestSweep_ClosureExitReasons(t *testing.T) {
	tests := []struct {
		name   string
		tps    int
		pnl    *float64
		fail   bool
		reason string
	}{
		{name: "pnl-unavailable", fail: true, reason: stats.ExitUnknown},
		{name: "breakeven-after-tp1", tps: 1, pnl: ptr(0.004), reason: stats.ExitBreakeven},
		{name: "tp2-then-stop", tps: 2, pnl: ptr(1.5), reason: "tp2_then_sl"},
		{name: "stop-loss", pnl: ptr(-3), reason: stats.ExitStopLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.placeEPIC(t)
			h.fill(t, id, 0.5910)
			prices := []float64{0.5845, 0.5786}
			for i := 1; i <= tt.tps; i++ {
				h.fillTP(t, id, i, prices[i-1])
			}

			h.clock.Advance(time.Minute)
			h.ex.SetPosition("EPICUSDT", 0, 0)
			if tt.pnl != nil {
				h.ex.AddClosedPnL("EPICUSDT", *tt.pnl, h.clock.Now())
			}
			if tt.fail {
				h.ex.FailNext(testutil.MethodClosedPnL, 1, nil)
			}

			h.engine.Sweep(context.Background())

			tr := h.trade(t, id)
			assert.Equal(t, types.StatusClosed, tr.Status)
			assert.Equal(t, tt.reason, tr.ExitReason)
			if tt.fail {
				assert.Nil(t, tr.RealizedPnL)
			}
		})
	}
}

func TestSweep_ClosureExports(t *testing.T) {
	sink := storage.NewConsoleStorage(zap.NewNop())
	rec := &recordingStorage{Storage: sink}
	h := newHarness(t, func(c *Config) { c.Exports = rec })
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)

	h.ex.SetPosition("EPICUSDT", 0, 0)
	h.ex.AddClosedPnL("EPICUSDT", -2, h.clock.Now())
	h.engine.Sweep(context.Background())

	require.Len(t, rec.trades, 1)
	exp := rec.trades[0]
	assert.Equal(t, id, exp.ID)
	assert.NotEmpty(t, exp.ExportID)
	assert.InDelta(t, 0.5910*338/10, exp.MarginUsed, 1e-9)
	assert.InDelta(t, 1000, exp.EquityAtClose, 1e-9)
}

func TestSweep_ArchivesAfterRetention(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)
	h.ex.SetPosition("EPICUSDT", 0, 0)
	h.ex.AddClosedPnL("EPICUSDT", 2, h.clock.Now())
	h.engine.Sweep(context.Background())

	h.clock.Advance(time.Hour)
	h.engine.Sweep(context.Background())
	_, ok := h.engine.Trade(id)
	assert.True(t, ok)

	h.clock.Advance(time.Second)
	h.engine.Sweep(context.Background())
	_, ok = h.engine.Trade(id)
	assert.False(t, ok)

	hist := h.engine.History()
	require.Len(t, hist, 1)
	assert.Equal(t, id, hist[0].ID)
	assert.Equal(t, types.PositionShort, hist[0].Side)
	assert.Equal(t, 4, hist[0].TPCount)
	assert.InDelta(t, 2, hist[0].PnL(), 1e-9)
}

func TestSweep_ArchivesExpiredEntry(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)

	h.clock.Advance(31 * time.Minute)
	h.engine.Sweep(context.Background())
	h.clock.Advance(time.Hour + time.Second)
	h.engine.Sweep(context.Background())

	hist := h.engine.History()
	require.Len(t, hist, 1)
	assert.Equal(t, id, hist[0].ID)
	assert.Nil(t, hist[0].RealizedPnL)
}

func TestSweep_BreakevenFallback(t *testing.T) {
	tests := []struct {
		name    string
		trigger func(h *harness, id string)
	}{
		{
			name:    "tp1-order-gone",
			trigger: func(h *harness, id string) { h.ex.RemoveOpenOrder(orders.TakeProfitClientID(id, 1)) },
		},
		{
			name:    "price-crossed-tp1",
			trigger: func(h *harness, _ string) { h.ex.SetPrice("EPICUSDT", 0.5840) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.placeEPIC(t)
			h.fill(t, id, 0.5910)

			h.engine.Sweep(context.Background())
			assert.False(t, h.trade(t, id).SLMovedToBE)

			tt.trigger(h, id)
			h.engine.Sweep(context.Background())

			tr := h.trade(t, id)
			assert.True(t, tr.HasTakeProfit(1))
			assert.True(t, tr.SLMovedToBE)
			stops := h.ex.Stops()
			assert.InDelta(t, 0.5910, stops[len(stops)-1].StopLoss, 1e-9)
		})
	}
}

func TestSweep_BreakevenRetriedAfterPushFailure(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)

	h.ex.FailNext(testutil.MethodSetTradingStop, 3, nil)
	h.fillTP(t, id, 1, 0.5845)

	tr := h.trade(t, id)
	assert.True(t, tr.HasTakeProfit(1))
	assert.False(t, tr.SLMovedToBE)

	h.engine.Sweep(context.Background())
	assert.True(t, h.trade(t, id).SLMovedToBE)
}

func TestSweep_TrailingRetriedAfterPushFailure(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TrailAfterTPIndex = 2 })
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)
	h.fillTP(t, id, 1, 0.5845)

	h.ex.FailNext(testutil.MethodSetTradingStop, 3, nil)
	h.fillTP(t, id, 2, 0.5786)
	assert.False(t, h.trade(t, id).TrailingStarted)

	h.engine.Sweep(context.Background())

	assert.True(t, h.trade(t, id).TrailingStarted)
	stops := h.ex.Stops()
	last := stops[len(stops)-1]
	assert.InDelta(t, 0.0029, last.TrailingStop, 1e-9)
}

func TestSweep_PositionAlerts(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Alerts = notify.NewAlertTracker([]float64{-50, -25}) })
	id := h.placeEPIC(t)
	h.fill(t, id, 0.5910)

	// Short at 0.5910, 10x: 0.6100 is about -32% ROE.
	h.ex.SetPrice("EPICUSDT", 0.6100)
	h.engine.Sweep(context.Background())
	h.engine.Sweep(context.Background())

	alerts := h.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.InDelta(t, -25, alerts[0].Threshold, 1e-9)
	assert.Equal(t, id, alerts[0].TradeID)

	h.ex.SetPrice("EPICUSDT", 0.6250)
	h.engine.Sweep(context.Background())

	alerts = h.notifier.Alerts()
	require.Len(t, alerts, 2)
	assert.InDelta(t, -50, alerts[1].Threshold, 1e-9)
}

type panickingExchange struct {
	*testutil.FakeExchange
}

func (panickingExchange) Position(context.Context, string) (*types.Position, error) {
	panic("boom")
}

func TestSweep_StepPanicIsolated(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)
	h.engine.exchange = panickingExchange{h.ex}

	core, logs := observer.New(zapcore.InfoLevel)
	h.engine.logger = zap.New(core)

	saves := h.store.Saves()
	h.engine.Sweep(context.Background())

	assert.Equal(t, types.StatusPending, h.trade(t, id).Status)
	assert.Equal(t, 1, logs.FilterMessage("sweep-step-panic").Len())
	assert.Equal(t, 1, logs.FilterMessage("heartbeat").Len())
	assert.Equal(t, saves+1, h.store.Saves())
	assert.Equal(t, 1, h.marks.count())
}

func TestSweep_SaveFailureKeepsMemoryState(t *testing.T) {
	h := newHarness(t)
	id := h.placeEPIC(t)
	h.store.FailSaves(testutil.ErrInjected)

	h.ex.SetPosition("EPICUSDT", 338, 0.5910)
	h.engine.Sweep(context.Background())

	assert.Equal(t, types.StatusOpen, h.trade(t, id).Status)
}

func TestSweep_HeartbeatAndDailyStats(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.InfoLevel)
	h.engine.logger = zap.New(core)

	h.placeEPIC(t)
	h.engine.Sweep(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("heartbeat").Len())
	assert.Equal(t, 0, logs.FilterMessage("daily-stats").Len())

	h.clock.Advance(time.Minute)
	h.engine.Sweep(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("heartbeat").Len())

	h.clock.Advance(10 * time.Minute)
	h.engine.Sweep(context.Background())
	assert.Equal(t, 2, logs.FilterMessage("heartbeat").Len())

	h.clock.Advance(24 * time.Hour)
	h.engine.Sweep(context.Background())
	daily := logs.FilterMessage("daily-stats").All()
	require.Len(t, daily, 1)
	assert.Equal(t, "2026-03-02", daily[0].ContextMap()["day"])
	assert.EqualValues(t, 1, daily[0].ContextMap()["trades"])
}

func ptr(v float64) *float64 {
	return &v
}

type recordingStorage struct {
	storage.Storage
	trades []*types.TradeExport
}

func (r *recordingStorage) StoreTrade(ctx context.Context, t *types.TradeExport) error {
	r.trades = append(r.trades, t)
	return r.Storage.StoreTrade(ctx, t)
}
