package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/testutil"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrphans(t *testing.T) {
	trades := map[string]*types.Trade{
		"a": {ID: "a", Symbol: "EPICUSDT", Status: types.StatusOpen},
		"b": {ID: "b", Symbol: "BTCUSDT", Status: types.StatusClosed},
		"c": {ID: "c", Symbol: "ETHUSDT", Status: types.StatusPending},
	}
	positions := []types.Position{
		{Symbol: "BTCUSDT", Size: 0.01},
		{Symbol: "EPICUSDT", Size: 338},
		{Symbol: "ETHUSDT", Size: 0.5},
		{Symbol: "SOLUSDT", Size: 0},
	}

	orphans := FindOrphans(positions, trades)

	require.Len(t, orphans, 1)
	assert.Equal(t, "BTCUSDT", orphans[0].Symbol)
}

func TestStartupSync(t *testing.T) {
	blob := state.NewBlob()
	blob.OpenTrades["a"] = &types.Trade{ID: "a", Symbol: "EPICUSDT", Status: types.StatusOpen}
	pnl := 1.0
	blob.AppendHistory(types.ArchivedTrade{ID: "old", ClosedAt: t0.Add(-24 * time.Hour), RealizedPnL: &pnl, IsWin: true})

	h := newHarness(t, func(c *Config) { c.State = blob })
	h.ex.SetPosition("EPICUSDT", 338, 0.5910)
	h.ex.SetPosition("BTCUSDT", 0.01, 60000)

	report, err := h.engine.StartupSync(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Positions, 2)
	require.Len(t, report.Orphans, 1)
	assert.Equal(t, "BTCUSDT", report.Orphans[0].Symbol)
	assert.Empty(t, h.ex.Cancelled())
	assert.Empty(t, h.ex.Placed())
}

func TestStartupSync_PositionsError(t *testing.T) {
	h := newHarness(t)
	h.ex.FailNext(testutil.MethodPositions, 1, nil)

	_, err := h.engine.StartupSync(context.Background())
	require.ErrorIs(t, err, testutil.ErrInjected)
}
