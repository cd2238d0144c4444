package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleBlob() *Blob {
	b := NewBlob()
	sl := 0.6028
	placed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	b.OpenTrades["EPICUSDT|sell|1769940000"] = &types.Trade{
		ID:          "EPICUSDT|sell|1769940000",
		Symbol:      "EPICUSDT",
		OrderSide:   types.SideSell,
		PosSide:     types.PositionShort,
		Trigger:     0.5904,
		TPPrices:    []float64{0.5845, 0.5786},
		SLPrice:     &sl,
		Status:      types.StatusOpen,
		PlacedAt:    placed,
		FilledAt:    placed.Add(time.Minute),
		TPOrderIDs:  map[int]string{1: "ord-1", 2: "ord-2"},
		TPFills:     []int{1},
		SLMovedToBE: true,
	}
	b.AppendHistory(types.ArchivedTrade{ID: "old", Symbol: "BTCUSDT", ExitReason: "stop_loss"})
	b.IncDaily("2026-02-01")
	b.MarkSeen("abc")
	return b
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), zaptest.NewLogger(t))

	b, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.OpenTrades)
	assert.Empty(t, b.TradeHistory)
	assert.NotNil(t, b.DailyCounts)
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path, zaptest.NewLogger(t))
	ctx := context.Background()

	want := sampleBlob()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)

	trade := got.OpenTrades["EPICUSDT|sell|1769940000"]
	require.NotNil(t, trade)
	assert.Equal(t, types.StatusOpen, trade.Status)
	assert.Equal(t, map[int]string{1: "ord-1", 2: "ord-2"}, trade.TPOrderIDs)
	assert.Equal(t, []int{1}, trade.TPFills)
	require.NotNil(t, trade.SLPrice)
	assert.InDelta(t, 0.6028, *trade.SLPrice, 1e-12)
	assert.True(t, trade.PlacedAt.Equal(want.OpenTrades[trade.ID].PlacedAt))

	assert.Len(t, got.TradeHistory, 1)
	assert.Equal(t, 1, got.DailyCount("2026-02-01"))
	assert.True(t, got.Seen("abc"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path, zaptest.NewLogger(t)).Load(context.Background())
	require.Error(t, err)
}

func TestFileStore_SaveIntoMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "state.json")
	err := NewFileStore(path, zaptest.NewLogger(t)).Save(context.Background(), NewBlob())
	require.Error(t, err)
}
