package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_SeenHashesFIFO(t *testing.T) {
	b := NewBlob()

	for i := 0; i < MaxSeenHashes+10; i++ {
		b.MarkSeen(fmt.Sprintf("h%d", i))
	}

	assert.Len(t, b.SeenSignalHashes, MaxSeenHashes)
	assert.False(t, b.Seen("h0"))
	assert.False(t, b.Seen("h9"))
	assert.True(t, b.Seen("h10"))
	assert.True(t, b.Seen(fmt.Sprintf("h%d", MaxSeenHashes+9)))
}

func TestBlob_MarkSeenIdempotent(t *testing.T) {
	b := NewBlob()
	b.MarkSeen("a")
	b.MarkSeen("a")
	assert.Equal(t, []string{"a"}, b.SeenSignalHashes)
}

func TestBlob_HistoryCap(t *testing.T) {
	b := NewBlob()
	for i := 0; i < MaxHistory+5; i++ {
		b.AppendHistory(types.ArchivedTrade{ID: fmt.Sprintf("t%d", i)})
	}

	require.Len(t, b.TradeHistory, MaxHistory)
	assert.Equal(t, "t5", b.TradeHistory[0].ID)
	assert.Equal(t, fmt.Sprintf("t%d", MaxHistory+4), b.TradeHistory[MaxHistory-1].ID)
}

func TestBlob_DailyCounts(t *testing.T) {
	b := NewBlob()
	day := DayKey(time.Date(2026, 1, 2, 23, 30, 0, 0, time.FixedZone("x", -3*3600)))

	assert.Equal(t, "2026-01-03", day)
	assert.Equal(t, 1, b.IncDaily(day))
	assert.Equal(t, 2, b.IncDaily(day))
	assert.Equal(t, 2, b.DailyCount(day))
	assert.Zero(t, b.DailyCount("2026-01-04"))
}

func TestBlob_ActiveTrades(t *testing.T) {
	b := NewBlob()
	b.OpenTrades["a"] = &types.Trade{ID: "a", Status: types.StatusPending}
	b.OpenTrades["b"] = &types.Trade{ID: "b", Status: types.StatusOpen}
	b.OpenTrades["c"] = &types.Trade{ID: "c", Status: types.StatusClosed}
	b.OpenTrades["d"] = &types.Trade{ID: "d", Status: types.StatusExpired}

	assert.Equal(t, 2, b.ActiveTrades())
}
