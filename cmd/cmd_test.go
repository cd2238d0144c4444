package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/internal/stats"
	"github.com/mselser95/signal-bot/internal/testutil"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPositionRows(t *testing.T) {
	sl := 0.6028
	trades := map[string]*types.Trade{
		"EPICUSDT|sell|1": {
			ID:      "EPICUSDT|sell|1",
			Symbol:  "EPICUSDT",
			Status:  types.StatusOpen,
			SLPrice: &sl,
			TPFills: []int{1},
		},
		"BTCUSDT|buy|1": {
			ID:     "BTCUSDT|buy|1",
			Symbol: "BTCUSDT",
			Status: types.StatusClosed,
		},
	}
	positions := []types.Position{
		{Symbol: "EPICUSDT", Side: "Sell", Size: 338, AvgPrice: 0.591, UnrealisedPnL: 2.5},
		{Symbol: "BTCUSDT", Side: "Buy", Size: 0.01, AvgPrice: 65000, UnrealisedPnL: -3},
	}

	rows := buildPositionRows(positions, trades)
	require.Len(t, rows, 2)

	assert.Equal(t, "BTCUSDT", rows[0].Symbol, "untracked positions sort first")
	assert.False(t, rows[0].Tracked)
	assert.Empty(t, rows[0].TradeID)

	assert.Equal(t, "EPICUSDT", rows[1].Symbol)
	assert.True(t, rows[1].Tracked)
	assert.Equal(t, "EPICUSDT|sell|1", rows[1].TradeID)
	assert.Equal(t, 1, rows[1].TPFills)
	assert.InDelta(t, 0.6028, rows[1].StopLoss, 1e-9)

	untracked := filterUntracked(rows)
	require.Len(t, untracked, 1)
	assert.Equal(t, "BTCUSDT", untracked[0].Symbol)
}

func TestWritePositions(t *testing.T) {
	rows := []PositionRow{
		{Symbol: "BTCUSDT", Side: "Buy", Size: 0.01, AvgPrice: 65000, UnrealisedPnL: -3},
		{Symbol: "EPICUSDT", Side: "Sell", Size: 338, AvgPrice: 0.591, UnrealisedPnL: 2.5, Tracked: true, TradeID: "t1"},
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePositions(&buf, "table", rows))
		out := buf.String()
		assert.Contains(t, out, "Positions (1 tracked, 1 untracked)")
		assert.Contains(t, out, "UNTRACKED")
		assert.Contains(t, out, "trade=t1 tp_fills=0 sl=none")
		assert.Contains(t, out, "Total unrealised PnL: -$0.50")
	})

	t.Run("empty-table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePositions(&buf, "table", nil))
		assert.Equal(t, "No positions found\n", buf.String())
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePositions(&buf, "csv", rows))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "symbol,side,size,avg_price,unrealised_pnl,tracked,trade_id,tp_fills,stop_loss", lines[0])
		assert.Equal(t, "EPICUSDT,Sell,338,0.591,2.5,true,t1,0,0", lines[2])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePositions(&buf, "json", rows))
		var decoded []PositionRow
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, rows, decoded)
	})
}

func TestWriteStats(t *testing.T) {
	periods := []stats.Summary{
		{PeriodDays: 7},
		{PeriodDays: 0, TotalTrades: 2, Wins: 1, Losses: 1, WinRate: 50, TotalPnL: 2.25, AvgPnL: 1.13,
			BestTrade: 6.75, WorstTrade: -4.5, AvgTPFills: 2, TrailingExits: 1, SLExits: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, writeStats(&buf, "table", periods))
	out := buf.String()

	assert.Contains(t, out, "7d\n")
	assert.Contains(t, out, "No closed trades")
	assert.Contains(t, out, "all-time\n")
	assert.Contains(t, out, "Trades: 2 (1 wins, 1 losses) | Win rate: 50.0%")
	assert.Contains(t, out, "Total PnL: +$2.25 | Avg: +$1.13 | Best: +$6.75 | Worst: -$4.50")
	assert.Contains(t, out, "Exits: 1 trailing, 1 stop loss, 0 breakeven")
}

func TestSignedUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 6.75, want: "+$6.75"},
		{in: -4.5, want: "-$4.50"},
		{in: 0, want: "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, signedUSD(tt.in))
		})
	}
}

func TestParseSignalCommand(t *testing.T) {
	parseQuote = "usdt"
	t.Cleanup(func() { parseQuote = "" })

	t.Run("stdin", func(t *testing.T) {
		c := &cobra.Command{}
		var out bytes.Buffer
		c.SetIn(strings.NewReader(testutil.EPICSignalText))
		c.SetOut(&out)

		require.NoError(t, runParseSignal(c, nil))

		var got struct {
			Symbol   string    `json:"symbol"`
			Side     string    `json:"side"`
			Trigger  float64   `json:"trigger"`
			TPPrices []float64 `json:"tp_prices"`
			Raw      string    `json:"raw"`
			Hash     string    `json:"hash"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, "EPICUSDT", got.Symbol)
		assert.Equal(t, "sell", got.Side)
		assert.InDelta(t, 0.5904, got.Trigger, 1e-9)
		assert.Equal(t, []float64{0.5845, 0.5786, 0.5727, 0.5668}, got.TPPrices)
		assert.Empty(t, got.Raw)
		assert.Len(t, got.Hash, 32)
	})

	t.Run("not-a-signal", func(t *testing.T) {
		c := &cobra.Command{}
		var errOut bytes.Buffer
		c.SetOut(&bytes.Buffer{})
		c.SetErr(&errOut)

		err := runParseSignal(c, []string{"gm", "everyone"})
		require.Error(t, err)
		assert.Empty(t, errOut.String())
	})

	t.Run("resembles-a-signal", func(t *testing.T) {
		c := &cobra.Command{}
		var errOut bytes.Buffer
		c.SetOut(&bytes.Buffer{})
		c.SetErr(&errOut)

		err := runParseSignal(c, []string{"Long", "Name:", "nothing", "else"})
		require.Error(t, err)
		assert.Contains(t, errOut.String(), "could not be parsed")
	})
}
