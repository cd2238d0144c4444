package stoploss

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubCandles struct {
	candles []types.Candle
	err     error
}

func (s *stubCandles) Candles(_ context.Context, _, _ string, _ int) ([]types.Candle, error) {
	return s.candles, s.err
}

func window(lows, highs []float64) []types.Candle {
	out := make([]types.Candle, len(lows))
	for i := range lows {
		out[i] = types.Candle{Low: lows[i], High: highs[i]}
	}
	return out
}

func newCalc(t *testing.T, src CandleSource) *Calculator {
	t.Helper()
	return New(&Config{
		Candles:     src,
		Interval:    "60",
		Lookback:    24,
		BufferPct:   0.2,
		MinPct:      1.5,
		MaxPct:      5,
		FallbackPct: 5,
		Logger:      zaptest.NewLogger(t),
	})
}

func TestClamp_DistanceProperty(t *testing.T) {
	const minPct, maxPct = 1.5, 5.0
	entry := 100.0

	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		for _, d := range []float64{0.2, 0.9, 1.2, 1.49, 1.51, 2.5, 3.7, 4.99, 5.01, 6, 8.5} {
			raw := Fallback(side, entry, d)
			res := Clamp(side, entry, raw, minPct, maxPct)

			want := math.Max(minPct, math.Min(maxPct, d))
			assert.InDelta(t, want, DistancePct(side, entry, res.Price), 1e-9,
				"side=%s d=%.2f", side, d)

			if d < minPct || d > maxPct {
				assert.NotEqual(t, raw, res.Price, "out-of-band raw stop must not be kept")
			}
		}
	}
}

func TestClamp_Sources(t *testing.T) {
	tests := []struct {
		name   string
		side   types.Side
		raw    float64
		source string
		price  float64
	}{
		{name: "long-too-tight", side: types.SideBuy, raw: 99.5, source: SourceClampMin, price: 98.5},
		{name: "long-too-wide", side: types.SideBuy, raw: 90, source: SourceClampMax, price: 95},
		{name: "long-in-band", side: types.SideBuy, raw: 97, source: SourceStructure, price: 97},
		{name: "short-too-tight", side: types.SideSell, raw: 100.5, source: SourceClampMin, price: 101.5},
		{name: "short-too-wide", side: types.SideSell, raw: 110, source: SourceClampMax, price: 105},
		{name: "short-in-band", side: types.SideSell, raw: 103, source: SourceStructure, price: 103},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Clamp(tt.side, 100, tt.raw, 1.5, 5)
			assert.Equal(t, tt.source, res.Source)
			assert.InDelta(t, tt.price, res.Price, 1e-9)
		})
	}
}

func TestCalculator_Compute(t *testing.T) {
	lows := []float64{98, 97.5, 96, 97, 98.2}
	highs := []float64{101, 102, 103, 101.5, 100.9}

	t.Run("long-uses-min-low", func(t *testing.T) {
		c := newCalc(t, &stubCandles{candles: window(lows, highs)})

		res, err := c.Compute(context.Background(), "BTCUSDT", types.SideBuy, 100)
		require.NoError(t, err)

		assert.Equal(t, SourceStructure, res.Source)
		assert.InDelta(t, 96*(1-0.002), res.Price, 1e-9)
	})

	t.Run("short-uses-max-high", func(t *testing.T) {
		c := newCalc(t, &stubCandles{candles: window(lows, highs)})

		res, err := c.Compute(context.Background(), "BTCUSDT", types.SideSell, 100)
		require.NoError(t, err)

		assert.Equal(t, SourceStructure, res.Source)
		assert.InDelta(t, 103*1.002, res.Price, 1e-9)
	})

	t.Run("too-few-candles", func(t *testing.T) {
		c := newCalc(t, &stubCandles{candles: window(lows[:4], highs[:4])})

		_, err := c.Compute(context.Background(), "BTCUSDT", types.SideBuy, 100)
		assert.ErrorIs(t, err, types.ErrInsufficientCandles)
	})

	t.Run("fetch-error", func(t *testing.T) {
		c := newCalc(t, &stubCandles{err: errors.New("kline 500")})

		_, err := c.Compute(context.Background(), "BTCUSDT", types.SideBuy, 100)
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrInsufficientCandles)
	})
}

func TestCalculator_StopFallsBack(t *testing.T) {
	c := newCalc(t, &stubCandles{candles: nil})

	res := c.Stop(context.Background(), "EPICUSDT", types.SideSell, 0.5904)

	assert.Equal(t, SourceFallback, res.Source)
	assert.InDelta(t, 0.5904*1.05, res.Price, 1e-12)
	assert.InDelta(t, 5.0, res.DistancePct, 1e-9)
}

func TestDistancePct_ZeroEntry(t *testing.T) {
	assert.Equal(t, 0.0, DistancePct(types.SideBuy, 0, 10))
}
