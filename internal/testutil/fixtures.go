package testutil

import (
	"sync"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
)

// EPICSignalText is a feed message in the channel's format.
const EPICSignalText = `📉 Short
Name: EPIC/USDT
Margin mode: Cross (10X)

↪️ Entry price(USDT):
0.5904

Targets(USDT):
1) 0.5845
2) 0.5786
3) 0.5727
4) 0.5668
5) 🚀🚀🚀`

// EPICSignal returns the parsed form of EPICSignalText.
func EPICSignal() *types.Signal {
	return &types.Signal{
		Base:     "EPIC",
		Symbol:   "EPICUSDT",
		Side:     types.SignalSell,
		Trigger:  0.5904,
		TPPrices: []float64{0.5845, 0.5786, 0.5727, 0.5668},
		Raw:      EPICSignalText,
	}
}

// LongSignal returns a buy signal for symbol.
func LongSignal(symbol string, trigger float64, targets ...float64) *types.Signal {
	return &types.Signal{
		Base:     symbol[:len(symbol)-4],
		Symbol:   symbol,
		Side:     types.SignalBuy,
		Trigger:  trigger,
		TPPrices: targets,
	}
}

// StairCandles returns n candles with lows and highs spread around mid.
func StairCandles(n int, mid, spreadPct float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		off := mid * spreadPct / 100 * float64(i+1) / float64(n)
		out[i] = types.Candle{
			Start: time.Unix(int64(i)*3600, 0),
			Open:  mid,
			High:  mid + off,
			Low:   mid - off,
			Close: mid,
		}
	}
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock fixed at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
