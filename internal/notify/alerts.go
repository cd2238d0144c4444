package notify

import (
	"sort"
	"sync"

	"github.com/mselser95/signal-bot/pkg/types"
)

// ROE is the leveraged return on margin in percent for a position entered
// at entry on side, marked at current.
func ROE(side types.Side, entry, current float64, leverage int) float64 {
	if entry <= 0 {
		return 0
	}
	move := (current - entry) / entry * 100
	if side == types.SideSell {
		move = -move
	}
	return move * float64(leverage)
}

// AlertTracker fires each loss threshold at most once per trade.
type AlertTracker struct {
	mu         sync.Mutex
	thresholds []float64
	fired      map[string]map[float64]struct{}
}

// NewAlertTracker creates a tracker for the given ROE thresholds, e.g. -25, -50.
func NewAlertTracker(thresholds []float64) *AlertTracker {
	ts := append([]float64(nil), thresholds...)
	sort.Sort(sort.Reverse(sort.Float64Slice(ts)))
	return &AlertTracker{
		thresholds: ts,
		fired:      make(map[string]map[float64]struct{}),
	}
}

// Check returns the thresholds newly crossed by roe for tradeID, nearest first.
func (a *AlertTracker) Check(tradeID string, roe float64) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var crossed []float64
	for _, th := range a.thresholds {
		if roe > th {
			continue
		}
		seen := a.fired[tradeID]
		if seen == nil {
			seen = make(map[float64]struct{})
			a.fired[tradeID] = seen
		}
		if _, ok := seen[th]; ok {
			continue
		}
		seen[th] = struct{}{}
		crossed = append(crossed, th)
	}
	return crossed
}

// Clear forgets the fired thresholds of tradeID.
func (a *AlertTracker) Clear(tradeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.fired, tradeID)
}
