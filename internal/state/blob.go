// Package state holds the process-wide trading state and its durable stores.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/pkg/types"
)

// Bounds on the retained collections.
const (
	MaxHistory    = 500
	MaxSeenHashes = 500
)

// Store persists the whole blob as a single unit.
type Store interface {
	// Load returns the stored blob, or an empty one if nothing was saved yet.
	Load(ctx context.Context) (*Blob, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, b *Blob) error

	// Close releases the store.
	Close() error
}

// Blob is the complete recoverable state of the engine.
type Blob struct {
	OpenTrades       map[string]*types.Trade `json:"open_trades"`
	TradeHistory     []types.ArchivedTrade   `json:"trade_history"`
	DailyCounts      map[string]int          `json:"daily_counts"`
	SeenSignalHashes []string                `json:"seen_signal_hashes"`

	seen map[string]struct{}
}

// NewBlob returns an empty blob.
func NewBlob() *Blob {
	b := &Blob{}
	b.normalize()
	return b
}

// Decode parses a stored blob and restores its invariants.
func Decode(data []byte) (*Blob, error) {
	b := &Blob{}
	err := json.Unmarshal(data, b)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	b.normalize()
	return b, nil
}

// normalize fills nil collections, enforces bounds and rebuilds the hash index.
func (b *Blob) normalize() {
	if b.OpenTrades == nil {
		b.OpenTrades = make(map[string]*types.Trade)
	}
	if b.DailyCounts == nil {
		b.DailyCounts = make(map[string]int)
	}
	if b.TradeHistory == nil {
		b.TradeHistory = []types.ArchivedTrade{}
	}
	if b.SeenSignalHashes == nil {
		b.SeenSignalHashes = []string{}
	}
	if len(b.TradeHistory) > MaxHistory {
		b.TradeHistory = b.TradeHistory[len(b.TradeHistory)-MaxHistory:]
	}
	if len(b.SeenSignalHashes) > MaxSeenHashes {
		b.SeenSignalHashes = b.SeenSignalHashes[len(b.SeenSignalHashes)-MaxSeenHashes:]
	}

	b.seen = make(map[string]struct{}, len(b.SeenSignalHashes))
	for _, h := range b.SeenSignalHashes {
		b.seen[h] = struct{}{}
	}
}

// Seen reports whether hash is in the recent-signal set.
func (b *Blob) Seen(hash string) bool {
	_, ok := b.seen[hash]
	return ok
}

// MarkSeen adds hash to the recent-signal set, evicting the oldest entry
// once the set is full.
func (b *Blob) MarkSeen(hash string) {
	if b.Seen(hash) {
		return
	}
	b.SeenSignalHashes = append(b.SeenSignalHashes, hash)
	b.seen[hash] = struct{}{}

	for len(b.SeenSignalHashes) > MaxSeenHashes {
		delete(b.seen, b.SeenSignalHashes[0])
		b.SeenSignalHashes = b.SeenSignalHashes[1:]
	}
}

// AppendHistory archives a trade summary, dropping the oldest beyond MaxHistory.
func (b *Blob) AppendHistory(a types.ArchivedTrade) {
	b.TradeHistory = append(b.TradeHistory, a)
	if len(b.TradeHistory) > MaxHistory {
		b.TradeHistory = b.TradeHistory[len(b.TradeHistory)-MaxHistory:]
	}
}

// History returns a copy of the archived trades.
func (b *Blob) History() []types.ArchivedTrade {
	return append([]types.ArchivedTrade(nil), b.TradeHistory...)
}

// IncDaily increments and returns the count for day.
func (b *Blob) IncDaily(day string) int {
	b.DailyCounts[day]++
	return b.DailyCounts[day]
}

// DailyCount returns the count for day.
func (b *Blob) DailyCount(day string) int {
	return b.DailyCounts[day]
}

// ActiveTrades returns the number of pending or open trades.
func (b *Blob) ActiveTrades() int {
	n := 0
	for _, t := range b.OpenTrades {
		if t.Active() {
			n++
		}
	}
	return n
}

// DayKey is the UTC calendar-day key used by DailyCounts.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
