package types

import (
	"slices"
	"time"
)

// Side is the order side on the exchange.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide returns the position direction opened by an order on side s.
func (s Side) PositionSide() PositionSide {
	if s == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "Long"
	PositionShort PositionSide = "Short"
)

// TradeStatus is the lifecycle state of a trade.
// Valid edges: pending -> open, pending -> expired, open -> closed.
type TradeStatus string

const (
	StatusPending TradeStatus = "pending"
	StatusOpen    TradeStatus = "open"
	StatusClosed  TradeStatus = "closed"
	StatusExpired TradeStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s TradeStatus) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// Trade is the record kept for every accepted signal.
//
// Status and the milestone flags are only changed through the transition
// methods below. Each one returns false when the transition is not allowed
// or has already happened, which makes repeated delivery of the same event
// (websocket duplicate, sweep re-detection) a no-op.
type Trade struct {
	ID            string       `json:"id"`
	Symbol        string       `json:"symbol"`
	OrderSide     Side         `json:"order_side"`
	PosSide       PositionSide `json:"pos_side"`
	Trigger       float64      `json:"trigger"`
	TPPrices      []float64    `json:"tp_prices"`
	SLPrice       *float64     `json:"sl_price"`
	SLDistancePct float64      `json:"sl_distance_pct,omitempty"`
	EntryOrderID  string       `json:"entry_order_id"`
	EntryPrice    float64      `json:"entry_price,omitempty"`
	BaseQty       float64      `json:"base_qty"`
	Raw           string       `json:"raw,omitempty"`

	Status   TradeStatus `json:"status"`
	PlacedAt time.Time   `json:"placed_ts"`
	FilledAt time.Time   `json:"filled_ts"`
	ClosedAt time.Time   `json:"closed_ts"`

	PostOrdersPlaced bool           `json:"post_orders_placed"`
	TPOrderIDs       map[int]string `json:"tp_order_ids,omitempty"`
	TPFills          []int          `json:"tp_fills_list,omitempty"`
	SLMovedToBE      bool           `json:"sl_moved_to_be"`
	TrailingStarted  bool           `json:"trailing_started"`

	RealizedPnL *float64 `json:"realized_pnl"`
	IsWin       bool     `json:"is_win"`
	ExitReason  string   `json:"exit_reason,omitempty"`
}

// NewPendingTrade builds the record for an entry order that was just submitted.
func NewPendingTrade(id string, sig *Signal, entryOrderID string, qty float64, placedAt time.Time) *Trade {
	side := sig.OrderSide()
	return &Trade{
		ID:           id,
		Symbol:       sig.Symbol,
		OrderSide:    side,
		PosSide:      side.PositionSide(),
		Trigger:      sig.Trigger,
		TPPrices:     slices.Clone(sig.TPPrices),
		EntryOrderID: entryOrderID,
		BaseQty:      qty,
		Raw:          sig.Raw,
		Status:       StatusPending,
		PlacedAt:     placedAt,
	}
}

// Active reports whether the trade still holds, or may still acquire, exchange risk.
func (t *Trade) Active() bool {
	return t.Status == StatusPending || t.Status == StatusOpen
}

// Open moves a pending trade to open. A non-positive fill price falls back to the trigger.
func (t *Trade) Open(fillPrice float64, at time.Time) bool {
	if t.Status != StatusPending {
		return false
	}
	if fillPrice <= 0 {
		fillPrice = t.Trigger
	}
	t.Status = StatusOpen
	t.EntryPrice = fillPrice
	t.FilledAt = at
	return true
}

// Expire moves an unfilled pending trade to expired.
func (t *Trade) Expire(at time.Time) bool {
	if t.Status != StatusPending {
		return false
	}
	t.Status = StatusExpired
	t.ClosedAt = at
	return true
}

// Close moves an open trade to closed.
func (t *Trade) Close(at time.Time) bool {
	if t.Status != StatusOpen {
		return false
	}
	t.Status = StatusClosed
	t.ClosedAt = at
	return true
}

// MarkPostOrdersPlaced records that protective orders were submitted.
func (t *Trade) MarkPostOrdersPlaced() bool {
	if t.Status != StatusOpen || t.PostOrdersPlaced {
		return false
	}
	t.PostOrdersPlaced = true
	return true
}

// RecordTakeProfit adds a 1-based TP index to the fill list.
func (t *Trade) RecordTakeProfit(idx int) bool {
	if t.Status != StatusOpen || idx < 1 || t.HasTakeProfit(idx) {
		return false
	}
	t.TPFills = append(t.TPFills, idx)
	return true
}

// HasTakeProfit reports whether TP idx was recorded as filled.
func (t *Trade) HasTakeProfit(idx int) bool {
	return slices.Contains(t.TPFills, idx)
}

// TPFillCount returns the number of distinct TP fills.
func (t *Trade) TPFillCount() int {
	return len(t.TPFills)
}

// MarkBreakeven records that the stop was moved to the entry price. TP1 must be filled.
func (t *Trade) MarkBreakeven() bool {
	if t.Status != StatusOpen || t.SLMovedToBE || !t.HasTakeProfit(1) {
		return false
	}
	t.SLMovedToBE = true
	be := t.BreakevenPrice()
	t.SLPrice = &be
	return true
}

// MarkTrailing records that the trailing stop was armed after TP tpIdx filled.
func (t *Trade) MarkTrailing(tpIdx int) bool {
	if t.Status != StatusOpen || t.TrailingStarted || !t.HasTakeProfit(tpIdx) {
		return false
	}
	t.TrailingStarted = true
	return true
}

// SetStopLoss stores the protective stop chosen for the position.
func (t *Trade) SetStopLoss(price, distancePct float64) {
	t.SLPrice = &price
	t.SLDistancePct = distancePct
}

// SetTakeProfitOrder stores the exchange order id for TP idx.
func (t *Trade) SetTakeProfitOrder(idx int, orderID string) {
	if t.TPOrderIDs == nil {
		t.TPOrderIDs = make(map[int]string)
	}
	t.TPOrderIDs[idx] = orderID
}

// BreakevenPrice is the recorded fill price, or the trigger if no fill price is known.
func (t *Trade) BreakevenPrice() float64 {
	if t.EntryPrice > 0 {
		return t.EntryPrice
	}
	return t.Trigger
}

// Settle stores the closing result. pnl is nil when it could not be fetched.
func (t *Trade) Settle(pnl *float64, reason string) {
	t.RealizedPnL = pnl
	t.IsWin = pnl != nil && *pnl > 0
	t.ExitReason = reason
}

// RetentionAnchor is the time a terminal trade's retention age is measured from.
func (t *Trade) RetentionAnchor() time.Time {
	if !t.ClosedAt.IsZero() {
		return t.ClosedAt
	}
	return t.PlacedAt
}

// Clone returns a deep copy safe to hand outside the engine lock.
func (t *Trade) Clone() *Trade {
	c := *t
	c.TPPrices = slices.Clone(t.TPPrices)
	c.TPFills = slices.Clone(t.TPFills)
	if t.SLPrice != nil {
		v := *t.SLPrice
		c.SLPrice = &v
	}
	if t.RealizedPnL != nil {
		v := *t.RealizedPnL
		c.RealizedPnL = &v
	}
	if t.TPOrderIDs != nil {
		c.TPOrderIDs = make(map[int]string, len(t.TPOrderIDs))
		for k, v := range t.TPOrderIDs {
			c.TPOrderIDs[k] = v
		}
	}
	return &c
}

// ArchivedTrade is the summary kept in trade history after a trade is evicted.
type ArchivedTrade struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Side         PositionSide `json:"side"`
	EntryPrice   float64      `json:"entry_price"`
	Trigger      float64      `json:"trigger"`
	PlacedAt     time.Time    `json:"placed_ts"`
	FilledAt     time.Time    `json:"filled_ts"`
	ClosedAt     time.Time    `json:"closed_ts"`
	RealizedPnL  *float64     `json:"realized_pnl"`
	IsWin        bool         `json:"is_win"`
	ExitReason   string       `json:"exit_reason"`
	TPFills      int          `json:"tp_fills"`
	TPCount      int          `json:"tp_count"`
	TrailingUsed bool         `json:"trailing_used"`
}

// Archive summarizes the trade for history.
func (t *Trade) Archive() ArchivedTrade {
	a := ArchivedTrade{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Side:         t.PosSide,
		EntryPrice:   t.EntryPrice,
		Trigger:      t.Trigger,
		PlacedAt:     t.PlacedAt,
		FilledAt:     t.FilledAt,
		ClosedAt:     t.ClosedAt,
		IsWin:        t.IsWin,
		ExitReason:   t.ExitReason,
		TPFills:      t.TPFillCount(),
		TPCount:      len(t.TPPrices),
		TrailingUsed: t.TrailingStarted,
	}
	if t.RealizedPnL != nil {
		v := *t.RealizedPnL
		a.RealizedPnL = &v
	}
	return a
}

// PnL returns the realized PnL or zero when unknown.
func (a ArchivedTrade) PnL() float64 {
	if a.RealizedPnL == nil {
		return 0
	}
	return *a.RealizedPnL
}

// TradeExport is the per-trade record handed to export sinks when a trade closes.
type TradeExport struct {
	ArchivedTrade
	ExportID      string  `json:"export_id"`
	MarginUsed    float64 `json:"margin_used"`
	EquityAtClose float64 `json:"equity_at_close"`
}
