package types

import "time"

// Order types and time-in-force values used by the engine.
const (
	OrderTypeLimit = "Limit"
	TimeInForceGTC = "GTC"
)

// OrderRequest is a new-order submission.
type OrderRequest struct {
	Symbol        string
	Side          Side
	OrderType     string
	Qty           float64
	Price         float64
	TimeInForce   string
	ReduceOnly    bool
	ClientOrderID string
}

// Order is an open order as reported by the exchange.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         float64
	Qty           float64
	Status        string
}

// Position is an exchange position snapshot.
type Position struct {
	Symbol        string
	Side          string
	Size          float64
	AvgPrice      float64
	UnrealisedPnL float64
}

// Candle is one kline bucket.
type Candle struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// InstrumentInfo carries the exchange rounding rules for a symbol.
type InstrumentInfo struct {
	Symbol      string
	QtyStep     float64
	MinOrderQty float64
	TickSize    float64
}

// TradingStop updates position-level protection. Zero fields are left unchanged.
type TradingStop struct {
	Symbol       string
	StopLoss     float64
	TrailingStop float64
	ActivePrice  float64
}

// ClosedPnL is one realized PnL record.
type ClosedPnL struct {
	Symbol    string
	OrderID   string
	ClosedPnL float64
	CreatedAt time.Time
}

// ExecutionEvent is a fill pushed by the exchange's private stream.
type ExecutionEvent struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
	Side          Side
	ExecPrice     float64
	ExecQty       float64
	ExecTime      time.Time
}
