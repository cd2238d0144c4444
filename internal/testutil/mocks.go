package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
)

// Method names accepted by FakeExchange.FailNext.
const (
	MethodPlaceOrder     = "PlaceOrder"
	MethodCancelOrder    = "CancelOrder"
	MethodOpenOrders     = "OpenOrders"
	MethodPosition       = "Position"
	MethodPositions      = "Positions"
	MethodEquity         = "Equity"
	MethodInstrumentInfo = "InstrumentInfo"
	MethodCandles        = "Candles"
	MethodLastPrice      = "LastPrice"
	MethodSetLeverage    = "SetLeverage"
	MethodSetMarginMode  = "SetMarginMode"
	MethodSetTradingStop = "SetTradingStop"
	MethodClosedPnL      = "ClosedPnL"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("injected failure")

type injected struct {
	times int
	err   error
}

// FakeExchange is an in-memory exchange that records every call.
type FakeExchange struct {
	mu sync.Mutex

	equity      float64
	prices      map[string]float64
	instruments map[string]*types.InstrumentInfo
	candles     map[string][]types.Candle
	positions   map[string]types.Position
	openOrders  map[string]types.Order
	closedPnL   map[string][]types.ClosedPnL
	failures    map[string]*injected
	calls       map[string]int
	nextID      int

	placed    []types.OrderRequest
	cancelled []string
	stops     []types.TradingStop
	pnlSince  []time.Time
}

// NewFakeExchange creates an empty fake exchange.
func NewFakeExchange() *FakeExchange {
	return &FakeExchange{
		prices:      make(map[string]float64),
		instruments: make(map[string]*types.InstrumentInfo),
		candles:     make(map[string][]types.Candle),
		positions:   make(map[string]types.Position),
		openOrders:  make(map[string]types.Order),
		closedPnL:   make(map[string][]types.ClosedPnL),
		failures:    make(map[string]*injected),
		calls:       make(map[string]int),
	}
}

// SetEquity sets the wallet equity.
func (f *FakeExchange) SetEquity(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.equity = v
}

// SetPrice sets the last traded price for symbol.
func (f *FakeExchange) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// SetInstrument sets the rounding rules for symbol.
func (f *FakeExchange) SetInstrument(symbol string, qtyStep, minQty, tick float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instruments[symbol] = &types.InstrumentInfo{Symbol: symbol, QtyStep: qtyStep, MinOrderQty: minQty, TickSize: tick}
}

// SetCandles sets the kline window returned for symbol.
func (f *FakeExchange) SetCandles(symbol string, candles []types.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = candles
}

// SetPosition sets the position for symbol. A zero size means flat.
func (f *FakeExchange) SetPosition(symbol string, size, avgPrice float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		delete(f.positions, symbol)
		return
	}
	f.positions[symbol] = types.Position{Symbol: symbol, Side: "Buy", Size: size, AvgPrice: avgPrice}
}

// SetPositionDetail stores a full position snapshot.
func (f *FakeExchange) SetPositionDetail(p types.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[p.Symbol] = p
}

// AddClosedPnL appends a realized PnL record for symbol.
func (f *FakeExchange) AddClosedPnL(symbol string, pnl float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedPnL[symbol] = append(f.closedPnL[symbol], types.ClosedPnL{Symbol: symbol, ClosedPnL: pnl, CreatedAt: at})
}

// FailNext makes the next n calls to method return err (ErrInjected if nil).
func (f *FakeExchange) FailNext(method string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failures[method] = &injected{times: n, err: err}
}

// FillOrder removes the open order with clientOrderID and returns its execution event.
func (f *FakeExchange) FillOrder(clientOrderID string, price float64) (types.ExecutionEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.openOrders {
		if o.ClientOrderID == clientOrderID {
			delete(f.openOrders, id)
			return types.ExecutionEvent{
				Symbol:        o.Symbol,
				OrderID:       id,
				ClientOrderID: clientOrderID,
				Side:          o.Side,
				ExecPrice:     price,
				ExecQty:       o.Qty,
				ExecTime:      time.Now(),
			}, true
		}
	}
	return types.ExecutionEvent{}, false
}

// RemoveOpenOrder drops an open order without an execution event.
func (f *FakeExchange) RemoveOpenOrder(clientOrderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.openOrders {
		if o.ClientOrderID == clientOrderID {
			delete(f.openOrders, id)
		}
	}
}

// Calls returns how many times method was invoked.
func (f *FakeExchange) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Placed returns every submitted order request in submission order.
func (f *FakeExchange) Placed() []types.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.OrderRequest(nil), f.placed...)
}

// PlacedWithPrefix returns submitted orders whose client id starts with prefix.
func (f *FakeExchange) PlacedWithPrefix(prefix string) []types.OrderRequest {
	var out []types.OrderRequest
	for _, r := range f.Placed() {
		if strings.HasPrefix(r.ClientOrderID, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Cancelled returns the ids of cancelled orders.
func (f *FakeExchange) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// Stops returns every trading-stop update in call order.
func (f *FakeExchange) Stops() []types.TradingStop {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TradingStop(nil), f.stops...)
}

// OpenOrderCount returns the number of resting orders.
func (f *FakeExchange) OpenOrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.openOrders)
}

// PnLQueries returns the since argument of every closed-PnL query.
func (f *FakeExchange) PnLQueries() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.pnlSince...)
}

// call records an invocation and returns an injected error if armed. Caller holds mu.
func (f *FakeExchange) call(method string) error {
	f.calls[method]++
	inj, ok := f.failures[method]
	if !ok || inj.times == 0 {
		return nil
	}
	inj.times--
	return inj.err
}

// PlaceOrder records the request and rests it as an open order.
func (f *FakeExchange) PlaceOrder(_ context.Context, req *types.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodPlaceOrder); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	f.placed = append(f.placed, *req)
	f.openOrders[id] = types.Order{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Qty:           req.Qty,
		Status:        "New",
	}
	return id, nil
}

// CancelOrder removes a resting order.
func (f *FakeExchange) CancelOrder(_ context.Context, _ string, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodCancelOrder); err != nil {
		return err
	}
	delete(f.openOrders, orderID)
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

// OpenOrders lists resting orders for symbol ordered by id.
func (f *FakeExchange) OpenOrders(_ context.Context, symbol string) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodOpenOrders); err != nil {
		return nil, err
	}
	var out []types.Order
	for _, o := range f.openOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// Position returns the position for symbol, nil when flat.
func (f *FakeExchange) Position(_ context.Context, symbol string) (*types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodPosition); err != nil {
		return nil, err
	}
	p, ok := f.positions[symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Positions returns all non-flat positions ordered by symbol.
func (f *FakeExchange) Positions(_ context.Context) ([]types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodPositions); err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Equity returns the wallet equity.
func (f *FakeExchange) Equity(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodEquity); err != nil {
		return 0, err
	}
	return f.equity, nil
}

// InstrumentInfo returns the configured rules, or nil to exercise defaults.
func (f *FakeExchange) InstrumentInfo(_ context.Context, symbol string) (*types.InstrumentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodInstrumentInfo); err != nil {
		return nil, err
	}
	return f.instruments[symbol], nil
}

// Candles returns the configured kline window.
func (f *FakeExchange) Candles(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodCandles); err != nil {
		return nil, err
	}
	c := f.candles[symbol]
	if limit > 0 && len(c) > limit {
		c = c[:limit]
	}
	return append([]types.Candle(nil), c...), nil
}

// LastPrice returns the configured last price.
func (f *FakeExchange) LastPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodLastPrice); err != nil {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}
	return p, nil
}

// SetLeverage records the call.
func (f *FakeExchange) SetLeverage(_ context.Context, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call(MethodSetLeverage)
}

// SetMarginMode records the call.
func (f *FakeExchange) SetMarginMode(_ context.Context, _ string, _ bool, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call(MethodSetMarginMode)
}

// SetTradingStop records the update.
func (f *FakeExchange) SetTradingStop(_ context.Context, stop *types.TradingStop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodSetTradingStop); err != nil {
		return err
	}
	f.stops = append(f.stops, *stop)
	return nil
}

// ClosedPnL returns records for symbol created at or after since, newest first.
func (f *FakeExchange) ClosedPnL(_ context.Context, symbol string, since time.Time, limit int) ([]types.ClosedPnL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(MethodClosedPnL); err != nil {
		return nil, err
	}
	f.pnlSince = append(f.pnlSince, since)
	var out []types.ClosedPnL
	for _, r := range f.closedPnL[symbol] {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
