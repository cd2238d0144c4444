package instruments

import (
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/shopspring/decimal"
)

// Fallbacks used when the exchange omits a filter field.
const (
	DefaultQtyStep  = 0.000001
	DefaultMinQty   = 0.0
	DefaultTickSize = 0.0001
)

// Rules are the rounding constraints for one symbol.
type Rules struct {
	QtyStep  float64
	MinQty   float64
	TickSize float64
}

// RulesFromInfo converts exchange metadata, filling in missing fields.
func RulesFromInfo(info *types.InstrumentInfo) Rules {
	r := Rules{QtyStep: DefaultQtyStep, MinQty: DefaultMinQty, TickSize: DefaultTickSize}
	if info == nil {
		return r
	}
	if info.QtyStep > 0 {
		r.QtyStep = info.QtyStep
	}
	if info.MinOrderQty > 0 {
		r.MinQty = info.MinOrderQty
	}
	if info.TickSize > 0 {
		r.TickSize = info.TickSize
	}
	return r
}

// FloorQty rounds qty down to a multiple of QtyStep.
func (r Rules) FloorQty(qty float64) float64 {
	if r.QtyStep <= 0 {
		return qty
	}
	step := decimal.NewFromFloat(r.QtyStep)
	return decimal.NewFromFloat(qty).Div(step).Floor().Mul(step).InexactFloat64()
}

// RoundQty floors qty to the step and lifts it to MinQty.
func (r Rules) RoundQty(qty float64) float64 {
	q := r.FloorQty(qty)
	if q < r.MinQty {
		return r.MinQty
	}
	return q
}

// RoundPrice rounds price to the nearest tick.
func (r Rules) RoundPrice(price float64) float64 {
	if r.TickSize <= 0 {
		return price
	}
	tick := decimal.NewFromFloat(r.TickSize)
	return decimal.NewFromFloat(price).Div(tick).Round(0).Mul(tick).InexactFloat64()
}

// Fraction returns pct percent of size floored to the step.
func (r Rules) Fraction(size, pct float64) float64 {
	part := decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return r.FloorQty(part.InexactFloat64())
}

// AddQty sums two quantities and floors the result to the step.
func (r Rules) AddQty(a, b float64) float64 {
	return r.FloorQty(decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64())
}
