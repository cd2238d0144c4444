package types

// SignalSide is the direction carried by a parsed signal.
type SignalSide string

const (
	SignalBuy  SignalSide = "buy"
	SignalSell SignalSide = "sell"
)

// MaxTargets is the number of take-profit targets taken from a signal.
const MaxTargets = 4

// Signal is a normalized trade instruction produced by the parser.
type Signal struct {
	Base     string     `json:"base"`
	Symbol   string     `json:"symbol"`
	Side     SignalSide `json:"side"`
	Trigger  float64    `json:"trigger"`
	TPPrices []float64  `json:"tp_prices"`
	Raw      string     `json:"raw,omitempty"`
}

// OrderSide maps the signal direction to the entry order side.
func (s *Signal) OrderSide() Side {
	if s.Side == SignalSell {
		return SideSell
	}
	return SideBuy
}
