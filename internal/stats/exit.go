package stats

import (
	"fmt"
	"math"
)

// ExitInput is what the exit classifier looks at.
type ExitInput struct {
	PnL             *float64
	TPFills         int
	TPCount         int
	TrailingStarted bool
	SLMovedToBE     bool
}

// ClassifyExit names why a trade closed. The first matching rule wins.
// Breakeven requires |pnl| below epsilon.
func ClassifyExit(in ExitInput, epsilon float64) string {
	if in.PnL == nil {
		return ExitUnknown
	}
	pnl := *in.PnL

	switch {
	case in.TrailingStarted && pnl > 0:
		return ExitTrailingStop
	case in.TPCount > 0 && in.TPFills >= in.TPCount:
		return ExitAllTargets
	case in.TPFills > 0 && in.SLMovedToBE && math.Abs(pnl) < epsilon:
		return ExitBreakeven
	case in.TPFills > 0:
		return fmt.Sprintf("tp%d_then_sl", in.TPFills)
	case pnl < 0:
		return ExitStopLoss
	default:
		return ExitUnknown
	}
}
