package orders

import (
	"fmt"

	"github.com/mselser95/signal-bot/internal/instruments"
	"github.com/mselser95/signal-bot/pkg/types"
)

// Take-profit plan modes.
const (
	PlanSplit  = "split"
	PlanSingle = "single"
	PlanNone   = "none"
)

// singleTakeProfitPct sizes the degraded single TP, leaving a 10% runner.
const singleTakeProfitPct = 90.0

// FallbackTargetPcts is the ladder used when a signal carries no targets.
var FallbackTargetPcts = []float64{1, 2, 3, 4} //nolint:gochecknoglobals // constant ladder

// TakeProfitOrder is one planned reduce-only exit.
type TakeProfitOrder struct {
	Index         int // 1-based TP number
	Price         float64
	Qty           float64
	ClientOrderID string
}

// TakeProfitPlan is the outcome of apportioning a position across targets.
type TakeProfitPlan struct {
	Mode   string
	Orders []TakeProfitOrder
	// DroppedPct is split percentage skipped for being below minimum with no
	// later eligible target to absorb it.
	DroppedPct float64
}

// TakeProfitClientID is the client order id for TP idx of a trade.
func TakeProfitClientID(tradeID string, idx int) string {
	return fmt.Sprintf("%s:TP%d", tradeID, idx)
}

// BuildTakeProfits apportions size across targets using splits.
//
// When the combined split allocation rounds below the exchange minimum, a
// single TP1 at the last target for 90% of size is planned instead, or
// nothing if that is also below minimum. Otherwise each split whose rounded
// quantity is below minimum is skipped and its percentage is added to the
// next eligible split.
func BuildTakeProfits(tradeID string, size float64, targets, splits []float64, rules instruments.Rules) TakeProfitPlan {
	n := len(targets)
	if len(splits) < n {
		n = len(splits)
	}
	if n == 0 || size <= 0 {
		return TakeProfitPlan{Mode: PlanNone}
	}

	splitSum := 0.0
	for _, s := range splits[:n] {
		splitSum += s
	}

	eligible := func(qty float64) bool {
		return qty > 0 && qty >= rules.MinQty
	}

	if !eligible(rules.Fraction(size, splitSum)) {
		qty := rules.Fraction(size, singleTakeProfitPct)
		if !eligible(qty) {
			return TakeProfitPlan{Mode: PlanNone}
		}
		return TakeProfitPlan{
			Mode: PlanSingle,
			Orders: []TakeProfitOrder{{
				Index:         1,
				Price:         rules.RoundPrice(targets[len(targets)-1]),
				Qty:           qty,
				ClientOrderID: TakeProfitClientID(tradeID, 1),
			}},
		}
	}

	plan := TakeProfitPlan{Mode: PlanSplit}
	carried := 0.0
	for i := 0; i < n; i++ {
		pct := splits[i]
		if pct <= 0 {
			continue
		}

		qty := rules.Fraction(size, pct)
		if !eligible(qty) {
			carried += pct
			continue
		}

		if carried > 0 {
			qty = rules.AddQty(qty, rules.Fraction(size, carried))
			carried = 0
		}

		plan.Orders = append(plan.Orders, TakeProfitOrder{
			Index:         i + 1,
			Price:         rules.RoundPrice(targets[i]),
			Qty:           qty,
			ClientOrderID: TakeProfitClientID(tradeID, i+1),
		})
	}
	plan.DroppedPct = carried

	return plan
}

// FallbackTargets builds a 1/2/3/4% target ladder in the profitable direction.
func FallbackTargets(side types.Side, entry float64, rules instruments.Rules) []float64 {
	out := make([]float64, 0, len(FallbackTargetPcts))
	for _, pct := range FallbackTargetPcts {
		tp := entry * (1 + pct/100)
		if side == types.SideSell {
			tp = entry * (1 - pct/100)
		}
		out = append(out, rules.RoundPrice(tp))
	}
	return out
}
