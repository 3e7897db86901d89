package reconstruction

import (
	"fmt"

	"travel_budget/internal/domain"
	"travel_budget/pkg/errcodes"
)

// Strategy selects how item prices are recomputed when the provider data
// under a finalized budget has moved.
type Strategy string

const (
	// StrategyPreserveMargin keeps the margin percentage; the client price
	// follows the provider price.
	StrategyPreserveMargin Strategy = "PRESERVE_MARGIN"

	// StrategyPreservePrice keeps the client price; the margin absorbs the
	// whole provider move.
	StrategyPreservePrice Strategy = "PRESERVE_PRICE"

	// StrategyAdjustProportionally splits the provider move between the
	// client price and the margin.
	StrategyAdjustProportionally Strategy = "ADJUST_PROPORTIONALLY"

	// StrategyBestAlternative replaces a degraded item with a strictly
	// better-scoring offer from the alternatives pool.
	StrategyBestAlternative Strategy = "BEST_ALTERNATIVE"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPreserveMargin, StrategyPreservePrice,
		StrategyAdjustProportionally, StrategyBestAlternative:
		return Strategy(s), nil
	default:
		return "", domain.NewError(errcodes.InvalidStrategy,
			fmt.Sprintf("unknown reconstruction strategy %q", s))
	}
}
