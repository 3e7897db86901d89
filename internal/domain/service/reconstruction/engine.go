package reconstruction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/detector"
	"travel_budget/pkg/contextx"
	"travel_budget/pkg/errcodes"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Config tunes pricing reconstruction. SplitRatio is the share of a provider
// price move passed on to the client under ADJUST_PROPORTIONALLY (the rest
// is absorbed by the margin). MarginFloorPct is the fraction the margin is
// never adjusted below.
type Config struct {
	SplitRatio     decimal.Decimal
	MarginFloorPct decimal.Decimal
	Weights        ScoreWeights
}

func DefaultConfig() Config {
	return Config{
		SplitRatio:     decimal.NewFromFloat(0.5),
		MarginFloorPct: decimal.NewFromFloat(0.05),
		Weights:        DefaultScoreWeights(),
	}
}

// Input is one reconstruction request: the fresh provider state keyed by
// item id plus the candidate pool for BEST_ALTERNATIVE substitution.
type Input struct {
	Fresh        map[string]entity.PackageRecord
	Alternatives []entity.PackageRecord
	Strategy     Strategy
}

// Engine rebuilds budget versions after provider data under a finalized
// budget has moved. Reconstruct never edits an existing version; it appends
// a new one carrying the full item snapshot and the change log that explains
// it.
type Engine struct {
	cfg      Config
	detector *detector.Detector

	now   func() time.Time
	newID func() string
}

func NewEngine(cfg Config, d *detector.Detector) *Engine {
	return &Engine{
		cfg:      cfg,
		detector: d,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time and id sources. For tests.
func (e *Engine) WithClock(now func() time.Time, newID func() string) *Engine {
	e.now = now
	e.newID = newID
	return e
}

// Reconstruct compares the budget's current version against the fresh
// provider state and, when anything moved, appends a repriced version.
// Running it twice against the same fresh state is a no-op the second time.
// Warnings report margins pushed negative, items that could not be resolved
// and substitutions that found no better candidate.
func (e *Engine) Reconstruct(ctx context.Context, budget *entity.Budget, input Input) ([]entity.Warning, error) {
	current := budget.CurrentVersion()

	var (
		items    = make([]entity.BudgetItem, 0, len(current.Items))
		changes  []entity.BudgetChange
		warnings []entity.Warning
	)

	for _, item := range current.Items {
		rebuilt, itemChanges, itemWarnings, err := e.reconstructItem(budget.ID, item, input)
		if err != nil {
			return nil, err
		}

		items = append(items, rebuilt)
		changes = append(changes, itemChanges...)
		warnings = append(warnings, itemWarnings...)
	}

	if len(changes) == 0 {
		logger(ctx).Debug("budget already consistent with provider state",
			"budget_id", budget.ID,
			"version", current.VersionNumber,
		)

		return nil, nil
	}

	version := budget.AppendVersion(items, current.MarkupPct, changes, e.now())

	logger(ctx).Info("budget reconstructed",
		"budget_id", budget.ID,
		"version", version.VersionNumber,
		"strategy", string(input.Strategy),
		"changes", len(changes),
		"warnings", len(warnings),
	)

	return warnings, nil
}

func (e *Engine) reconstructItem(budgetID string, item entity.BudgetItem, input Input) (entity.BudgetItem, []entity.BudgetChange, []entity.Warning, error) {
	freshRec, present := input.Fresh[item.ItemID()]

	var freshPtr *entity.PackageRecord
	if present {
		freshPtr = &freshRec
	}

	detected := e.detector.DetectChanges(&item.Record, freshPtr)
	if len(detected) == 0 {
		return item, nil, nil, nil
	}

	if !present {
		return e.resolveRemoved(budgetID, item, input, detected)
	}

	if input.Strategy == StrategyBestAlternative && e.detector.IsSignificant(detected) {
		if substitute, ok := bestAlternative(e.cfg.Weights, freshRec, input.Alternatives); ok {
			rebuilt := e.substituteItem(item, substitute)

			detected = append(detected, entity.BudgetChange{
				Type:     entity.ChangePackageSubstituted,
				ItemID:   item.ItemID(),
				OldValue: item.Record.ID,
				NewValue: substitute.ID,
				Metadata: map[string]any{
					entity.MetaStrategy:     string(StrategyBestAlternative),
					entity.MetaOriginalItem: item.Record.ID,
					entity.MetaSelectedItem: substitute.ID,
				},
			})

			return rebuilt, detected, nil, nil
		}

		warning := e.warning(budgetID, item.ItemID(), entity.WarningNoBetterAlternative,
			"no alternative scores better than the current offer")

		rebuilt := e.reprice(item, freshRec, StrategyPreserveMargin)

		return rebuilt, detected, []entity.Warning{warning}, nil
	}

	rebuilt := e.reprice(item, freshRec, input.Strategy)

	var warnings []entity.Warning

	if rebuilt.MarginPct.IsNegative() {
		warnings = append(warnings, e.warning(budgetID, item.ItemID(), entity.WarningNegativeMargin,
			fmt.Sprintf("margin dropped to %s after repricing", rebuilt.MarginPct.StringFixed(4))))
	}

	return rebuilt, detected, warnings, nil
}

// resolveRemoved handles an item whose offer disappeared from the provider.
// Only BEST_ALTERNATIVE can recover by substitution; every other strategy
// has no price to work from and fails the whole reconstruction.
func (e *Engine) resolveRemoved(budgetID string, item entity.BudgetItem, input Input, detected []entity.BudgetChange) (entity.BudgetItem, []entity.BudgetChange, []entity.Warning, error) {
	if input.Strategy != StrategyBestAlternative {
		return entity.BudgetItem{}, nil, nil, domain.NewError(errcodes.UnresolvableItem,
			fmt.Sprintf("item %s no longer offered; strategy %s cannot reprice it", item.ItemID(), input.Strategy))
	}

	if substitute, ok := bestAlternative(e.cfg.Weights, item.Record, input.Alternatives); ok {
		rebuilt := e.substituteItem(item, substitute)

		detected = append(detected, entity.BudgetChange{
			Type:     entity.ChangePackageSubstituted,
			ItemID:   item.ItemID(),
			OldValue: item.Record.ID,
			NewValue: substitute.ID,
			Metadata: map[string]any{
				entity.MetaStrategy:     string(StrategyBestAlternative),
				entity.MetaOriginalItem: item.Record.ID,
				entity.MetaSelectedItem: substitute.ID,
			},
		})

		return rebuilt, detected, nil, nil
	}

	// The stale record stays in place so the budget remains presentable;
	// the warning flags it for manual follow-up.
	warning := e.warning(budgetID, item.ItemID(), entity.WarningItemUnresolved,
		"offer withdrawn by the provider and no substitute qualifies")

	return item, detected, []entity.Warning{warning}, nil
}

// substituteItem builds the replacement item, carrying the original margin
// percentage over to the substitute's price.
func (e *Engine) substituteItem(item entity.BudgetItem, substitute entity.PackageRecord) entity.BudgetItem {
	return entity.BudgetItem{
		Record:     substitute.Clone(),
		FinalPrice: substitute.Price.Mul(decimal.NewFromInt(1).Add(item.MarginPct)),
		MarginPct:  item.MarginPct,
	}
}

func (e *Engine) reprice(item entity.BudgetItem, fresh entity.PackageRecord, strategy Strategy) entity.BudgetItem {
	rebuilt := entity.BudgetItem{Record: fresh.Clone()}

	switch strategy {
	case StrategyPreserveMargin:
		rebuilt.MarginPct = item.MarginPct
		rebuilt.FinalPrice = fresh.Price.Mul(decimal.NewFromInt(1).Add(item.MarginPct))

	case StrategyPreservePrice:
		rebuilt.FinalPrice = item.FinalPrice
		if item.FinalPrice.IsZero() {
			rebuilt.MarginPct = decimal.Zero
		} else {
			rebuilt.MarginPct = item.FinalPrice.Sub(fresh.Price).Div(item.FinalPrice)
		}

	case StrategyAdjustProportionally:
		passedOn := fresh.Price.Sub(item.Record.Price).Mul(e.cfg.SplitRatio)
		rebuilt.FinalPrice = item.FinalPrice.Add(passedOn)

		if fresh.Price.IsZero() {
			rebuilt.MarginPct = decimal.Zero
		} else {
			rebuilt.MarginPct = rebuilt.FinalPrice.Sub(fresh.Price).Div(fresh.Price)
		}

		if rebuilt.MarginPct.LessThan(e.cfg.MarginFloorPct) {
			rebuilt.MarginPct = e.cfg.MarginFloorPct
			rebuilt.FinalPrice = fresh.Price.Mul(decimal.NewFromInt(1).Add(e.cfg.MarginFloorPct))
		}

	default:
		// ParseStrategy guards the API boundary; reaching this means a
		// programming error upstream, keep the item unchanged.
		return item
	}

	return rebuilt
}

func (e *Engine) warning(budgetID, itemID string, code entity.WarningCode, message string) entity.Warning {
	return entity.Warning{
		ID:        e.newID(),
		BudgetID:  budgetID,
		ItemID:    itemID,
		Code:      code,
		Message:   message,
		CreatedAt: e.now(),
	}
}
