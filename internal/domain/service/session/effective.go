package session

import (
	"fmt"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/errcodes"
)

// itemState is the running pricing state of one item while the modification
// log is replayed over the frozen snapshot.
type itemState struct {
	margin  decimal.Decimal
	final   decimal.Decimal
	removed bool
}

// effectiveItems replays the modification log over the frozen snapshot and
// produces the final budget items in the order the packages were added.
// Items removed by REMOVE_PACKAGE are dropped.
func (m *Manager) effectiveItems(snapshot *entity.SessionSnapshot, ruleSet *entity.RuleSet) ([]entity.BudgetItem, error) {
	states := make(map[string]itemState, len(snapshot.DataSnapshot))

	for id, record := range snapshot.DataSnapshot {
		state, err := m.initialState(snapshot, record, ruleSet)
		if err != nil {
			return nil, err
		}

		states[id] = state
	}

	for _, mod := range snapshot.Modifications {
		state, ok := states[mod.ItemID]
		if !ok {
			continue
		}

		states[mod.ItemID] = applyModification(snapshot.DataSnapshot[mod.ItemID], state, mod)
	}

	items := make([]entity.BudgetItem, 0, len(snapshot.ItemOrder))

	for _, id := range snapshot.ItemOrder {
		state := states[id]
		if state.removed {
			continue
		}

		items = append(items, entity.BudgetItem{
			Record:     snapshot.DataSnapshot[id].Clone(),
			FinalPrice: state.final,
			MarginPct:  state.margin,
		})
	}

	return items, nil
}

// initialState prices an item before any manual modification: the rule set
// supplies the base margin and any automatic discounts.
func (m *Manager) initialState(snapshot *entity.SessionSnapshot, record entity.PackageRecord, ruleSet *entity.RuleSet) (itemState, error) {
	ctx := m.packageContext(snapshot, record)

	margin, err := m.engine.CalculateMargin(ruleSet, ctx)
	if err != nil {
		return itemState{}, err
	}

	final := record.Price.Mul(decimal.NewFromInt(1).Add(margin))

	final, err = m.engine.ApplyDiscounts(ruleSet, ctx, final)
	if err != nil {
		return itemState{}, err
	}

	return itemState{margin: margin, final: final}, nil
}

func applyModification(record entity.PackageRecord, state itemState, mod entity.Modification) itemState {
	switch mod.Type {
	case entity.ModificationSetMargin:
		state.margin = mod.Value
		state.final = record.Price.Mul(decimal.NewFromInt(1).Add(mod.Value))

	case entity.ModificationSetFinalPrice:
		state.final = mod.Value
		state.margin = marginFromFinal(record.Price, mod.Value)

	case entity.ModificationApplyDiscount:
		state.final = state.final.Sub(state.final.Mul(mod.Value))
		state.margin = marginFromFinal(record.Price, state.final)

	case entity.ModificationRemovePackage:
		state.removed = true
	}

	return state
}

func marginFromFinal(base, final decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}

	return final.Sub(base).Div(base)
}

// packageContext exposes the frozen record and the session's temporal frame
// to the rule engine.
func (m *Manager) packageContext(snapshot *entity.SessionSnapshot, record entity.PackageRecord) rules.Context {
	now := m.now()

	return rules.Context{
		PackageData: map[string]any{
			"package_id":   record.ID,
			"provider_id":  record.ProviderID,
			"price":        record.Price.InexactFloat64(),
			"currency":     record.Currency,
			"availability": record.Availability,
			"category":     record.Details.Category(),
			"season":       record.Details[value.DetailSeason],
			"rating":       record.Details.Rating(),
		},
		TemporalData: map[string]any{
			"month":         int(now.Month()),
			"weekday":       now.Weekday().String(),
			"session_start": snapshot.StartedAt.Format("2006-01-02"),
		},
	}
}

// modificationContext describes the proposed change for critical-rule
// validation: the rules see both the package and the pricing state the item
// would have after the modification is applied.
func (m *Manager) modificationContext(
	snapshot *entity.SessionSnapshot,
	record entity.PackageRecord,
	mod entity.Modification,
	ruleSet *entity.RuleSet,
) (rules.Context, error) {
	state, err := m.initialState(snapshot, record, ruleSet)
	if err != nil {
		return rules.Context{}, err
	}

	for _, prior := range snapshot.Modifications {
		if prior.ItemID == mod.ItemID {
			state = applyModification(record, state, prior)
		}
	}

	if state.removed {
		return rules.Context{}, domain.NewError(errcodes.InvalidModification,
			fmt.Sprintf("item %s was already removed from the session", mod.ItemID))
	}

	proposed := applyModification(record, state, mod)

	ctx := m.packageContext(snapshot, record)
	ctx.Modification = map[string]any{
		"type":              string(mod.Type),
		"item_id":           mod.ItemID,
		"value":             mod.Value.InexactFloat64(),
		"margin_percentage": proposed.margin.InexactFloat64(),
		"final_price":       proposed.final.InexactFloat64(),
	}

	return ctx, nil
}
