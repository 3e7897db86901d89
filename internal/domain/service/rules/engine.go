package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/pkg/errcodes"
)

// Engine evaluates an immutable rule set against a pricing context. The
// engine itself is stateless; the rule set version to use is always passed
// in by the caller, which is how sessions stay pinned to the version active
// when they were created.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithClock overrides the time source. For tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Evaluate runs every active rule of the set against the context, ascending
// by priority. Conditions are AND-ed; all actions of every firing rule are
// collected in priority order, and later rules see earlier rules' actions
// through Context.PriorActions.
func (e *Engine) Evaluate(set *entity.RuleSet, ctx Context) ([]entity.RuleAction, error) {
	return e.evaluateTiers(set, ctx, entity.RuleTierCritical, entity.RuleTierDeferred)
}

// EvaluateTier runs only the rules of one tier. The session path uses the
// critical tier; the post-finalize validator uses the deferred tier.
func (e *Engine) EvaluateTier(set *entity.RuleSet, ctx Context, tier entity.RuleTier) ([]entity.RuleAction, error) {
	return e.evaluateTiers(set, ctx, tier)
}

func (e *Engine) evaluateTiers(set *entity.RuleSet, ctx Context, tiers ...entity.RuleTier) ([]entity.RuleAction, error) {
	now := e.now()

	ordered := make([]entity.BusinessRule, 0, len(set.Rules))

	for _, rule := range set.Rules {
		if !rule.ActiveAt(now) {
			continue
		}

		for _, tier := range tiers {
			if rule.Tier == tier {
				ordered = append(ordered, rule)
				break
			}
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var actions []entity.RuleAction

	for _, rule := range ordered {
		fired, err := e.matches(rule, ctx.withPriorActions(actions))
		if err != nil {
			return nil, err
		}

		if fired {
			actions = append(actions, rule.Actions...)
		}
	}

	return actions, nil
}

// ValidateModification runs the critical tier and rejects when any rule
// fires a REJECT action. The returned error carries the rule's message so
// the seller sees an actionable reason.
func (e *Engine) ValidateModification(set *entity.RuleSet, ctx Context) error {
	actions, err := e.EvaluateTier(set, ctx, entity.RuleTierCritical)
	if err != nil {
		return err
	}

	for _, action := range actions {
		if action.Type == entity.ActionReject {
			message := action.Message
			if message == "" {
				message = "modification rejected by business rule"
			}

			return domain.NewError(errcodes.InvalidModification, message)
		}
	}

	return nil
}

// CalculateMargin folds the evaluated actions into a margin fraction:
// SET_MARGIN replaces the margin, INCREASE_MARKUP adds on top of it.
func (e *Engine) CalculateMargin(set *entity.RuleSet, ctx Context) (decimal.Decimal, error) {
	actions, err := e.Evaluate(set, ctx)
	if err != nil {
		return decimal.Zero, err
	}

	margin := decimal.Zero

	for _, action := range actions {
		switch action.Type {
		case entity.ActionSetMargin:
			margin = action.Value
		case entity.ActionIncreaseMarkup:
			margin = margin.Add(action.Value)
		}
	}

	return margin, nil
}

// ApplyDiscounts applies every APPLY_DISCOUNT action to the base price in
// firing order. Discount values are fractions of the running price.
func (e *Engine) ApplyDiscounts(set *entity.RuleSet, ctx Context, basePrice decimal.Decimal) (decimal.Decimal, error) {
	actions, err := e.Evaluate(set, ctx)
	if err != nil {
		return decimal.Zero, err
	}

	price := basePrice

	for _, action := range actions {
		if action.Type == entity.ActionApplyDiscount {
			price = price.Sub(price.Mul(action.Value))
		}
	}

	return price, nil
}

func (e *Engine) matches(rule entity.BusinessRule, ctx Context) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := evalCondition(cond, ctx)
		if err != nil {
			return false, domain.WrapError(err, errcodes.RuleEvaluation,
				fmt.Sprintf("rule %s: condition on %q", rule.ID, cond.Field))
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}
