package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/entity"
)

func evalCondition(cond entity.Condition, ctx Context) (bool, error) {
	actual, ok := ctx.Lookup(cond.Field)
	if !ok {
		// An absent field simply fails the condition; it is not a malformed
		// rule. Unknown scopes are caught by Lookup the same way.
		return false, nil
	}

	switch cond.Operator {
	case entity.OpEq, entity.OpNeq:
		equal, err := valuesEqual(actual, cond.Value)
		if err != nil {
			return false, err
		}

		if cond.Operator == entity.OpEq {
			return equal, nil
		}

		return !equal, nil

	case entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte:
		left, err := toDecimal(actual)
		if err != nil {
			return false, err
		}

		right, err := toDecimal(cond.Value)
		if err != nil {
			return false, err
		}

		switch cond.Operator {
		case entity.OpGt:
			return left.GreaterThan(right), nil
		case entity.OpGte:
			return left.GreaterThanOrEqual(right), nil
		case entity.OpLt:
			return left.LessThan(right), nil
		default:
			return left.LessThanOrEqual(right), nil
		}

	case entity.OpIn:
		options, ok := cond.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator %q needs a list value", cond.Operator)
		}

		for _, option := range options {
			equal, err := valuesEqual(actual, option)
			if err != nil {
				return false, err
			}

			if equal {
				return true, nil
			}
		}

		return false, nil

	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func valuesEqual(a, b any) (bool, error) {
	// Numeric values compare numerically regardless of the concrete type the
	// rule was deserialized with.
	aDec, aErr := toDecimal(a)
	bDec, bErr := toDecimal(b)

	if aErr == nil && bErr == nil {
		return aDec.Equal(bDec), nil
	}

	return fmt.Sprint(a) == fmt.Sprint(b), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("value %v is not numeric", v)
	}
}
