package rules

import (
	"strings"

	"travel_budget/internal/domain/entity"
)

// Context is the pricing context a rule set is evaluated against. The three
// maps are addressed from conditions with dotted paths, e.g.
// "temporal_data.season" or "modification.margin_percentage". PriorActions
// lets chained rules see what earlier rules already applied.
type Context struct {
	PackageData  map[string]any
	TemporalData map[string]any
	Modification map[string]any
	PriorActions []entity.RuleAction
}

const (
	scopePackageData  = "package_data"
	scopeTemporalData = "temporal_data"
	scopeModification = "modification"
)

// Lookup resolves a dotted field path against the context.
func (c Context) Lookup(path string) (any, bool) {
	scope, field, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}

	var data map[string]any

	switch scope {
	case scopePackageData:
		data = c.PackageData
	case scopeTemporalData:
		data = c.TemporalData
	case scopeModification:
		data = c.Modification
	default:
		return nil, false
	}

	v, ok := data[field]

	return v, ok
}

func (c Context) withPriorActions(actions []entity.RuleAction) Context {
	c.PriorActions = actions
	return c
}
