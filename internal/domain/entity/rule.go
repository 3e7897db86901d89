package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Condition compares one context field against a value. Field uses the
// dotted addressing scheme, e.g. "temporal_data.season" or
// "modification.margin_percentage".
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type ActionType string

const (
	ActionSetMargin      ActionType = "SET_MARGIN"
	ActionApplyDiscount  ActionType = "APPLY_DISCOUNT"
	ActionIncreaseMarkup ActionType = "INCREASE_MARKUP"
	ActionReject         ActionType = "REJECT"
)

type RuleAction struct {
	Type    ActionType      `json:"type"`
	Value   decimal.Decimal `json:"value"`
	Message string          `json:"message,omitempty"`
}

type RuleTier string

const (
	// RuleTierCritical rules run synchronously inside ApplyModification and
	// block the operation when they fire a REJECT.
	RuleTierCritical RuleTier = "critical"
	// RuleTierDeferred rules run after FinalizeSession and only produce
	// warnings.
	RuleTierDeferred RuleTier = "deferred"
)

// BusinessRule is a configured policy. Rules are immutable once published;
// conditions are AND-ed and lower priority evaluates first.
type BusinessRule struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Tier        RuleTier     `json:"tier"`
	Conditions  []Condition  `json:"conditions"`
	Actions     []RuleAction `json:"actions"`
	Priority    int          `json:"priority"`
	ActiveFrom  *time.Time   `json:"active_from,omitempty"`
	ActiveUntil *time.Time   `json:"active_until,omitempty"`
}

func (r BusinessRule) ActiveAt(now time.Time) bool {
	if r.ActiveFrom != nil && now.Before(*r.ActiveFrom) {
		return false
	}

	if r.ActiveUntil != nil && now.After(*r.ActiveUntil) {
		return false
	}

	return true
}

// RuleSet is one immutable published version of the rule catalogue. Updating
// rules creates a new version; sessions pin the version current at
// CreateSession time and never see later ones.
type RuleSet struct {
	Version   int            `json:"version"`
	Rules     []BusinessRule `json:"rules"`
	CreatedAt time.Time      `json:"created_at"`
}
