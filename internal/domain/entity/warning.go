package entity

import "time"

type WarningCode string

const (
	WarningNegativeMargin      WarningCode = "NEGATIVE_MARGIN"
	WarningNoBetterAlternative WarningCode = "NO_BETTER_ALTERNATIVE"
	WarningItemUnresolved      WarningCode = "ITEM_UNRESOLVED"
	WarningDeferredRule        WarningCode = "DEFERRED_RULE_VIOLATION"
)

// Warning is a non-blocking finding attached to a budget: a deferred rule
// violation or a reconstruction note the seller has to review.
type Warning struct {
	ID        string      `json:"id"`
	BudgetID  string      `json:"budget_id"`
	ItemID    string      `json:"item_id,omitempty"`
	Code      WarningCode `json:"code"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}
