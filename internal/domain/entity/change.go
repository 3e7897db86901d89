package entity

type ChangeType string

const (
	ChangePriceIncrease      ChangeType = "PRICE_INCREASE"
	ChangePriceDecrease      ChangeType = "PRICE_DECREASE"
	ChangeAvailability       ChangeType = "AVAILABILITY_CHANGE"
	ChangeDates              ChangeType = "DATES_CHANGE"
	ChangePackageRemoved     ChangeType = "PACKAGE_REMOVED"
	ChangePackageAdded       ChangeType = "PACKAGE_ADDED"
	ChangeDetails            ChangeType = "DETAILS_CHANGE"
	ChangePackageSubstituted ChangeType = "PACKAGE_SUBSTITUTED"
)

// Metadata keys used by the detector and the reconstruction engine.
const (
	MetaDeltaPct     = "delta_pct"
	MetaChangedKeys  = "changed_keys"
	MetaStrategy     = "strategy"
	MetaOriginalItem = "original_item_id"
	MetaSelectedItem = "selected_item_id"
	MetaRemovedDates = "removed_dates"
	MetaAddedDates   = "added_dates"
)

// BudgetChange is one atomic difference between two versions of an item, or
// between two snapshots of a provider record.
type BudgetChange struct {
	Type     ChangeType     `json:"change_type"`
	ItemID   string         `json:"item_id"`
	OldValue any            `json:"old_value,omitempty"`
	NewValue any            `json:"new_value,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
