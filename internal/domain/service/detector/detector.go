package detector

import (
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/lox"
)

// Config carries the two-tier thresholds. Noise tolerance suppresses
// cosmetic price fluctuations; the significance threshold decides when a
// change justifies reconstructing a budget.
type Config struct {
	NoiseTolerancePct decimal.Decimal
	SignificancePct   decimal.Decimal
	AvailabilityDelta int
}

func DefaultConfig() Config {
	return Config{
		NoiseTolerancePct: decimal.NewFromFloat(0.02),
		SignificancePct:   decimal.NewFromFloat(0.15),
		AvailabilityDelta: 5,
	}
}

// Detector compares provider record snapshots. All methods are pure.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// DetectChanges classifies the differences between two snapshots of the same
// offer. Passing old == nil reports PACKAGE_ADDED, new == nil reports
// PACKAGE_REMOVED.
func (d *Detector) DetectChanges(old, new *entity.PackageRecord) []entity.BudgetChange {
	if old == nil && new == nil {
		return nil
	}

	if old == nil {
		return []entity.BudgetChange{{
			Type:     entity.ChangePackageAdded,
			ItemID:   new.ID,
			NewValue: new.Price,
		}}
	}

	if new == nil {
		return []entity.BudgetChange{{
			Type:     entity.ChangePackageRemoved,
			ItemID:   old.ID,
			OldValue: old.Price,
		}}
	}

	var changes []entity.BudgetChange

	if change, ok := d.priceChange(old, new); ok {
		changes = append(changes, change)
	}

	if change, ok := d.availabilityChange(old, new); ok {
		changes = append(changes, change)
	}

	if change, ok := datesChange(old, new); ok {
		changes = append(changes, change)
	}

	if change, ok := detailsChange(old, new); ok {
		changes = append(changes, change)
	}

	return changes
}

// DetectAll runs DetectChanges across two keyed snapshots, reporting removed
// and added ids as well. Iteration follows the order slice so output is
// deterministic.
func (d *Detector) DetectAll(order []string, old, fresh map[string]entity.PackageRecord) []entity.BudgetChange {
	var changes []entity.BudgetChange

	for _, id := range order {
		oldRec, hasOld := old[id]
		freshRec, hasFresh := fresh[id]

		switch {
		case hasOld && hasFresh:
			changes = append(changes, d.DetectChanges(&oldRec, &freshRec)...)
		case hasOld:
			changes = append(changes, d.DetectChanges(&oldRec, nil)...)
		case hasFresh:
			changes = append(changes, d.DetectChanges(nil, &freshRec)...)
		}
	}

	return changes
}

// IsSignificant reports whether any change is severe enough to trigger
// reconstruction: a removed package, an availability flip, or a price move
// beyond the significance threshold.
func (d *Detector) IsSignificant(changes []entity.BudgetChange) bool {
	for _, change := range changes {
		switch change.Type {
		case entity.ChangePackageRemoved, entity.ChangeAvailability:
			return true
		case entity.ChangePriceIncrease, entity.ChangePriceDecrease:
			if deltaExceeds(change, d.cfg.SignificancePct) {
				return true
			}
		}
	}

	return false
}

func (d *Detector) priceChange(old, new *entity.PackageRecord) (entity.BudgetChange, bool) {
	if old.Price.IsZero() {
		// No meaningful baseline; treat any new price as a full increase.
		if new.Price.IsZero() {
			return entity.BudgetChange{}, false
		}

		return entity.BudgetChange{
			Type:     entity.ChangePriceIncrease,
			ItemID:   old.ID,
			OldValue: old.Price,
			NewValue: new.Price,
			Metadata: map[string]any{entity.MetaDeltaPct: 1.0},
		}, true
	}

	delta := new.Price.Sub(old.Price).Div(old.Price)

	if delta.Abs().LessThan(d.cfg.NoiseTolerancePct) {
		return entity.BudgetChange{}, false
	}

	changeType := entity.ChangePriceIncrease
	if delta.IsNegative() {
		changeType = entity.ChangePriceDecrease
	}

	return entity.BudgetChange{
		Type:     changeType,
		ItemID:   old.ID,
		OldValue: old.Price,
		NewValue: new.Price,
		Metadata: map[string]any{entity.MetaDeltaPct: delta.InexactFloat64()},
	}, true
}

func (d *Detector) availabilityChange(old, new *entity.PackageRecord) (entity.BudgetChange, bool) {
	crossed := old.Available() != new.Available()

	diff := new.Availability - old.Availability
	if diff < 0 {
		diff = -diff
	}

	if !crossed && diff <= d.cfg.AvailabilityDelta {
		return entity.BudgetChange{}, false
	}

	return entity.BudgetChange{
		Type:     entity.ChangeAvailability,
		ItemID:   old.ID,
		OldValue: old.Availability,
		NewValue: new.Availability,
	}, true
}

func datesChange(old, new *entity.PackageRecord) (entity.BudgetChange, bool) {
	removed, added := value.DiffDateRanges(old.Dates, new.Dates)
	if len(removed) == 0 && len(added) == 0 {
		return entity.BudgetChange{}, false
	}

	rangeString := func(r value.DateRange) string { return r.String() }

	return entity.BudgetChange{
		Type:     entity.ChangeDates,
		ItemID:   old.ID,
		OldValue: lox.Map(old.Dates, rangeString),
		NewValue: lox.Map(new.Dates, rangeString),
		Metadata: map[string]any{
			entity.MetaRemovedDates: lox.Map(removed, rangeString),
			entity.MetaAddedDates:   lox.Map(added, rangeString),
		},
	}, true
}

func detailsChange(old, new *entity.PackageRecord) (entity.BudgetChange, bool) {
	changedKeys := old.Details.ChangedKeys(new.Details)
	if len(changedKeys) == 0 {
		return entity.BudgetChange{}, false
	}

	return entity.BudgetChange{
		Type:     entity.ChangeDetails,
		ItemID:   old.ID,
		OldValue: old.Details,
		NewValue: new.Details,
		Metadata: map[string]any{entity.MetaChangedKeys: changedKeys},
	}, true
}

func deltaExceeds(change entity.BudgetChange, threshold decimal.Decimal) bool {
	raw, ok := change.Metadata[entity.MetaDeltaPct]
	if !ok {
		return false
	}

	delta, ok := raw.(float64)
	if !ok {
		return false
	}

	return decimal.NewFromFloat(delta).Abs().GreaterThan(threshold)
}
