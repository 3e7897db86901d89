package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/value"
)

// PackageRecord is a normalized provider offer: one priced, dated package
// (flight, hotel, transfer). ID is stable across re-fetches of the same offer
// so that old/new comparison is possible.
type PackageRecord struct {
	ID           string           `json:"id"`
	ProviderID   string           `json:"provider_id"`
	Price        decimal.Decimal  `json:"price"`
	Currency     string           `json:"currency"`
	Availability int              `json:"availability"`
	Dates        []value.DateRange `json:"dates"`
	Details      value.Details    `json:"details"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

func (p PackageRecord) Available() bool {
	return p.Availability > 0
}

// Clone returns a deep copy. Sessions freeze records with it so that later
// provider updates never leak into an open session.
func (p PackageRecord) Clone() PackageRecord {
	clone := p
	clone.Details = p.Details.Clone()

	if p.Dates != nil {
		clone.Dates = make([]value.DateRange, len(p.Dates))
		copy(clone.Dates, p.Dates)
	}

	return clone
}
