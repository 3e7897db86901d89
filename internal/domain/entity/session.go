package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusFinalized SessionStatus = "FINALIZED"
	SessionStatusAbandoned SessionStatus = "ABANDONED"
)

type ModificationType string

const (
	ModificationSetMargin     ModificationType = "SET_MARGIN"
	ModificationSetFinalPrice ModificationType = "SET_FINAL_PRICE"
	ModificationApplyDiscount ModificationType = "APPLY_DISCOUNT"
	ModificationRemovePackage ModificationType = "REMOVE_PACKAGE"
)

// Modification is one seller-applied change to the effective view of a
// session. The log is append-only and strictly ordered.
type Modification struct {
	Seq       int              `json:"seq"`
	ItemID    string           `json:"item_id"`
	Type      ModificationType `json:"type"`
	Value     decimal.Decimal  `json:"value"`
	AppliedAt time.Time        `json:"applied_at"`
}

// SessionSnapshot is the stable working set of one seller-customer
// interaction. DataSnapshot holds records frozen at AddPackage time and is
// never overwritten by external updates while the session is ACTIVE.
type SessionSnapshot struct {
	SessionID      string                   `json:"session_id"`
	VendorID       string                   `json:"vendor_id"`
	CustomerID     string                   `json:"customer_id"`
	RuleSetVersion int                      `json:"rule_set_version"`
	DataSnapshot   map[string]PackageRecord `json:"data_snapshot"`
	ItemOrder      []string                 `json:"item_order"`
	Modifications  []Modification           `json:"modifications"`
	StartedAt      time.Time                `json:"started_at"`
	Status         SessionStatus            `json:"status"`
}

func (s *SessionSnapshot) Active() bool {
	return s.Status == SessionStatusActive
}

// Clone returns a copy detached from the managed snapshot, so readers never
// share map or slice storage with a concurrent writer.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	clone := *s

	if s.DataSnapshot != nil {
		clone.DataSnapshot = make(map[string]PackageRecord, len(s.DataSnapshot))
		for id, record := range s.DataSnapshot {
			clone.DataSnapshot[id] = record.Clone()
		}
	}

	if s.ItemOrder != nil {
		clone.ItemOrder = make([]string, len(s.ItemOrder))
		copy(clone.ItemOrder, s.ItemOrder)
	}

	if s.Modifications != nil {
		clone.Modifications = make([]Modification, len(s.Modifications))
		copy(clone.Modifications, s.Modifications)
	}

	return &clone
}
