package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type BudgetStatus string

const (
	BudgetStatusDraft    BudgetStatus = "DRAFT"
	BudgetStatusPending  BudgetStatus = "PENDING"
	BudgetStatusApproved BudgetStatus = "APPROVED"
	BudgetStatusRejected BudgetStatus = "REJECTED"
	BudgetStatusExpired  BudgetStatus = "EXPIRED"
)

type ClientInfo struct {
	Name  string `json:"clientName"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// BudgetItem wraps one frozen PackageRecord plus the commercial numbers the
// seller agreed on. MarginPct is a fraction (0.15 == 15%) applied over the
// base price: FinalPrice = Record.Price * (1 + MarginPct), unless a seller
// modification fixed FinalPrice directly.
type BudgetItem struct {
	Record     PackageRecord   `json:"record"`
	FinalPrice decimal.Decimal `json:"final_price"`
	MarginPct  decimal.Decimal `json:"margin_percentage"`
}

func (i BudgetItem) ItemID() string {
	return i.Record.ID
}

// BudgetVersion is an immutable point-in-time state of a Budget. Versions
// store a full item snapshot; Changes explains the delta from the prior
// version.
type BudgetVersion struct {
	VersionNumber int             `json:"version_number"`
	Items         []BudgetItem    `json:"items"`
	MarkupPct     decimal.Decimal `json:"markup_percentage"`
	Changes       []BudgetChange  `json:"changes"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (v BudgetVersion) Item(itemID string) (BudgetItem, bool) {
	for _, item := range v.Items {
		if item.ItemID() == itemID {
			return item, true
		}
	}

	return BudgetItem{}, false
}

func (v BudgetVersion) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range v.Items {
		total = total.Add(item.FinalPrice)
	}

	return total
}

// Budget is the versioned quotation artifact produced when a seller
// finalizes a session. It always has at least one version and is mutated
// only by appending a new version.
type Budget struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	VendorID  string `json:"vendor_id"`
	// RuleSetVersion is the rule catalogue the producing session was pinned
	// to; deferred validation re-reads this exact version.
	RuleSetVersion int             `json:"rule_set_version"`
	ClientInfo     ClientInfo      `json:"client_info"`
	Status         BudgetStatus    `json:"status"`
	Versions       []BudgetVersion `json:"versions"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CurrentVersion returns the last (highest-numbered) version.
func (b *Budget) CurrentVersion() BudgetVersion {
	return b.Versions[len(b.Versions)-1]
}

func (b *Budget) TotalPrice() decimal.Decimal {
	return b.CurrentVersion().TotalPrice()
}

// AppendVersion adds a new immutable version numbered after the current one.
func (b *Budget) AppendVersion(items []BudgetItem, markupPct decimal.Decimal, changes []BudgetChange, now time.Time) BudgetVersion {
	version := BudgetVersion{
		VersionNumber: b.CurrentVersion().VersionNumber + 1,
		Items:         items,
		MarkupPct:     markupPct,
		Changes:       changes,
		CreatedAt:     now,
	}

	b.Versions = append(b.Versions, version)
	b.UpdatedAt = now

	return version
}
