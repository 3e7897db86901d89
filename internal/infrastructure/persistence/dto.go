package persistence

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/entity"
)

// budgetSchema maps one row of the budgets table. Versions live in their own
// table and are attached by the repository.
type budgetSchema struct {
	ID             string    `db:"id"`
	SessionID      string    `db:"session_id"`
	VendorID       string    `db:"vendor_id"`
	RuleSetVersion int       `db:"rule_set_version"`
	ClientInfo     []byte    `db:"client_info"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (s *budgetSchema) toDomain(versions []entity.BudgetVersion) (*entity.Budget, error) {
	var clientInfo entity.ClientInfo
	if len(s.ClientInfo) > 0 {
		if err := json.Unmarshal(s.ClientInfo, &clientInfo); err != nil {
			return nil, err
		}
	}

	return &entity.Budget{
		ID:             s.ID,
		SessionID:      s.SessionID,
		VendorID:       s.VendorID,
		RuleSetVersion: s.RuleSetVersion,
		ClientInfo:     clientInfo,
		Status:         entity.BudgetStatus(s.Status),
		Versions:       versions,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

// budgetVersionSchema maps one row of budget_versions. Items and Changes are
// stored as JSONB documents; a version row is immutable once written.
type budgetVersionSchema struct {
	BudgetID      string          `db:"budget_id"`
	VersionNumber int             `db:"version_number"`
	Items         []byte          `db:"items"`
	MarkupPct     decimal.Decimal `db:"markup_pct"`
	Changes       []byte          `db:"changes"`
	CreatedAt     time.Time       `db:"created_at"`
}

func fromBudgetVersion(budgetID string, v entity.BudgetVersion) (*budgetVersionSchema, error) {
	items, err := json.Marshal(v.Items)
	if err != nil {
		return nil, err
	}

	changes, err := json.Marshal(v.Changes)
	if err != nil {
		return nil, err
	}

	return &budgetVersionSchema{
		BudgetID:      budgetID,
		VersionNumber: v.VersionNumber,
		Items:         items,
		MarkupPct:     v.MarkupPct,
		Changes:       changes,
		CreatedAt:     v.CreatedAt,
	}, nil
}

func (s *budgetVersionSchema) toDomain() (entity.BudgetVersion, error) {
	version := entity.BudgetVersion{
		VersionNumber: s.VersionNumber,
		MarkupPct:     s.MarkupPct,
		CreatedAt:     s.CreatedAt,
	}

	if len(s.Items) > 0 {
		if err := json.Unmarshal(s.Items, &version.Items); err != nil {
			return entity.BudgetVersion{}, err
		}
	}

	if len(s.Changes) > 0 {
		if err := json.Unmarshal(s.Changes, &version.Changes); err != nil {
			return entity.BudgetVersion{}, err
		}
	}

	return version, nil
}

// ruleSetSchema maps one row of rule_sets. The whole rule list is one JSONB
// document; rule sets are append-only and addressed by version.
type ruleSetSchema struct {
	Version   int       `db:"version"`
	Rules     []byte    `db:"rules"`
	CreatedAt time.Time `db:"created_at"`
}

func fromRuleSet(set *entity.RuleSet) (*ruleSetSchema, error) {
	rules, err := json.Marshal(set.Rules)
	if err != nil {
		return nil, err
	}

	return &ruleSetSchema{
		Version:   set.Version,
		Rules:     rules,
		CreatedAt: set.CreatedAt,
	}, nil
}

func (s *ruleSetSchema) toDomain() (*entity.RuleSet, error) {
	set := &entity.RuleSet{
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
	}

	if len(s.Rules) > 0 {
		if err := json.Unmarshal(s.Rules, &set.Rules); err != nil {
			return nil, err
		}
	}

	return set, nil
}

// warningSchema maps one row of warnings.
type warningSchema struct {
	ID           string    `db:"id"`
	BudgetID     string    `db:"budget_id"`
	ItemID       string    `db:"item_id"`
	Code         string    `db:"code"`
	Message      string    `db:"message"`
	Acknowledged bool      `db:"acknowledged"`
	CreatedAt    time.Time `db:"created_at"`
}

func fromWarning(w entity.Warning) *warningSchema {
	return &warningSchema{
		ID:        w.ID,
		BudgetID:  w.BudgetID,
		ItemID:    w.ItemID,
		Code:      string(w.Code),
		Message:   w.Message,
		CreatedAt: w.CreatedAt,
	}
}

func (s *warningSchema) toDomain() entity.Warning {
	return entity.Warning{
		ID:        s.ID,
		BudgetID:  s.BudgetID,
		ItemID:    s.ItemID,
		Code:      entity.WarningCode(s.Code),
		Message:   s.Message,
		CreatedAt: s.CreatedAt,
	}
}
