package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/pkg/contextx"
	"travel_budget/pkg/errcodes"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type Store interface {
	Save(ctx context.Context, snapshot *entity.SessionSnapshot) error
	Get(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error)
	// SaveAbandoned persists the snapshot with the abandoned-session TTL so
	// the store can evict it.
	SaveAbandoned(ctx context.Context, snapshot *entity.SessionSnapshot) error
}

type RuleSetSource interface {
	Current(ctx context.Context) (*entity.RuleSet, error)
	ByVersion(ctx context.Context, version int) (*entity.RuleSet, error)
}

type BudgetRepository interface {
	Create(ctx context.Context, budget *entity.Budget) error
}

// Manager owns the seller-facing session lifecycle. Every session freezes
// its working set at AddPackage time; for as long as the session is ACTIVE,
// reads of an item return the frozen copy no matter what the provider source
// does. Modification attempts on one session are serialized by a per-session
// lock so the append-only log keeps its order.
type Manager struct {
	store    Store
	ruleSets RuleSetSource
	engine   *rules.Engine
	budgets  BudgetRepository

	locks sync.Map // session id -> *sync.Mutex

	now   func() time.Time
	newID func() string
}

func NewManager(
	store Store,
	ruleSets RuleSetSource,
	engine *rules.Engine,
	budgets BudgetRepository,
) *Manager {
	return &Manager{
		store:    store,
		ruleSets: ruleSets,
		engine:   engine,
		budgets:  budgets,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time and id sources. For tests.
func (m *Manager) WithClock(now func() time.Time, newID func() string) *Manager {
	m.now = now
	m.newID = newID
	return m
}

// CreateSession allocates a new ACTIVE session pinned to the rule-set
// version published at this moment. Later rule updates never affect it.
func (m *Manager) CreateSession(ctx context.Context, vendorID, customerID string) (string, error) {
	ruleSet, err := m.ruleSets.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("ruleSets.Current: %w", err)
	}

	snapshot := &entity.SessionSnapshot{
		SessionID:      m.newID(),
		VendorID:       vendorID,
		CustomerID:     customerID,
		RuleSetVersion: ruleSet.Version,
		DataSnapshot:   make(map[string]entity.PackageRecord),
		StartedAt:      m.now(),
		Status:         entity.SessionStatusActive,
	}

	if err := m.store.Save(ctx, snapshot); err != nil {
		return "", fmt.Errorf("store.Save: %w", err)
	}

	logger(ctx).Info("session created",
		"session_id", snapshot.SessionID,
		"vendor_id", vendorID,
		"rule_set_version", ruleSet.Version,
	)

	return snapshot.SessionID, nil
}

// AddPackage freezes a copy of the record into the session. The stored copy
// is fully detached from the caller's value.
func (m *Manager) AddPackage(ctx context.Context, sessionID string, record entity.PackageRecord) error {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if record.ID == "" || record.Price.IsNegative() {
		return domain.NewError(errcodes.InvalidPackageRecord, "package record needs an id and a non-negative price")
	}

	if _, exists := snapshot.DataSnapshot[record.ID]; exists {
		return domain.NewError(errcodes.PackageAlreadyInCart, "package already added to this session")
	}

	snapshot.DataSnapshot[record.ID] = record.Clone()
	snapshot.ItemOrder = append(snapshot.ItemOrder, record.ID)

	if err := m.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	return nil
}

// GetItem returns the frozen copy of one item. Two calls during the same
// ACTIVE session always return identical data.
func (m *Manager) GetItem(ctx context.Context, sessionID, itemID string) (entity.PackageRecord, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return entity.PackageRecord{}, err
	}

	record, ok := snapshot.DataSnapshot[itemID]
	if !ok {
		return entity.PackageRecord{}, domain.NewError(errcodes.NotFound, "item not in session")
	}

	return record.Clone(), nil
}

// GetSession returns a detached copy of the snapshot for display purposes.
// The lock keeps the read from observing a half-applied mutation.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return snapshot.Clone(), nil
}

// ApplyModification validates the change against the session's pinned
// critical rules and appends it to the log. On rejection nothing is
// recorded.
func (m *Manager) ApplyModification(ctx context.Context, sessionID string, modType entity.ModificationType, itemID string, modValue decimal.Decimal) error {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.activeSession(ctx, sessionID)
	if err != nil {
		return err
	}

	record, ok := snapshot.DataSnapshot[itemID]
	if !ok {
		return domain.NewError(errcodes.NotFound, "item not in session")
	}

	ruleSet, err := m.ruleSets.ByVersion(ctx, snapshot.RuleSetVersion)
	if err != nil {
		return fmt.Errorf("ruleSets.ByVersion: %w", err)
	}

	modification := entity.Modification{
		Seq:       len(snapshot.Modifications) + 1,
		ItemID:    itemID,
		Type:      modType,
		Value:     modValue,
		AppliedAt: m.now(),
	}

	ruleCtx, err := m.modificationContext(snapshot, record, modification, ruleSet)
	if err != nil {
		return err
	}

	if err := m.engine.ValidateModification(ruleSet, ruleCtx); err != nil {
		logger(ctx).Info("modification rejected",
			"session_id", sessionID,
			"item_id", itemID,
			"type", string(modType),
		)

		return err
	}

	snapshot.Modifications = append(snapshot.Modifications, modification)

	if err := m.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	return nil
}

// FinalizeSession folds the snapshot and the modification log into a Budget
// with version 1 and marks the session FINALIZED.
func (m *Manager) FinalizeSession(ctx context.Context, sessionID string) (*entity.Budget, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !snapshot.Active() {
		return nil, domain.NewError(errcodes.SessionStateError,
			fmt.Sprintf("cannot finalize a %s session", snapshot.Status))
	}

	ruleSet, err := m.ruleSets.ByVersion(ctx, snapshot.RuleSetVersion)
	if err != nil {
		return nil, fmt.Errorf("ruleSets.ByVersion: %w", err)
	}

	items, err := m.effectiveItems(snapshot, ruleSet)
	if err != nil {
		return nil, err
	}

	now := m.now()

	changes := make([]entity.BudgetChange, 0, len(items))
	for _, item := range items {
		changes = append(changes, entity.BudgetChange{
			Type:     entity.ChangePackageAdded,
			ItemID:   item.ItemID(),
			NewValue: item.FinalPrice,
		})
	}

	budget := &entity.Budget{
		ID:             m.newID(),
		SessionID:      snapshot.SessionID,
		VendorID:       snapshot.VendorID,
		RuleSetVersion: snapshot.RuleSetVersion,
		ClientInfo: entity.ClientInfo{
			Name: snapshot.CustomerID,
		},
		Status: entity.BudgetStatusDraft,
		Versions: []entity.BudgetVersion{{
			VersionNumber: 1,
			Items:         items,
			Changes:       changes,
			CreatedAt:     now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.budgets.Create(ctx, budget); err != nil {
		return nil, fmt.Errorf("budgets.Create: %w", err)
	}

	snapshot.Status = entity.SessionStatusFinalized

	if err := m.store.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("store.Save: %w", err)
	}

	logger(ctx).Info("session finalized",
		"session_id", sessionID,
		"budget_id", budget.ID,
		"items", len(items),
	)

	return budget, nil
}

// AbandonSession marks the session ABANDONED. No budget is produced and the
// store is free to evict the snapshot after its TTL.
func (m *Manager) AbandonSession(ctx context.Context, sessionID string) error {
	unlock := m.lock(sessionID)
	defer unlock()

	snapshot, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if !snapshot.Active() {
		return domain.NewError(errcodes.SessionStateError,
			fmt.Sprintf("cannot abandon a %s session", snapshot.Status))
	}

	snapshot.Status = entity.SessionStatusAbandoned

	if err := m.store.SaveAbandoned(ctx, snapshot); err != nil {
		return fmt.Errorf("store.SaveAbandoned: %w", err)
	}

	return nil
}

func (m *Manager) activeSession(ctx context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	snapshot, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !snapshot.Active() {
		return nil, domain.NewError(errcodes.SessionNotActive,
			fmt.Sprintf("session is %s", snapshot.Status))
	}

	return snapshot, nil
}

func (m *Manager) lock(sessionID string) func() {
	muAny, _ := m.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}
