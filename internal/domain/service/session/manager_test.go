package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/internal/domain/service/session"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/errcodes"
)

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

type memStore struct {
	snapshots map[string]*entity.SessionSnapshot
	abandoned map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[string]*entity.SessionSnapshot),
		abandoned: make(map[string]bool),
	}
}

func (s *memStore) Save(_ context.Context, snapshot *entity.SessionSnapshot) error {
	s.snapshots[snapshot.SessionID] = snapshot
	return nil
}

func (s *memStore) Get(_ context.Context, sessionID string) (*entity.SessionSnapshot, error) {
	snapshot, ok := s.snapshots[sessionID]
	if !ok {
		return nil, domain.NewError(errcodes.SessionNotFound, "session not found")
	}

	return snapshot, nil
}

func (s *memStore) SaveAbandoned(_ context.Context, snapshot *entity.SessionSnapshot) error {
	s.snapshots[snapshot.SessionID] = snapshot
	s.abandoned[snapshot.SessionID] = true

	return nil
}

type memRuleSets struct {
	sets map[int]*entity.RuleSet
	head int
}

func newMemRuleSets(sets ...*entity.RuleSet) *memRuleSets {
	byVersion := make(map[int]*entity.RuleSet, len(sets))
	head := 0

	for _, set := range sets {
		byVersion[set.Version] = set
		if set.Version > head {
			head = set.Version
		}
	}

	return &memRuleSets{sets: byVersion, head: head}
}

func (r *memRuleSets) Current(_ context.Context) (*entity.RuleSet, error) {
	return r.sets[r.head], nil
}

func (r *memRuleSets) ByVersion(_ context.Context, version int) (*entity.RuleSet, error) {
	set, ok := r.sets[version]
	if !ok {
		return nil, domain.NewError(errcodes.RuleSetNotFound, "rule set version not found")
	}

	return set, nil
}

func (r *memRuleSets) publish(set *entity.RuleSet) {
	r.sets[set.Version] = set
	if set.Version > r.head {
		r.head = set.Version
	}
}

type memBudgets struct {
	created []*entity.Budget
}

func (b *memBudgets) Create(_ context.Context, budget *entity.Budget) error {
	b.created = append(b.created, budget)
	return nil
}

func emptyRuleSet(version int) *entity.RuleSet {
	return &entity.RuleSet{Version: version, CreatedAt: testNow.Add(-24 * time.Hour)}
}

func marginFloorRuleSet(version int) *entity.RuleSet {
	return &entity.RuleSet{
		Version:   version,
		CreatedAt: testNow.Add(-24 * time.Hour),
		Rules: []entity.BusinessRule{{
			ID:   "rule-margin-floor",
			Name: "minimum margin 5%",
			Tier: entity.RuleTierCritical,
			Conditions: []entity.Condition{
				{Field: "modification.margin_percentage", Operator: entity.OpLt, Value: 0.05},
			},
			Actions: []entity.RuleAction{
				{Type: entity.ActionReject, Message: "margin below the 5% floor"},
			},
			ActiveFrom: lo.ToPtr(testNow.Add(-time.Hour)),
		}},
	}
}

func testManager(store session.Store, ruleSets session.RuleSetSource, budgets session.BudgetRepository) *session.Manager {
	ids := 0

	engine := rules.NewEngine().WithClock(func() time.Time { return testNow })

	return session.NewManager(store, ruleSets, engine, budgets).
		WithClock(
			func() time.Time { return testNow },
			func() string {
				ids++
				return fmt.Sprintf("id-%d", ids)
			},
		)
}

func testRecord(id string, price float64) entity.PackageRecord {
	return entity.PackageRecord{
		ID:           id,
		ProviderID:   "provider-1",
		Price:        decimal.NewFromFloat(price),
		Currency:     "EUR",
		Availability: 10,
		Details:      value.Details{value.DetailCategory: "hotel"},
		FetchedAt:    testNow,
	}
}

func TestSnapshotStability(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	manager := testManager(newMemStore(), newMemRuleSets(emptyRuleSet(1)), &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	record := testRecord("pkg-1", 1000)
	rq.NoError(manager.AddPackage(ctx, sessionID, record))

	// Mutating the caller's copy must not leak into the session.
	record.Price = decimal.NewFromInt(9999)
	record.Details[value.DetailCategory] = "flight"

	first, err := manager.GetItem(ctx, sessionID, "pkg-1")
	rq.NoError(err)
	rq.True(decimal.NewFromInt(1000).Equal(first.Price))
	rq.Equal("hotel", first.Details.Category())

	second, err := manager.GetItem(ctx, sessionID, "pkg-1")
	rq.NoError(err)
	rq.Equal(first, second)
}

func TestAddPackageValidation(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	manager := testManager(newMemStore(), newMemRuleSets(emptyRuleSet(1)), &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000)))

	err = manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000))
	rq.True(domain.HasCode(err, errcodes.PackageAlreadyInCart))

	bad := testRecord("pkg-2", 1000)
	bad.Price = decimal.NewFromInt(-1)
	err = manager.AddPackage(ctx, sessionID, bad)
	rq.True(domain.HasCode(err, errcodes.InvalidPackageRecord))

	err = manager.AddPackage(ctx, "missing", testRecord("pkg-3", 1000))
	rq.True(domain.HasCode(err, errcodes.SessionNotFound))
}

func TestFinalizeAppliesModifications(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	budgets := &memBudgets{}
	manager := testManager(newMemStore(), newMemRuleSets(emptyRuleSet(1)), budgets)

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000)))
	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-2", 500)))
	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-3", 200)))

	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.15)))
	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetFinalPrice, "pkg-2", decimal.NewFromInt(550)))
	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationRemovePackage, "pkg-3", decimal.Zero))

	budget, err := manager.FinalizeSession(ctx, sessionID)
	rq.NoError(err)
	rq.Len(budgets.created, 1)
	rq.Equal(sessionID, budget.SessionID)
	rq.Equal(entity.BudgetStatusDraft, budget.Status)
	rq.Equal(1, budget.RuleSetVersion)

	version := budget.CurrentVersion()
	rq.Equal(1, version.VersionNumber)
	rq.Len(version.Items, 2)

	// 15% margin on a 1000 base.
	rq.True(decimal.NewFromInt(1150).Equal(version.Items[0].FinalPrice))
	rq.True(decimal.NewFromFloat(0.15).Equal(version.Items[0].MarginPct))

	// Explicit final price back-computes the margin.
	rq.True(decimal.NewFromInt(550).Equal(version.Items[1].FinalPrice))
	rq.True(decimal.NewFromFloat(0.10).Equal(version.Items[1].MarginPct))

	rq.True(decimal.NewFromInt(1700).Equal(version.TotalPrice()))

	// The session is closed for further edits.
	err = manager.AddPackage(ctx, sessionID, testRecord("pkg-4", 100))
	rq.True(domain.HasCode(err, errcodes.SessionNotActive))

	_, err = manager.FinalizeSession(ctx, sessionID)
	rq.True(domain.HasCode(err, errcodes.SessionStateError))
}

func TestModificationRejectedByCriticalRule(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	manager := testManager(newMemStore(), newMemRuleSets(marginFloorRuleSet(1)), &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000)))

	err = manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.03))
	rq.Error(err)
	rq.True(domain.HasCode(err, errcodes.InvalidModification))

	// The rejected modification left no trace in the log.
	snapshot, err := manager.GetSession(ctx, sessionID)
	rq.NoError(err)
	rq.Empty(snapshot.Modifications)

	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.08)))
}

func TestRuleSetPinnedAtCreation(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	ruleSets := newMemRuleSets(emptyRuleSet(1))
	manager := testManager(newMemStore(), ruleSets, &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000)))

	// A stricter rule set published mid-session must not apply.
	ruleSets.publish(marginFloorRuleSet(2))

	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.02)))

	// A session created after the publish is bound by the new rules.
	laterID, err := manager.CreateSession(ctx, "vendor-1", "client-2")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, laterID, testRecord("pkg-1", 1000)))

	err = manager.ApplyModification(ctx, laterID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.02))
	rq.True(domain.HasCode(err, errcodes.InvalidModification))
}

func TestAbandonSession(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	store := newMemStore()
	budgets := &memBudgets{}
	manager := testManager(store, newMemRuleSets(emptyRuleSet(1)), budgets)

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AbandonSession(ctx, sessionID))
	rq.True(store.abandoned[sessionID])
	rq.Empty(budgets.created)

	_, err = manager.FinalizeSession(ctx, sessionID)
	rq.True(domain.HasCode(err, errcodes.SessionStateError))

	err = manager.AbandonSession(ctx, sessionID)
	rq.True(domain.HasCode(err, errcodes.SessionStateError))
}

func TestDiscountModification(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	manager := testManager(newMemStore(), newMemRuleSets(emptyRuleSet(1)), &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)

	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-1", 1000)))

	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationSetMargin, "pkg-1", decimal.NewFromFloat(0.20)))
	rq.NoError(manager.ApplyModification(ctx, sessionID,
		entity.ModificationApplyDiscount, "pkg-1", decimal.NewFromFloat(0.10)))

	budget, err := manager.FinalizeSession(ctx, sessionID)
	rq.NoError(err)

	item := budget.CurrentVersion().Items[0]

	// 1000 * 1.20 * 0.90
	rq.True(decimal.NewFromInt(1080).Equal(item.FinalPrice))
	rq.True(decimal.NewFromFloat(0.08).Equal(item.MarginPct))
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	rq := require.New(t)

	ctx := context.Background()
	manager := testManager(newMemStore(), newMemRuleSets(emptyRuleSet(1)), &memBudgets{})

	sessionID, err := manager.CreateSession(ctx, "vendor-1", "client-1")
	rq.NoError(err)
	rq.NoError(manager.AddPackage(ctx, sessionID, testRecord("pkg-seed", 1000)))

	const writes = 50

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := 0; i < writes; i++ {
			_ = manager.AddPackage(ctx, sessionID, testRecord(fmt.Sprintf("pkg-%d", i), 500))
		}
	}()

	go func() {
		defer wg.Done()

		for i := 0; i < writes; i++ {
			record, err := manager.GetItem(ctx, sessionID, "pkg-seed")
			if err == nil {
				_ = record.Price.String()
			}

			snapshot, err := manager.GetSession(ctx, sessionID)
			if err == nil {
				for id := range snapshot.DataSnapshot {
					_ = id
				}
			}
		}
	}()

	wg.Wait()

	snapshot, err := manager.GetSession(ctx, sessionID)
	rq.NoError(err)
	rq.Len(snapshot.DataSnapshot, writes+1)
	rq.Len(snapshot.ItemOrder, writes+1)

	// The returned snapshot is a copy; mutating it never leaks back.
	delete(snapshot.DataSnapshot, "pkg-seed")

	again, err := manager.GetSession(ctx, sessionID)
	rq.NoError(err)
	rq.Len(again.DataSnapshot, writes+1)
}
