package reconstruction_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/detector"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/errcodes"
)

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func testEngine() *reconstruction.Engine {
	ids := 0

	return reconstruction.NewEngine(
		reconstruction.DefaultConfig(),
		detector.New(detector.DefaultConfig()),
	).WithClock(
		func() time.Time { return testNow },
		func() string {
			ids++
			return fmt.Sprintf("warning-%d", ids)
		},
	)
}

func record(id string, price float64, availability int, rating string) entity.PackageRecord {
	return entity.PackageRecord{
		ID:           id,
		ProviderID:   "provider-1",
		Price:        decimal.NewFromFloat(price),
		Currency:     "EUR",
		Availability: availability,
		Details: value.Details{
			value.DetailCategory: "hotel",
			value.DetailRating:   rating,
		},
		FetchedAt: testNow.Add(-time.Hour),
	}
}

func budgetWithItems(items ...entity.BudgetItem) *entity.Budget {
	return &entity.Budget{
		ID:       "budget-1",
		VendorID: "vendor-1",
		Status:   entity.BudgetStatusDraft,
		Versions: []entity.BudgetVersion{{
			VersionNumber: 1,
			Items:         items,
			CreatedAt:     testNow.Add(-24 * time.Hour),
		}},
		CreatedAt: testNow.Add(-24 * time.Hour),
		UpdatedAt: testNow.Add(-24 * time.Hour),
	}
}

func item(rec entity.PackageRecord, marginPct float64) entity.BudgetItem {
	margin := decimal.NewFromFloat(marginPct)

	return entity.BudgetItem{
		Record:     rec,
		FinalPrice: rec.Price.Mul(decimal.NewFromInt(1).Add(margin)),
		MarginPct:  margin,
	}
}

func freshState(records ...entity.PackageRecord) map[string]entity.PackageRecord {
	fresh := make(map[string]entity.PackageRecord, len(records))
	for _, rec := range records {
		fresh[rec.ID] = rec
	}

	return fresh
}

func TestReconstructIsIdempotent(t *testing.T) {
	rq := require.New(t)

	rec := record("pkg-1", 1000, 10, "4.0")
	budget := budgetWithItems(item(rec, 0.15))

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:    freshState(rec),
		Strategy: reconstruction.StrategyPreserveMargin,
	})
	rq.NoError(err)
	rq.Empty(warnings)
	rq.Len(budget.Versions, 1)
}

func TestReconstructPreserveMargin(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "4.0"), 0.15))

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:    freshState(record("pkg-1", 1200, 10, "4.0")),
		Strategy: reconstruction.StrategyPreserveMargin,
	})
	rq.NoError(err)
	rq.Empty(warnings)
	rq.Len(budget.Versions, 2)

	version := budget.CurrentVersion()
	rq.Equal(2, version.VersionNumber)
	rq.Len(version.Items, 1)

	rebuilt := version.Items[0]
	rq.True(decimal.NewFromFloat(0.15).Equal(rebuilt.MarginPct))
	rq.True(decimal.NewFromInt(1380).Equal(rebuilt.FinalPrice))
	rq.True(decimal.NewFromInt(1200).Equal(rebuilt.Record.Price))

	rq.Len(version.Changes, 1)
	rq.Equal(entity.ChangePriceIncrease, version.Changes[0].Type)
	rq.InDelta(0.20, version.Changes[0].Metadata[entity.MetaDeltaPct], 1e-9)
}

func TestReconstructPreservePriceAbsorbsIntoMargin(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "4.0"), 0.15))

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:    freshState(record("pkg-1", 1200, 10, "4.0")),
		Strategy: reconstruction.StrategyPreservePrice,
	})
	rq.NoError(err)

	rebuilt := budget.CurrentVersion().Items[0]
	rq.True(decimal.NewFromInt(1150).Equal(rebuilt.FinalPrice))

	// (1150 - 1200) / 1150
	wantMargin := decimal.NewFromInt(-50).Div(decimal.NewFromInt(1150))
	rq.True(wantMargin.Equal(rebuilt.MarginPct))

	rq.Len(warnings, 1)
	rq.Equal(entity.WarningNegativeMargin, warnings[0].Code)
	rq.Equal("budget-1", warnings[0].BudgetID)
	rq.Equal("pkg-1", warnings[0].ItemID)
}

func TestReconstructAdjustProportionally(t *testing.T) {
	testCases := []struct {
		name       string
		freshPrice float64
		wantFinal  float64
		wantMargin float64
	}{
		{
			// 1150 + (1100-1000)*0.5 = 1200, margin (1200-1100)/1100.
			name:       "Split without clamping",
			freshPrice: 1100,
			wantFinal:  1200,
			wantMargin: 100.0 / 1100.0,
		},
		{
			// Raw margin (1250-1200)/1200 falls under the floor, so the
			// price is rebuilt from the floor margin instead.
			name:       "Clamped to margin floor",
			freshPrice: 1200,
			wantFinal:  1260,
			wantMargin: 0.05,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)

			budget := budgetWithItems(item(record("pkg-1", 1000, 10, "4.0"), 0.15))

			warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
				Fresh:    freshState(record("pkg-1", tc.freshPrice, 10, "4.0")),
				Strategy: reconstruction.StrategyAdjustProportionally,
			})
			rq.NoError(err)
			rq.Empty(warnings)

			rebuilt := budget.CurrentVersion().Items[0]
			rq.True(decimal.NewFromFloat(tc.wantFinal).Equal(rebuilt.FinalPrice),
				"final price %s", rebuilt.FinalPrice)
			rq.InDelta(tc.wantMargin, rebuilt.MarginPct.InexactFloat64(), 1e-9)
		})
	}
}

func TestReconstructBestAlternativeSubstitutes(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "3.0"), 0.15))

	degraded := record("pkg-1", 1500, 5, "3.0")
	better := record("alt-1", 1000, 10, "4.5")
	worse := record("alt-2", 2000, 1, "2.0")

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:        freshState(degraded),
		Alternatives: []entity.PackageRecord{worse, better},
		Strategy:     reconstruction.StrategyBestAlternative,
	})
	rq.NoError(err)
	rq.Empty(warnings)

	version := budget.CurrentVersion()

	rebuilt := version.Items[0]
	rq.Equal("alt-1", rebuilt.Record.ID)
	rq.True(decimal.NewFromFloat(0.15).Equal(rebuilt.MarginPct))
	rq.True(decimal.NewFromInt(1150).Equal(rebuilt.FinalPrice))

	last := version.Changes[len(version.Changes)-1]
	rq.Equal(entity.ChangePackageSubstituted, last.Type)
	rq.Equal("pkg-1", last.Metadata[entity.MetaOriginalItem])
	rq.Equal("alt-1", last.Metadata[entity.MetaSelectedItem])
}

func TestReconstructBestAlternativeNoBetterCandidate(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "4.5"), 0.15))

	degraded := record("pkg-1", 1500, 10, "4.5")
	worse := record("alt-1", 2000, 1, "2.0")

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:        freshState(degraded),
		Alternatives: []entity.PackageRecord{worse},
		Strategy:     reconstruction.StrategyBestAlternative,
	})
	rq.NoError(err)

	rq.Len(warnings, 1)
	rq.Equal(entity.WarningNoBetterAlternative, warnings[0].Code)

	// Falls back to preserving the margin on the degraded price.
	rebuilt := budget.CurrentVersion().Items[0]
	rq.Equal("pkg-1", rebuilt.Record.ID)
	rq.True(decimal.NewFromInt(1725).Equal(rebuilt.FinalPrice))
}

func TestReconstructRemovedItem(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "4.0"), 0.15))

	_, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:    freshState(),
		Strategy: reconstruction.StrategyPreserveMargin,
	})
	rq.Error(err)
	rq.True(domain.HasCode(err, errcodes.UnresolvableItem))
	rq.Len(budget.Versions, 1)
}

func TestReconstructRemovedItemWithSubstitute(t *testing.T) {
	rq := require.New(t)

	budget := budgetWithItems(item(record("pkg-1", 1000, 10, "3.0"), 0.15))

	better := record("alt-1", 900, 10, "4.5")

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:        freshState(),
		Alternatives: []entity.PackageRecord{better},
		Strategy:     reconstruction.StrategyBestAlternative,
	})
	rq.NoError(err)
	rq.Empty(warnings)

	version := budget.CurrentVersion()
	rq.Equal("alt-1", version.Items[0].Record.ID)

	rq.Len(version.Changes, 2)
	rq.Equal(entity.ChangePackageRemoved, version.Changes[0].Type)
	rq.Equal(entity.ChangePackageSubstituted, version.Changes[1].Type)
}

func TestReconstructRemovedItemUnresolved(t *testing.T) {
	rq := require.New(t)

	stale := record("pkg-1", 1000, 10, "4.5")
	budget := budgetWithItems(item(stale, 0.15))

	warnings, err := testEngine().Reconstruct(context.Background(), budget, reconstruction.Input{
		Fresh:    freshState(),
		Strategy: reconstruction.StrategyBestAlternative,
	})
	rq.NoError(err)

	rq.Len(warnings, 1)
	rq.Equal(entity.WarningItemUnresolved, warnings[0].Code)

	// The stale item is kept so the budget stays presentable.
	version := budget.CurrentVersion()
	rq.Equal(2, version.VersionNumber)
	rq.Equal("pkg-1", version.Items[0].Record.ID)
	rq.Equal(entity.ChangePackageRemoved, version.Changes[0].Type)
}

func TestParseStrategy(t *testing.T) {
	rq := require.New(t)

	strategy, err := reconstruction.ParseStrategy("PRESERVE_MARGIN")
	rq.NoError(err)
	rq.Equal(reconstruction.StrategyPreserveMargin, strategy)

	_, err = reconstruction.ParseStrategy("KEEP_CALM")
	rq.True(domain.HasCode(err, errcodes.InvalidStrategy))
}
