package server

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/value"
	"travel_budget/pkg/rest"
)

func newDomainPackage(p rest.Package, now time.Time) (entity.PackageRecord, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return entity.PackageRecord{}, fmt.Errorf("decimal.NewFromString: %w", err)
	}

	dates := make([]value.DateRange, 0, len(p.Dates))

	for _, d := range p.Dates {
		start, err := time.Parse(time.DateOnly, d.Start)
		if err != nil {
			return entity.PackageRecord{}, fmt.Errorf("time.Parse: %w", err)
		}

		end, err := time.Parse(time.DateOnly, d.End)
		if err != nil {
			return entity.PackageRecord{}, fmt.Errorf("time.Parse: %w", err)
		}

		dates = append(dates, value.NewDateRange(start, end))
	}

	return entity.PackageRecord{
		ID:           p.ID,
		ProviderID:   p.ProviderID,
		Price:        price,
		Currency:     p.Currency,
		Availability: p.Availability,
		Dates:        dates,
		Details:      value.Details(p.Details),
		FetchedAt:    now,
	}, nil
}

func newRESTPackage(record entity.PackageRecord) rest.Package {
	dates := make([]rest.DateRange, 0, len(record.Dates))

	for _, d := range record.Dates {
		dates = append(dates, rest.DateRange{
			Start: d.Start.Format(time.DateOnly),
			End:   d.End.Format(time.DateOnly),
		})
	}

	return rest.Package{
		ID:           record.ID,
		ProviderID:   record.ProviderID,
		Price:        record.Price.String(),
		Currency:     record.Currency,
		Availability: record.Availability,
		Dates:        dates,
		Details:      record.Details,
	}
}

func newRESTSession(snapshot *entity.SessionSnapshot) rest.Session {
	items := make([]rest.Package, 0, len(snapshot.ItemOrder))

	for _, id := range snapshot.ItemOrder {
		if record, ok := snapshot.DataSnapshot[id]; ok {
			items = append(items, newRESTPackage(record))
		}
	}

	modifications := make([]rest.Modification, 0, len(snapshot.Modifications))

	for _, mod := range snapshot.Modifications {
		modifications = append(modifications, rest.Modification{
			Seq:       mod.Seq,
			ItemID:    mod.ItemID,
			Type:      string(mod.Type),
			Value:     mod.Value.String(),
			AppliedAt: mod.AppliedAt.Format(time.RFC3339),
		})
	}

	return rest.Session{
		SessionID:      snapshot.SessionID,
		VendorID:       snapshot.VendorID,
		CustomerID:     snapshot.CustomerID,
		RuleSetVersion: snapshot.RuleSetVersion,
		Status:         string(snapshot.Status),
		Items:          items,
		Modifications:  modifications,
		StartedAt:      snapshot.StartedAt.Format(time.RFC3339),
	}
}

func newRESTBudget(budget *entity.Budget) rest.Budget {
	version := budget.CurrentVersion()

	items := make([]rest.BudgetItem, 0, len(version.Items))

	for _, item := range version.Items {
		items = append(items, rest.BudgetItem{
			Package:          newRESTPackage(item.Record),
			FinalPrice:       item.FinalPrice.String(),
			MarginPercentage: item.MarginPct.String(),
		})
	}

	changes := make([]rest.Change, 0, len(version.Changes))

	for _, change := range version.Changes {
		changes = append(changes, rest.Change{
			Type:     string(change.Type),
			ItemID:   change.ItemID,
			OldValue: change.OldValue,
			NewValue: change.NewValue,
			Metadata: change.Metadata,
		})
	}

	return rest.Budget{
		ID:        budget.ID,
		SessionID: budget.SessionID,
		VendorID:  budget.VendorID,
		Client: rest.ClientInfo{
			Name:  budget.ClientInfo.Name,
			Email: budget.ClientInfo.Email,
			Phone: budget.ClientInfo.Phone,
		},
		Status:     string(budget.Status),
		Version:    version.VersionNumber,
		Items:      items,
		Changes:    changes,
		TotalPrice: version.TotalPrice().String(),
		CreatedAt:  budget.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  budget.UpdatedAt.Format(time.RFC3339),
	}
}

func newRESTWarnings(warnings []entity.Warning) []rest.Warning {
	out := make([]rest.Warning, 0, len(warnings))

	for _, w := range warnings {
		out = append(out, rest.Warning{
			ID:        w.ID,
			ItemID:    w.ItemID,
			Code:      string(w.Code),
			Message:   w.Message,
			CreatedAt: w.CreatedAt.Format(time.RFC3339),
		})
	}

	return out
}
