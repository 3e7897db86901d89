package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/pkg/errcodes"
	"travel_budget/pkg/httpx/reply"
	"travel_budget/pkg/httpx/req"
	"travel_budget/pkg/rest"
)

type budgetReader interface {
	GetByID(ctx context.Context, id string) (*entity.Budget, error)
}

type warningLister interface {
	ListByBudget(ctx context.Context, budgetID string) ([]entity.Warning, error)
}

type reconciler interface {
	ReconcileBudget(ctx context.Context, budget *entity.Budget, strategy reconstruction.Strategy) ([]entity.Warning, error)
}

type BudgetServer struct {
	budgets    budgetReader
	warnings   warningLister
	reconciler reconciler
}

func NewBudgetServer(budgets budgetReader, warnings warningLister, reconciler reconciler) BudgetServer {
	return BudgetServer{
		budgets:    budgets,
		warnings:   warnings,
		reconciler: reconciler,
	}
}

func (s BudgetServer) getV1Budget(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	budgetID, err := budgetIDFromPath(r)
	if err != nil {
		return err
	}

	budget, err := s.budgets.GetByID(ctx, budgetID)
	if err != nil {
		return mapError(err)
	}

	reply.JSON(ctx, w, http.StatusOK, newRESTBudget(budget))

	return nil
}

func (s BudgetServer) postV1BudgetReconstruct(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	budgetID, err := budgetIDFromPath(r)
	if err != nil {
		return err
	}

	var request rest.ReconstructRequest

	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	strategy, err := reconstruction.ParseStrategy(request.Strategy)
	if err != nil {
		return mapError(err)
	}

	budget, err := s.budgets.GetByID(ctx, budgetID)
	if err != nil {
		return mapError(err)
	}

	warnings, err := s.reconciler.ReconcileBudget(ctx, budget, strategy)
	if err != nil {
		return mapError(err)
	}

	reply.JSON(ctx, w, http.StatusOK, rest.ReconstructResponse{
		Budget:   newRESTBudget(budget),
		Warnings: newRESTWarnings(warnings),
	})

	return nil
}

func (s BudgetServer) getV1BudgetWarnings(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	budgetID, err := budgetIDFromPath(r)
	if err != nil {
		return err
	}

	// The listing 404s for an unknown budget instead of answering an empty
	// list for a typoed id.
	if _, err := s.budgets.GetByID(ctx, budgetID); err != nil {
		return mapError(err)
	}

	warnings, err := s.warnings.ListByBudget(ctx, budgetID)
	if err != nil {
		return mapError(err)
	}

	reply.JSON(ctx, w, http.StatusOK, rest.WarningList{Warnings: newRESTWarnings(warnings)})

	return nil
}

func budgetIDFromPath(r *http.Request) (string, error) {
	raw := r.PathValue("id")

	if _, err := uuid.Parse(raw); err != nil {
		return "", mapError(domain.WrapError(err, errcodes.ValidationError, "budget id must be a UUID"))
	}

	return raw, nil
}
