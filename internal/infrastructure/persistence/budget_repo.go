package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/pkg/errcodes"
)

type BudgetRepository struct {
	db *sqlx.DB
}

func NewBudgetRepository(db *sqlx.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return domain.WrapError(
				fmt.Errorf("%w; rollback: %v", err, rbErr),
				errcodes.InternalServerError,
				"transaction failed",
			)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to commit")
	}

	return nil
}

// Create stores a budget together with all versions it already carries.
func (r *BudgetRepository) Create(ctx context.Context, budget *entity.Budget) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		clientInfo, err := marshalClientInfo(budget.ClientInfo)
		if err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to encode client info")
		}

		query := `
			INSERT INTO budgets (id, session_id, vendor_id, rule_set_version, client_info, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		if _, err := tx.ExecContext(ctx, query,
			budget.ID, budget.SessionID, budget.VendorID, budget.RuleSetVersion,
			clientInfo, string(budget.Status), budget.CreatedAt, budget.UpdatedAt,
		); err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to insert budget")
		}

		for _, version := range budget.Versions {
			if err := insertVersionTx(ctx, tx, budget.ID, version); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByID loads a budget with its full version history, oldest first.
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.Budget, error) {
	query := `
		SELECT id, session_id, vendor_id, rule_set_version, client_info, status, created_at, updated_at
		FROM budgets
		WHERE id = $1`

	var schema budgetSchema
	if err := r.db.GetContext(ctx, &schema, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(errcodes.BudgetNotFound, "budget not found")
		}

		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to get budget")
	}

	versions, err := r.versions(ctx, id)
	if err != nil {
		return nil, err
	}

	budget, err := schema.toDomain(versions)
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode budget")
	}

	return budget, nil
}

// AppendVersion persists one new version and bumps the budget timestamp. The
// version table's primary key rejects duplicates, which turns concurrent
// reconstructions of the same budget into a conflict instead of silent loss.
func (r *BudgetRepository) AppendVersion(ctx context.Context, budgetID string, version entity.BudgetVersion) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertVersionTx(ctx, tx, budgetID, version); err != nil {
			return err
		}

		query := `UPDATE budgets SET updated_at = $2 WHERE id = $1`

		result, err := tx.ExecContext(ctx, query, budgetID, version.CreatedAt)
		if err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to touch budget")
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "failed to check update")
		}

		if affected == 0 {
			return domain.NewError(errcodes.BudgetNotFound, "budget not found")
		}

		return nil
	})
}

// UpdateStatus moves a budget through its lifecycle.
func (r *BudgetRepository) UpdateStatus(ctx context.Context, budgetID string, status entity.BudgetStatus, updatedAt time.Time) error {
	query := `UPDATE budgets SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, budgetID, string(status), updatedAt)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to update status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to check update")
	}

	if affected == 0 {
		return domain.NewError(errcodes.BudgetNotFound, "budget not found")
	}

	return nil
}

// ListOpen returns budgets still exposed to provider drift: DRAFT and
// PENDING ones, full version history attached. The refresh worker scans
// these.
func (r *BudgetRepository) ListOpen(ctx context.Context, limit int) ([]*entity.Budget, error) {
	query := `
		SELECT id, session_id, vendor_id, rule_set_version, client_info, status, created_at, updated_at
		FROM budgets
		WHERE status IN ($1, $2)
		ORDER BY updated_at
		LIMIT $3`

	var schemas []budgetSchema
	if err := r.db.SelectContext(ctx, &schemas, query,
		string(entity.BudgetStatusDraft), string(entity.BudgetStatusPending), limit,
	); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list budgets")
	}

	budgets := make([]*entity.Budget, 0, len(schemas))

	for i := range schemas {
		versions, err := r.versions(ctx, schemas[i].ID)
		if err != nil {
			return nil, err
		}

		budget, err := schemas[i].toDomain(versions)
		if err != nil {
			return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode budget")
		}

		budgets = append(budgets, budget)
	}

	return budgets, nil
}

func marshalClientInfo(info entity.ClientInfo) ([]byte, error) {
	return json.Marshal(info)
}

func insertVersionTx(ctx context.Context, tx *sqlx.Tx, budgetID string, version entity.BudgetVersion) error {
	schema, err := fromBudgetVersion(budgetID, version)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to encode version")
	}

	query := `
		INSERT INTO budget_versions (budget_id, version_number, items, markup_pct, changes, created_at)
		VALUES (:budget_id, :version_number, :items, :markup_pct, :changes, :created_at)`

	if _, err := tx.NamedExecContext(ctx, query, schema); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to insert version")
	}

	return nil
}

func (r *BudgetRepository) versions(ctx context.Context, budgetID string) ([]entity.BudgetVersion, error) {
	query := `
		SELECT budget_id, version_number, items, markup_pct, changes, created_at
		FROM budget_versions
		WHERE budget_id = $1
		ORDER BY version_number`

	var schemas []budgetVersionSchema
	if err := r.db.SelectContext(ctx, &schemas, query, budgetID); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to get versions")
	}

	versions := make([]entity.BudgetVersion, 0, len(schemas))

	for _, schema := range schemas {
		version, err := schema.toDomain()
		if err != nil {
			return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode version")
		}

		versions = append(versions, version)
	}

	return versions, nil
}
