package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/pkg/errcodes"
)

type WarningRepository struct {
	db *sqlx.DB
}

func NewWarningRepository(db *sqlx.DB) *WarningRepository {
	return &WarningRepository{db: db}
}

// CreateBatch stores warnings atomically; reconstruction emits them in
// groups and either all land or none do.
func (r *WarningRepository) CreateBatch(ctx context.Context, warnings []entity.Warning) error {
	if len(warnings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to begin transaction")
	}

	query := `
		INSERT INTO warnings (id, budget_id, item_id, code, message, acknowledged, created_at)
		VALUES (:id, :budget_id, :item_id, :code, :message, :acknowledged, :created_at)`

	for i, warning := range warnings {
		if _, err := tx.NamedExecContext(ctx, query, fromWarning(warning)); err != nil {
			_ = tx.Rollback()

			return domain.WrapError(err, errcodes.InternalServerError,
				fmt.Sprintf("failed at index %d", i))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to commit")
	}

	return nil
}

// ListByBudget returns every unacknowledged warning of one budget, newest
// first.
func (r *WarningRepository) ListByBudget(ctx context.Context, budgetID string) ([]entity.Warning, error) {
	query := `
		SELECT id, budget_id, item_id, code, message, acknowledged, created_at
		FROM warnings
		WHERE budget_id = $1 AND NOT acknowledged
		ORDER BY created_at DESC`

	var schemas []warningSchema
	if err := r.db.SelectContext(ctx, &schemas, query, budgetID); err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to list warnings")
	}

	warnings := make([]entity.Warning, 0, len(schemas))
	for _, schema := range schemas {
		warnings = append(warnings, schema.toDomain())
	}

	return warnings, nil
}

// Acknowledge hides a warning from further listings.
func (r *WarningRepository) Acknowledge(ctx context.Context, warningID string) error {
	query := `UPDATE warnings SET acknowledged = TRUE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, warningID)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to acknowledge warning")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to check update")
	}

	if affected == 0 {
		return domain.NewError(errcodes.NotFound, "warning not found")
	}

	return nil
}
