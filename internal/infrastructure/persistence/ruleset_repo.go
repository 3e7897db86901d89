package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/pkg/errcodes"
)

type RuleSetRepository struct {
	db *sqlx.DB
}

func NewRuleSetRepository(db *sqlx.DB) *RuleSetRepository {
	return &RuleSetRepository{db: db}
}

// Current returns the highest published version. When no rule set exists yet
// an empty version-0 set is returned so new sessions can still be opened.
func (r *RuleSetRepository) Current(ctx context.Context) (*entity.RuleSet, error) {
	query := `
		SELECT version, rules, created_at
		FROM rule_sets
		ORDER BY version DESC
		LIMIT 1`

	var schema ruleSetSchema
	if err := r.db.GetContext(ctx, &schema, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &entity.RuleSet{Version: 0}, nil
		}

		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to get rule set")
	}

	set, err := schema.toDomain()
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode rule set")
	}

	return set, nil
}

// ByVersion returns one pinned version. Version 0 is the implicit empty set.
func (r *RuleSetRepository) ByVersion(ctx context.Context, version int) (*entity.RuleSet, error) {
	if version == 0 {
		return &entity.RuleSet{Version: 0}, nil
	}

	query := `
		SELECT version, rules, created_at
		FROM rule_sets
		WHERE version = $1`

	var schema ruleSetSchema
	if err := r.db.GetContext(ctx, &schema, query, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(errcodes.RuleSetNotFound, "rule set version not found")
		}

		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to get rule set")
	}

	set, err := schema.toDomain()
	if err != nil {
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to decode rule set")
	}

	return set, nil
}

// Create publishes a new immutable rule set version. The primary key rejects
// a version number that was already published.
func (r *RuleSetRepository) Create(ctx context.Context, set *entity.RuleSet) error {
	schema, err := fromRuleSet(set)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to encode rule set")
	}

	query := `
		INSERT INTO rule_sets (version, rules, created_at)
		VALUES (:version, :rules, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, schema); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to insert rule set")
	}

	return nil
}
