package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"travel_budget/internal/domain"
	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/pkg/errcodes"
)

type BudgetStore interface {
	GetByID(ctx context.Context, id string) (*entity.Budget, error)
	AppendVersion(ctx context.Context, budgetID string, version entity.BudgetVersion) error
}

type WarningStore interface {
	CreateBatch(ctx context.Context, warnings []entity.Warning) error
}

type RuleSetSource interface {
	ByVersion(ctx context.Context, version int) (*entity.RuleSet, error)
}

type ReconcileSource interface {
	FetchByIDs(ctx context.Context, ids []string) (map[string]entity.PackageRecord, error)
	FetchByCategory(ctx context.Context, category string) ([]entity.PackageRecord, error)
}

// Handlers owns the background task processing: budget reconciliation
// against fresh provider data and deferred rule validation after a budget is
// produced.
type Handlers struct {
	budgets  BudgetStore
	warnings WarningStore
	ruleSets RuleSetSource
	provider ReconcileSource
	recon    *reconstruction.Engine
	rules    *rules.Engine

	now         func() time.Time
	newID       func() string
	lastAttempt func(ctx context.Context) bool
}

func NewHandlers(
	budgets BudgetStore,
	warnings WarningStore,
	ruleSets RuleSetSource,
	provider ReconcileSource,
	recon *reconstruction.Engine,
	rulesEngine *rules.Engine,
) *Handlers {
	return &Handlers{
		budgets:     budgets,
		warnings:    warnings,
		ruleSets:    ruleSets,
		provider:    provider,
		recon:       recon,
		rules:       rulesEngine,
		now:         time.Now,
		newID:       uuid.NewString,
		lastAttempt: asynqLastAttempt,
	}
}

// WithRetryState overrides how retry exhaustion is detected. For tests.
func (h *Handlers) WithRetryState(fn func(ctx context.Context) bool) *Handlers {
	h.lastAttempt = fn
	return h
}

func asynqLastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}

	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}

	return retried >= maxRetry
}

// HandleReconcileBudget re-fetches the provider records under one budget and
// appends a reconstructed version when anything moved. Provider timeouts are
// returned as-is so the queue retries with backoff; unresolvable budgets
// skip retrying because repeating them cannot succeed.
func (h *Handlers) HandleReconcileBudget(ctx context.Context, task *asynq.Task) error {
	var payload ReconcileBudgetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal: %v: %w", err, asynq.SkipRetry)
	}

	strategy, err := reconstruction.ParseStrategy(payload.Strategy)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	budget, err := h.budgets.GetByID(ctx, payload.BudgetID)
	if err != nil {
		if domain.HasCode(err, errcodes.BudgetNotFound) {
			return fmt.Errorf("budget %s: %v: %w", payload.BudgetID, err, asynq.SkipRetry)
		}

		return err
	}

	if budget.Status != entity.BudgetStatusDraft && budget.Status != entity.BudgetStatusPending {
		logger(ctx).Debug("budget no longer open, skipping reconciliation",
			"budget_id", budget.ID,
			"status", string(budget.Status),
		)

		return nil
	}

	if _, err := h.ReconcileBudget(ctx, budget, strategy); err != nil {
		if domain.HasCode(err, errcodes.UnresolvableItem) {
			return fmt.Errorf("budget %s: %v: %w", budget.ID, err, asynq.SkipRetry)
		}

		if domain.HasCode(err, errcodes.ProviderFetchTimeout) && h.lastAttempt(ctx) {
			return h.markUnresolved(ctx, budget, err)
		}

		return err
	}

	return nil
}

// markUnresolved is the degraded exit once the queue gives up on a budget:
// every item of the current version gets an ITEM_UNRESOLVED warning so the
// seller sees the stale state instead of the task archiving silently.
func (h *Handlers) markUnresolved(ctx context.Context, budget *entity.Budget, cause error) error {
	items := budget.CurrentVersion().Items

	warnings := make([]entity.Warning, 0, len(items))
	for _, item := range items {
		warnings = append(warnings, entity.Warning{
			ID:        h.newID(),
			BudgetID:  budget.ID,
			ItemID:    item.ItemID(),
			Code:      entity.WarningItemUnresolved,
			Message:   fmt.Sprintf("provider data could not be refreshed: %v", cause),
			CreatedAt: h.now(),
		})
	}

	if err := h.warnings.CreateBatch(ctx, warnings); err != nil {
		return fmt.Errorf("warnings.CreateBatch: %w", err)
	}

	for _, warning := range warnings {
		warningsTotal.WithLabelValues(string(warning.Code)).Inc()
	}

	logger(ctx).Warn("reconciliation retries exhausted, items left unresolved",
		"budget_id", budget.ID,
		"items", len(items),
	)

	return nil
}

// ReconcileBudget runs one reconstruction against live provider data and
// persists the outcome. It is shared by the queue handler and the manual
// reconstruction endpoint. The returned warnings are already stored.
func (h *Handlers) ReconcileBudget(ctx context.Context, budget *entity.Budget, strategy reconstruction.Strategy) ([]entity.Warning, error) {
	current := budget.CurrentVersion()

	ids := make([]string, 0, len(current.Items))
	for _, item := range current.Items {
		ids = append(ids, item.ItemID())
	}

	fresh, err := h.provider.FetchByIDs(ctx, ids)
	if err != nil {
		// Timeouts and transport failures stay retryable.
		return nil, fmt.Errorf("provider.FetchByIDs: %w", err)
	}

	var alternatives []entity.PackageRecord

	if strategy == reconstruction.StrategyBestAlternative {
		alternatives, err = h.fetchAlternatives(ctx, current.Items)
		if err != nil {
			return nil, fmt.Errorf("fetchAlternatives: %w", err)
		}
	}

	versionsBefore := len(budget.Versions)

	warnings, err := h.recon.Reconstruct(ctx, budget, reconstruction.Input{
		Fresh:        fresh,
		Alternatives: alternatives,
		Strategy:     strategy,
	})
	if err != nil {
		return nil, err
	}

	if len(budget.Versions) == versionsBefore {
		return nil, nil
	}

	if err := h.budgets.AppendVersion(ctx, budget.ID, budget.CurrentVersion()); err != nil {
		return nil, fmt.Errorf("budgets.AppendVersion: %w", err)
	}

	if err := h.warnings.CreateBatch(ctx, warnings); err != nil {
		return nil, fmt.Errorf("warnings.CreateBatch: %w", err)
	}

	reconstructionsTotal.WithLabelValues(string(strategy)).Inc()

	for _, warning := range warnings {
		warningsTotal.WithLabelValues(string(warning.Code)).Inc()
	}

	return warnings, nil
}

// HandleDeferredRules validates one budget against the deferred rule tier
// and records a warning per violated rule. Deferred rules never block; they
// only flag.
func (h *Handlers) HandleDeferredRules(ctx context.Context, task *asynq.Task) error {
	var payload DeferredRulesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal: %v: %w", err, asynq.SkipRetry)
	}

	budget, err := h.budgets.GetByID(ctx, payload.BudgetID)
	if err != nil {
		if domain.HasCode(err, errcodes.BudgetNotFound) {
			return fmt.Errorf("budget %s: %v: %w", payload.BudgetID, err, asynq.SkipRetry)
		}

		return err
	}

	// Validate against the version the producing session was pinned to, not
	// whatever is current now.
	ruleSet, err := h.ruleSets.ByVersion(ctx, budget.RuleSetVersion)
	if err != nil {
		return fmt.Errorf("ruleSets.ByVersion: %w", err)
	}

	var warnings []entity.Warning

	for _, item := range budget.CurrentVersion().Items {
		actions, err := h.rules.EvaluateTier(ruleSet, h.itemContext(item), entity.RuleTierDeferred)
		if err != nil {
			return fmt.Errorf("rules.EvaluateTier: %w", err)
		}

		for _, action := range actions {
			if action.Type != entity.ActionReject {
				continue
			}

			message := action.Message
			if message == "" {
				message = "deferred rule violated"
			}

			warnings = append(warnings, entity.Warning{
				ID:        h.newID(),
				BudgetID:  budget.ID,
				ItemID:    item.ItemID(),
				Code:      entity.WarningDeferredRule,
				Message:   message,
				CreatedAt: h.now(),
			})
		}
	}

	if len(warnings) == 0 {
		return nil
	}

	if err := h.warnings.CreateBatch(ctx, warnings); err != nil {
		return fmt.Errorf("warnings.CreateBatch: %w", err)
	}

	for _, warning := range warnings {
		warningsTotal.WithLabelValues(string(warning.Code)).Inc()
	}

	logger(ctx).Info("deferred rule violations recorded",
		"budget_id", budget.ID,
		"warnings", len(warnings),
	)

	return nil
}

func (h *Handlers) fetchAlternatives(ctx context.Context, items []entity.BudgetItem) ([]entity.PackageRecord, error) {
	seen := make(map[string]bool)

	var pool []entity.PackageRecord

	for _, item := range items {
		category := item.Record.Details.Category()
		if category == "" || seen[category] {
			continue
		}

		seen[category] = true

		records, err := h.provider.FetchByCategory(ctx, category)
		if err != nil {
			return nil, err
		}

		pool = append(pool, records...)
	}

	return pool, nil
}

// itemContext exposes one priced item to the deferred rules, including the
// commercial numbers the critical tier never sees post-finalization.
func (h *Handlers) itemContext(item entity.BudgetItem) rules.Context {
	return rules.Context{
		PackageData: map[string]any{
			"package_id":        item.Record.ID,
			"provider_id":       item.Record.ProviderID,
			"price":             item.Record.Price.InexactFloat64(),
			"currency":          item.Record.Currency,
			"availability":      item.Record.Availability,
			"category":          item.Record.Details.Category(),
			"rating":            item.Record.Details.Rating(),
			"margin_percentage": item.MarginPct.InexactFloat64(),
			"final_price":       item.FinalPrice.InexactFloat64(),
		},
	}
}
