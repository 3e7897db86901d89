package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"travel_budget/internal/domain/service/reconstruction"
)

const (
	TaskReconcileBudget = "reconcile:budget"
	TaskDeferredRules   = "rules:deferred"
)

const (
	QueueReconcile = "reconcile"
	QueueRules     = "rules"
)

type ReconcileBudgetPayload struct {
	BudgetID string `json:"budget_id"`
	Strategy string `json:"strategy"`
}

func NewReconcileBudgetTask(budgetID string, strategy reconstruction.Strategy) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcileBudgetPayload{
		BudgetID: budgetID,
		Strategy: string(strategy),
	})
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return asynq.NewTask(TaskReconcileBudget, payload,
		asynq.Queue(QueueReconcile),
		asynq.MaxRetry(5),
	), nil
}

type DeferredRulesPayload struct {
	BudgetID string `json:"budget_id"`
}

func NewDeferredRulesTask(budgetID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeferredRulesPayload{BudgetID: budgetID})
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return asynq.NewTask(TaskDeferredRules, payload,
		asynq.Queue(QueueRules),
		asynq.MaxRetry(3),
	), nil
}
