package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	cache "github.com/patrickmn/go-cache"

	"travel_budget/internal/domain/entity"
	"travel_budget/internal/domain/service/detector"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type BudgetLister interface {
	ListOpen(ctx context.Context, limit int) ([]*entity.Budget, error)
}

type ProviderSource interface {
	FetchByIDs(ctx context.Context, ids []string) (map[string]entity.PackageRecord, error)
}

type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// BudgetRefresher periodically re-fetches the provider records under every
// open budget and enqueues a reconciliation task when the drift is
// significant. A budget already queued is not enqueued again until the dedup
// entry expires.
type BudgetRefresher struct {
	budgets  BudgetLister
	provider ProviderSource
	detector *detector.Detector
	enqueuer TaskEnqueuer

	strategy     reconstruction.Strategy
	scanInterval time.Duration
	batchSize    int
	queued       *cache.Cache

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	isRunning  bool
	wg         sync.WaitGroup
}

func NewBudgetRefresher(
	budgets BudgetLister,
	provider ProviderSource,
	d *detector.Detector,
	enqueuer TaskEnqueuer,
) *BudgetRefresher {
	return &BudgetRefresher{
		budgets:      budgets,
		provider:     provider,
		detector:     d,
		enqueuer:     enqueuer,
		strategy:     reconstruction.StrategyPreserveMargin,
		scanInterval: 5 * time.Minute,
		batchSize:    100,
		queued:       cache.New(15*time.Minute, 5*time.Minute),
	}
}

func (w *BudgetRefresher) WithStrategy(strategy reconstruction.Strategy) *BudgetRefresher {
	w.strategy = strategy
	return w
}

func (w *BudgetRefresher) WithScanInterval(interval time.Duration) *BudgetRefresher {
	if interval > 0 {
		w.scanInterval = interval
	}

	return w
}

func (w *BudgetRefresher) WithBatchSize(size int) *BudgetRefresher {
	if size > 0 {
		w.batchSize = size
	}

	return w
}

func (w *BudgetRefresher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return errors.New("refresher is already running")
	}

	scanCtx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.isRunning = true

	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			w.isRunning = false
			w.cancelFunc = nil
			w.mu.Unlock()
		}()

		if err := w.Run(scanCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger(scanCtx).Error("refresher stopped", "error", err)
		}
	}()

	return nil
}

func (w *BudgetRefresher) Stop() {
	w.mu.Lock()

	if !w.isRunning {
		w.mu.Unlock()
		return
	}

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *BudgetRefresher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.isRunning
}

func (w *BudgetRefresher) Run(ctx context.Context) error {
	logger(ctx).Info("budget refresher started", "interval", w.scanInterval.String())

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger(ctx).Info("budget refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.scanAll(ctx)
		}
	}
}

// ScanOnce triggers a single scan cycle outside the ticker schedule.
func (w *BudgetRefresher) ScanOnce(ctx context.Context) {
	w.scanAll(ctx)
}

func (w *BudgetRefresher) scanAll(ctx context.Context) {
	budgets, err := w.budgets.ListOpen(ctx, w.batchSize)
	if err != nil {
		logger(ctx).Error("failed to list open budgets", "error", err)
		return
	}

	var flagged int

	for _, budget := range budgets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		enqueued, err := w.scanOne(ctx, budget)
		if err != nil {
			logger(ctx).Error("scan failed", "budget_id", budget.ID, "error", err)
			continue
		}

		if enqueued {
			flagged++
		}
	}

	scanCyclesTotal.Inc()

	if flagged > 0 {
		logger(ctx).Info("scan cycle completed", "budgets", len(budgets), "flagged", flagged)
	}
}

func (w *BudgetRefresher) scanOne(ctx context.Context, budget *entity.Budget) (bool, error) {
	if _, pending := w.queued.Get(budget.ID); pending {
		return false, nil
	}

	current := budget.CurrentVersion()

	order := make([]string, 0, len(current.Items))
	frozen := make(map[string]entity.PackageRecord, len(current.Items))

	for _, item := range current.Items {
		order = append(order, item.ItemID())
		frozen[item.ItemID()] = item.Record
	}

	if len(order) == 0 {
		return false, nil
	}

	fresh, err := w.provider.FetchByIDs(ctx, order)
	if err != nil {
		return false, err
	}

	changes := w.detector.DetectAll(order, frozen, fresh)
	if !w.detector.IsSignificant(changes) {
		return false, nil
	}

	task, err := NewReconcileBudgetTask(budget.ID, w.strategy)
	if err != nil {
		return false, err
	}

	if _, err := w.enqueuer.EnqueueContext(ctx, task); err != nil {
		return false, err
	}

	w.queued.Set(budget.ID, true, cache.DefaultExpiration)
	significantChangesTotal.Inc()

	logger(ctx).Info("budget flagged for reconciliation",
		"budget_id", budget.ID,
		"changes", len(changes),
	)

	return true, nil
}
