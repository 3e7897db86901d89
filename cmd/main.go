package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/lmittmann/tint"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"travel_budget/internal/config"
	"travel_budget/internal/domain/service/detector"
	"travel_budget/internal/domain/service/reconstruction"
	"travel_budget/internal/domain/service/rules"
	"travel_budget/internal/domain/service/session"
	"travel_budget/internal/infrastructure/persistence"
	"travel_budget/internal/infrastructure/provider"
	"travel_budget/internal/infrastructure/sessionstore"
	"travel_budget/internal/server"
	"travel_budget/internal/worker"
	"travel_budget/pkg/application/connectors"
	"travel_budget/pkg/application/modules"
	"travel_budget/pkg/logx"
	"travel_budget/pkg/middlewarex"
)

const (
	appName    = "travel-budget"
	appVersion = "dev"

	logFieldMaxLen = 4096
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("application failed", logx.Error(err))
		os.Exit(1)
	}

	log.Info("application stopped")
}

func run(ctx context.Context, log *slog.Logger) error {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	// 2. Database
	pg := &connectors.Postgres{
		DSN:             cfg.Postgres.DSN,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}
	db := pg.Client(ctx)
	defer pg.Close(ctx)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db.PingContext: %w", err)
	}

	budgetRepo := persistence.NewBudgetRepository(db)
	ruleSetRepo := persistence.NewRuleSetRepository(db)
	warningRepo := persistence.NewWarningRepository(db)

	// 3. Redis / task queue
	rd := &connectors.Redis{
		Address:            cfg.Redis.Address,
		Username:           cfg.Redis.Username,
		Password:           cfg.Redis.Password,
		DatabaseNumber:     cfg.Redis.DatabaseNumber,
		PoolSize:           cfg.Redis.PoolSize,
		MinIdleConnections: cfg.Redis.MinIdleConnections,
		MaxIdleConnections: cfg.Redis.MaxIdleConnections,
	}
	defer rd.Close(ctx)

	asynqClient := asynq.NewClientFromRedisClient(rd.Client(ctx))

	// 4. Domain engines
	changeDetector := detector.New(detector.Config{
		NoiseTolerancePct: decimal.NewFromFloat(cfg.Engine.NoiseTolerancePct),
		SignificancePct:   decimal.NewFromFloat(cfg.Engine.SignificancePct),
		AvailabilityDelta: cfg.Engine.AvailabilityDelta,
	})

	ruleEngine := rules.NewEngine()

	reconEngine := reconstruction.NewEngine(reconstruction.Config{
		SplitRatio:     decimal.NewFromFloat(cfg.Engine.SplitRatio),
		MarginFloorPct: decimal.NewFromFloat(cfg.Engine.MarginFloorPct),
		Weights: reconstruction.ScoreWeights{
			Price:        decimal.NewFromFloat(cfg.Engine.ScorePriceWeight),
			Rating:       decimal.NewFromFloat(cfg.Engine.ScoreRatingWeight),
			Availability: decimal.NewFromFloat(cfg.Engine.ScoreStockWeight),
		},
	}, changeDetector)

	defaultStrategy, err := reconstruction.ParseStrategy(cfg.Engine.DefaultStrategy)
	if err != nil {
		return fmt.Errorf("reconstruction.ParseStrategy: %w", err)
	}

	// 5. Provider catalog client
	catalog := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.FetchTimeout)

	// 6. Sessions
	sessionStore := sessionstore.New(cfg.Engine.SessionTTL, cfg.Engine.AbandonedTTL)
	sessionManager := session.NewManager(sessionStore, ruleSetRepo, ruleEngine, budgetRepo)

	// 7. Workers
	handlers := worker.NewHandlers(budgetRepo, warningRepo, ruleSetRepo, catalog, reconEngine, ruleEngine)

	refresher := worker.NewBudgetRefresher(budgetRepo, catalog, changeDetector, asynqClient).
		WithStrategy(defaultStrategy).
		WithScanInterval(cfg.Engine.RefreshInterval).
		WithBatchSize(cfg.Engine.RefreshBatchSize)

	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("refresher.Start: %w", err)
	}
	defer refresher.Stop()

	log.Info("budget refresher started",
		slog.String("strategy", string(defaultStrategy)),
		slog.Duration("interval", cfg.Engine.RefreshInterval),
	)

	// 8. HTTP API
	srv := server.NewServer(
		server.NewSessionServer(sessionManager, asynqClient),
		server.NewBudgetServer(budgetRepo, warningRepo, handlers),
	)

	masker := logx.NewSensitiveDataMasker()

	router := chi.NewRouter()
	router.Use(
		middlewarex.TraceID,
		middlewarex.Logger,
		middlewarex.RequestLogging(masker, logFieldMaxLen),
		middlewarex.ResponseLogging(masker, logFieldMaxLen),
		middlewarex.Recovery,
	)

	srv.RegisterRoutes(router)

	g, ctx := errgroup.WithContext(ctx)

	modules.HTTPServer{
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}.Run(ctx, g, &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	})

	modules.ProbeServer{
		Name:          appName,
		Version:       appVersion,
		ListenAddress: cfg.HTTP.ProbeListenAddress,
	}.Run(ctx, g)

	modules.MetricServer{
		ListenAddress: cfg.HTTP.MetricsListenAddress,
	}.Run(ctx, g)

	modules.AsynqServer{
		RedisAddress:  cfg.Redis.Address,
		RedisUsername: cfg.Redis.Username,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DatabaseNumber,
	}.Run(ctx, g,
		modules.AsynqQueues{
			worker.QueueReconcile: 6,
			worker.QueueRules:     4,
		},
		modules.AsynqHandler{Pattern: worker.TaskReconcileBudget, Handle: handlers.HandleReconcileBudget},
		modules.AsynqHandler{Pattern: worker.TaskDeferredRules, Handle: handlers.HandleDeferredRules},
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("g.Wait: %w", err)
	}

	return nil
}
