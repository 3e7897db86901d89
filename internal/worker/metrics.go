package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals
var (
	scanCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "travel_budget",
		Subsystem: "refresher",
		Name:      "scan_cycles_total",
		Help:      "Completed provider scan cycles.",
	})

	significantChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "travel_budget",
		Subsystem: "refresher",
		Name:      "significant_changes_total",
		Help:      "Budgets flagged for reconstruction by the detector.",
	})

	reconstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "travel_budget",
		Subsystem: "reconciler",
		Name:      "reconstructions_total",
		Help:      "Finished budget reconstructions by strategy.",
	}, []string{"strategy"})

	warningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "travel_budget",
		Subsystem: "reconciler",
		Name:      "warnings_total",
		Help:      "Warnings produced during reconciliation by code.",
	}, []string{"code"})
)
