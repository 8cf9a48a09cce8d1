package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/lotpool/lotpool/service/metrics"
	"github.com/lotpool/lotpool/service/reconciler"
)

// ReconcilerInterface defines the reconcile operation the activity needs.
// This allows for easy mocking in tests.
type ReconcilerInterface interface {
	ReconcileOnce(ctx context.Context) (reconciler.Result, error)
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	reconciler ReconcilerInterface
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(rec ReconcilerInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		reconciler: rec,
		metrics:    m,
		logger:     logger,
	}
}

// ReconcilePools runs one reconcile pass.
func (act *Activities) ReconcilePools(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	start := time.Now()

	res, err := act.reconciler.ReconcileOnce(ctx)

	if act.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		act.metrics.RecordActivityDuration("ReconcilePools", time.Since(start).Seconds())
		act.metrics.RecordWorkflowDuration(status, time.Since(start).Seconds())
	}
	if err != nil {
		act.logger.ErrorContext(ctx, "reconcile pass failed", "error", err)
		return nil, err
	}

	return &ReconcileResult{
		PoolsChecked: res.PoolsChecked,
		Actions:      res.Actions,
		Errors:       res.Errors,
		RunTime:      start.UTC(),
	}, nil
}
