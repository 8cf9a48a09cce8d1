package temporal

import (
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ReconcileInput is the (currently empty) workflow input. Kept as a struct
// so schedule arguments stay forward-compatible.
type ReconcileInput struct{}

// ReconcileResult summarizes one reconcile workflow execution.
type ReconcileResult struct {
	PoolsChecked int       `json:"pools_checked"`
	Actions      int       `json:"actions"`
	Errors       int       `json:"errors"`
	RunTime      time.Time `json:"run_time"`
}

// ReconcilePoolsWorkflow runs one reconcile pass over all active pools. It
// is triggered by the reconcile-pools schedule; the single activity does
// the chain reads and lifecycle submissions.
func ReconcilePoolsWorkflow(ctx workflow.Context, input ReconcileInput) (*ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ReconcilePoolsWorkflow started")

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *ReconcileResult
	if err := workflow.ExecuteActivity(ctx, a.ReconcilePools, input).Get(ctx, &result); err != nil {
		logger.Error("reconcile activity failed", "error", err)
		return nil, err
	}

	logger.Info("ReconcilePoolsWorkflow complete",
		"pools_checked", result.PoolsChecked,
		"actions", result.Actions,
		"errors", result.Errors,
	)
	return result, nil
}
