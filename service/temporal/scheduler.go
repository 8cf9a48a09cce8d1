package temporal

import (
	"context"
	"time"
)

// ReconcileScheduleID is the single schedule driving the reconcile
// workflow. One schedule covers all pools; the workflow fans out over the
// active set itself.
const ReconcileScheduleID = "reconcile-pools"

// Scheduler manages the Temporal schedule for pool reconciliation.
type Scheduler interface {
	// EnsureReconcileSchedule creates the reconcile schedule if it does not
	// exist. Idempotent.
	EnsureReconcileSchedule(ctx context.Context, interval time.Duration) error

	// DeleteReconcileSchedule removes the reconcile schedule.
	DeleteReconcileSchedule(ctx context.Context) error
}
