package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// EnsureReconcileSchedule creates the reconcile schedule if it does not
// exist yet.
func (c *Client) EnsureReconcileSchedule(ctx context.Context, interval time.Duration) error {
	c.logger.Debug("ensuring reconcile schedule",
		"schedule_id", ReconcileScheduleID,
		"interval", interval,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: ReconcileScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "reconcile-pools-run",
			Workflow:  "ReconcilePoolsWorkflow",
			TaskQueue: c.taskQueue,
			Args:      []interface{}{ReconcileInput{}},
		},
		// A reconcile pass must finish before the next starts; overlapping
		// passes would race on the same pools.
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Memo: map[string]interface{}{
			"created_by": "lotpool",
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") {
			c.logger.Debug("reconcile schedule already exists", "schedule_id", ReconcileScheduleID)
			return nil
		}
		return fmt.Errorf("failed to create schedule %q: %w", ReconcileScheduleID, err)
	}

	c.logger.Info("reconcile schedule created",
		"schedule_id", ReconcileScheduleID,
		"interval", interval,
	)
	return nil
}

// DeleteReconcileSchedule removes the reconcile schedule.
func (c *Client) DeleteReconcileSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ReconcileScheduleID)
	if err := handle.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", ReconcileScheduleID, err)
	}
	c.logger.Info("reconcile schedule deleted", "schedule_id", ReconcileScheduleID)
	return nil
}

// Close closes the underlying Temporal connection.
func (c *Client) Close() {
	c.client.Close()
}

// temporalLogger adapts slog to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
