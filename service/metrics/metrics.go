package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service. The struct is
// passed explicitly to every component that records metrics; a nil *Metrics
// disables recording at each call site.
type Metrics struct {
	// Solana RPC
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec

	// Claim verification
	verificationsTotal *prometheus.CounterVec

	// Transaction submission
	submissionsTotal   *prometheus.CounterVec
	submissionAttempts *prometheus.HistogramVec

	// Replay guard
	replayConflictsTotal *prometheus.CounterVec

	// Reconciler
	reconcileRunsTotal    *prometheus.CounterVec
	reconcileRunDuration  *prometheus.HistogramVec
	reconcileActionsTotal *prometheus.CounterVec

	// Workflow
	workflowDuration *prometheus.HistogramVec
	activityDuration *prometheus.HistogramVec

	// Database
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claim_verifications_total",
				Help: "Total number of claim verifications by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_submissions_total",
				Help: "Total number of transaction submission pipelines by outcome",
			},
			[]string{"status"},
		),
		submissionAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_submission_attempts",
				Help:    "Attempts used per transaction submission pipeline",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"status"},
		),

		replayConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_conflicts_total",
				Help: "Total number of claims rejected because the signature was already used",
			},
			[]string{"operation"},
		),

		reconcileRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_runs_total",
				Help: "Total number of reconcile passes by outcome",
			},
			[]string{"status"},
		),
		reconcileRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_run_duration_seconds",
				Help:    "Duration of reconcile passes in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		reconcileActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_actions_total",
				Help: "Total number of lifecycle actions driven by the reconciler",
			},
			[]string{"action", "status"},
		),

		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_workflow_duration_seconds",
				Help:    "Duration of reconcile workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_activity_duration_seconds",
				Help:    "Duration of reconcile workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordVerification records a claim verification outcome.
func (m *Metrics) RecordVerification(operation, status string) {
	m.verificationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordSubmission records a completed submission pipeline and the attempts
// it consumed.
func (m *Metrics) RecordSubmission(status string, attempts int) {
	m.submissionsTotal.WithLabelValues(status).Inc()
	m.submissionAttempts.WithLabelValues(status).Observe(float64(attempts))
}

// RecordReplayConflict records a claim rejected by the replay guard.
func (m *Metrics) RecordReplayConflict(operation string) {
	m.replayConflictsTotal.WithLabelValues(operation).Inc()
}

// RecordReconcileRun records a full reconcile pass.
func (m *Metrics) RecordReconcileRun(status string, duration float64) {
	m.reconcileRunsTotal.WithLabelValues(status).Inc()
	m.reconcileRunDuration.WithLabelValues(status).Observe(duration)
}

// RecordReconcileAction records a single lifecycle action taken by the
// reconciler.
func (m *Metrics) RecordReconcileAction(action, status string) {
	m.reconcileActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordWorkflowDuration records a reconcile workflow execution.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.workflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records a reconcile activity execution.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
