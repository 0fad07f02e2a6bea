// Package metrics defines every custom Prometheus metric exported by paywatch.
// Metrics are registered with the default registry through promauto when the
// package is loaded; the /metrics route serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paywatch"

// ── Consistency engine ────────────────────────────────────────────────────────

// ConsistencyOperationsTotal counts multi-entity operations by outcome.
// Labels:
//   - operation: e.g. "create_account", "delete_device"
//   - result: "ok", "noop", "rejected", "failed" or "partial"
var ConsistencyOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consistency_operations_total",
		Help:      "Total number of consistency engine operations, by outcome.",
	},
	[]string{"operation", "result"},
)

// ConsistencyStepsTotal counts individual store writes issued by an operation.
// Labels:
//   - operation, step
//   - result: "ok", "vanished" (target missing, skipped) or "error"
var ConsistencyStepsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consistency_steps_total",
		Help:      "Total number of consistency engine steps, by result.",
	},
	[]string{"operation", "step", "result"},
)

// ── Sessions ──────────────────────────────────────────────────────────────────

// SessionsLive tracks sessions currently held by this process.
var SessionsLive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Number of live sessions held in memory.",
	},
)

// SessionInvalidationsTotal counts terminal session transitions.
// Label:
//   - reason: AccountDeleted, AccountSuspended, CredentialChanged, Idle, LoggedOut
var SessionInvalidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_invalidations_total",
		Help:      "Total number of invalidated sessions, by reason.",
	},
	[]string{"reason"},
)

// SnapshotQueueDepth is the number of account snapshots waiting per worker.
var SnapshotQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_queue_depth",
		Help:      "Current number of account snapshots pending in each dispatcher worker.",
	},
	[]string{"worker_id"},
)

// ── Reports and capture ───────────────────────────────────────────────────────

// ReportDuration measures how long a report view takes to derive.
var ReportDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_duration_seconds",
		Help:      "Duration of report derivations.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"view"},
)

// ReportCacheTotal counts summary cache lookups by result ("hit" or "miss").
var ReportCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_cache_total",
		Help:      "Total number of report summary cache lookups.",
	},
	[]string{"result"},
)

// PaymentsCapturedTotal counts payments recorded through the capture API.
var PaymentsCapturedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_captured_total",
		Help:      "Total number of captured payments.",
	},
)
