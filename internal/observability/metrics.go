// Package observability exposes the Prometheus metrics surfaced by the
// scheduler (the worker records none), grounded on the teacher's
// control_plane/observability/metrics.go (promauto-registered vecs with a
// flux_ prefix; here, a flowmr_ prefix).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of ready (not yet dispatched) tasks.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowmr_queue_depth",
		Help: "Current number of ready tasks across all jobs",
	})

	// ActiveAttempts tracks in-flight attempts.
	ActiveAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowmr_active_attempts",
		Help: "Current number of in-flight attempts",
	})

	// DispatchDecisions counts dispatch decisions by outcome.
	DispatchDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowmr_dispatch_decisions_total",
		Help: "Total scheduling decisions made, by outcome",
	}, []string{"decision"})

	// CommitEvents counts commit-protocol resolutions.
	CommitEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowmr_commit_events_total",
		Help: "Total task commit resolutions, by result (committed, redundant)",
	}, []string{"result"})

	// BackupsLaunched counts speculative backup attempts launched by the
	// straggler monitor.
	BackupsLaunched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowmr_backups_launched_total",
		Help: "Total speculative backup attempts launched",
	}, []string{"kind"})

	// WorkerLiveness tracks the current liveness state per worker.
	WorkerLiveness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmr_worker_liveness",
		Help: "Worker liveness (0=Dead, 1=Suspect, 2=Alive)",
	}, []string{"worker_id"})

	// JobPhase tracks the current phase per job.
	JobPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowmr_job_phase",
		Help: "Current job phase (1=Map, 2=Reduce, 3=Completed, 4=Failed)",
	}, []string{"job_id"})

	// TaskDuration tracks committed-attempt durations, the input to the
	// straggler monitor's median baseline.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowmr_task_duration_seconds",
		Help:    "Committed attempt durations",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// AttemptOutcomes counts attempts by terminal outcome.
	AttemptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowmr_attempt_outcomes_total",
		Help: "Total finished attempts by outcome",
	}, []string{"outcome"})
)
