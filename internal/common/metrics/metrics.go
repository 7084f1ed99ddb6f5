// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	EmailsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_emails_ingested_total",
			Help: "Inbound emails seen by the mailbox watcher",
		},
		[]string{"mailbox", "result"},
	)

	ExtractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_extractions_total",
			Help: "Extraction results by winning strategy",
		},
		[]string{"method", "success"},
	)

	MatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_match_outcomes_total",
			Help: "Matching engine outcomes",
		},
		[]string{"outcome"},
	)

	Approvals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_approvals_total",
			Help: "Payment approvals by result",
		},
		[]string{"result", "mismatch"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_webhook_deliveries_total",
			Help: "Per-URL webhook delivery results",
		},
		[]string{"result"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reconciler_queue_depth",
			Help: "Jobs waiting per queue list",
		},
		[]string{"list"},
	)
)
