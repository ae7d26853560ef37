package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total coordinator cycles, labelled by outcome (applied/clamped/tripped)
	CoordinatorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_coordinator_cycles_total",
			Help: "Total bid coordinator cycles",
		},
		[]string{"outcome"},
	)

	// coordinator cycle latency in seconds
	CoordinatorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bidops_coordinator_duration_seconds",
			Help:    "Histogram of bid coordinator cycle latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// number of times the circuit breaker tripped, labelled by target
	CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_circuit_breaker_trips_total",
			Help: "Total circuit breaker trips in the bid coordinator",
		},
		[]string{"account_id"},
	)

	// proposals submitted per source
	ProposalCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_proposals_total",
			Help: "Total bid proposals submitted, by source",
		},
		[]string{"source"},
	)

	// batch operations, labelled by operation type and terminal outcome
	BatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_batch_outcomes_total",
			Help: "Total batch operations completed, by type and outcome",
		},
		[]string{"operation_type", "outcome"},
	)

	// items processed within batches, labelled by outcome
	BatchItemOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_batch_item_outcomes_total",
			Help: "Total batch items processed, by outcome",
		},
		[]string{"outcome"},
	)

	// current intraday pacing ratio per campaign
	PacingRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bidops_pacing_ratio",
			Help: "Current spend-runway pacing ratio per campaign",
		},
		[]string{"campaign_id", "state"},
	)

	// anomalies detected by the pacing controller
	PacingAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_pacing_anomalies_total",
			Help: "Total pacing anomalies detected",
		},
		[]string{"campaign_id", "type"},
	)

	// effect-tracking accuracy score distribution
	TrackingAccuracy = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bidops_tracking_accuracy",
			Help:    "Histogram of effect-tracking accuracy scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// rollback suggestions raised, labelled by rule
	RollbackSuggestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_rollback_suggestions_total",
			Help: "Total rollback suggestions raised, by rule",
		},
		[]string{"rule"},
	)

	// scheduled task executions, labelled by task type and outcome
	TaskExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_task_executions_total",
			Help: "Total scheduled task executions, by type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	// rate limit hits per (account, api family)
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_ratelimit_hits_total",
			Help: "Total rate limit hits per account/api family",
		},
		[]string{"account_id", "api_family"},
	)

	// rate limit requests per (account, api family)
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_ratelimit_requests_total",
			Help: "Total rate limit requests per account/api family",
		},
		[]string{"account_id", "api_family"},
	)

	// consistency-checker divergences detected between data-plane tracks
	DataPlaneDivergences = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidops_dataplane_divergences_total",
			Help: "Total divergences detected between stream and report tracks",
		},
		[]string{"target_id"},
	)
)

func init() {
	prometheus.MustRegister(
		CoordinatorCycles,
		CoordinatorLatency,
		CircuitBreakerTrips,
		ProposalCount,
		BatchOutcomes,
		BatchItemOutcomes,
		PacingRatio,
		PacingAnomalies,
		TrackingAccuracy,
		RollbackSuggestions,
		TaskExecutions,
		RateLimitHits,
		RateLimitRequests,
		DataPlaneDivergences,
	)
}
