package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// This replaces direct access to global Prometheus metrics with dependency
// injection, so packages like internal/coordinator and internal/batch never
// import prometheus directly.
type MetricsRegistry interface {
	// Coordinator cycle metrics
	IncrementCoordinatorCycles(outcome string)
	RecordCoordinatorLatency(outcome string, duration time.Duration)
	IncrementCircuitBreakerTrips(accountID string)

	// Proposal source metrics
	IncrementProposals(source string)

	// Batch execution metrics
	IncrementBatchOutcome(operationType, outcome string)
	IncrementBatchItemOutcome(outcome string)

	// Pacing controller metrics
	SetPacingRatio(campaignID, state string, ratio float64)
	IncrementPacingAnomaly(campaignID, anomalyType string)

	// Effect tracking metrics
	RecordTrackingAccuracy(score float64)
	IncrementRollbackSuggestions(rule string)

	// Scheduler metrics
	IncrementTaskExecution(taskType, outcome string)

	// Rate limiting metrics
	IncrementRateLimitRequests(accountID, apiFamily string)
	IncrementRateLimitHits(accountID, apiFamily string)

	// Data plane metrics
	IncrementDataPlaneDivergence(targetID string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level
// Prometheus collectors registered in metrics.go.
type PrometheusRegistry struct{}

func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementCoordinatorCycles(outcome string) {
	CoordinatorCycles.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordCoordinatorLatency(outcome string, duration time.Duration) {
	CoordinatorLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementCircuitBreakerTrips(accountID string) {
	CircuitBreakerTrips.WithLabelValues(accountID).Inc()
}

func (r *PrometheusRegistry) IncrementProposals(source string) {
	ProposalCount.WithLabelValues(source).Inc()
}

func (r *PrometheusRegistry) IncrementBatchOutcome(operationType, outcome string) {
	BatchOutcomes.WithLabelValues(operationType, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementBatchItemOutcome(outcome string) {
	BatchItemOutcomes.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetPacingRatio(campaignID, state string, ratio float64) {
	PacingRatio.WithLabelValues(campaignID, state).Set(ratio)
}

func (r *PrometheusRegistry) IncrementPacingAnomaly(campaignID, anomalyType string) {
	PacingAnomalies.WithLabelValues(campaignID, anomalyType).Inc()
}

func (r *PrometheusRegistry) RecordTrackingAccuracy(score float64) {
	TrackingAccuracy.Observe(score)
}

func (r *PrometheusRegistry) IncrementRollbackSuggestions(rule string) {
	RollbackSuggestions.WithLabelValues(rule).Inc()
}

func (r *PrometheusRegistry) IncrementTaskExecution(taskType, outcome string) {
	TaskExecutions.WithLabelValues(taskType, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(accountID, apiFamily string) {
	RateLimitRequests.WithLabelValues(accountID, apiFamily).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(accountID, apiFamily string) {
	RateLimitHits.WithLabelValues(accountID, apiFamily).Inc()
}

func (r *PrometheusRegistry) IncrementDataPlaneDivergence(targetID string) {
	DataPlaneDivergences.WithLabelValues(targetID).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods, used in tests
// and anywhere a registry is required but metrics are not of interest.
type NoOpRegistry struct{}

func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementCoordinatorCycles(outcome string)                             {}
func (r *NoOpRegistry) RecordCoordinatorLatency(outcome string, duration time.Duration)        {}
func (r *NoOpRegistry) IncrementCircuitBreakerTrips(accountID string)                          {}
func (r *NoOpRegistry) IncrementProposals(source string)                                      {}
func (r *NoOpRegistry) IncrementBatchOutcome(operationType, outcome string)                    {}
func (r *NoOpRegistry) IncrementBatchItemOutcome(outcome string)                               {}
func (r *NoOpRegistry) SetPacingRatio(campaignID, state string, ratio float64)                 {}
func (r *NoOpRegistry) IncrementPacingAnomaly(campaignID, anomalyType string)                  {}
func (r *NoOpRegistry) RecordTrackingAccuracy(score float64)                                   {}
func (r *NoOpRegistry) IncrementRollbackSuggestions(rule string)                               {}
func (r *NoOpRegistry) IncrementTaskExecution(taskType, outcome string)                        {}
func (r *NoOpRegistry) IncrementRateLimitRequests(accountID, apiFamily string)                 {}
func (r *NoOpRegistry) IncrementRateLimitHits(accountID, apiFamily string)                     {}
func (r *NoOpRegistry) IncrementDataPlaneDivergence(targetID string)                           {}
