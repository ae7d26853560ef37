package models

// AlgorithmParams is process-wide read-mostly configuration with
// copy-on-write updates (spec §5). A changed parameter set only affects
// evaluations initiated after the change — callers must re-fetch via
// Store.AlgorithmParams() rather than holding a reference across cycles.
type AlgorithmParams struct {
	MaxAllowedCPC            float64
	CPCWarningThreshold      float64
	MaxTotalMultiplier       float64
	CircuitBreakerMultiplier float64
	MinBid                   float64
	MaxBid                   float64
	AttributionDelayHours    int
	ExcludeDays              map[string]int // per-algo exclude-days, spec §4.3
	ProfitMarginPct          float64
	ConversionValueMultiplier float64
	MaxDailyAdjustments      int
	CooldownPeriodHours      int
	MinConfidenceThreshold   float64
	MinDataPoints            int

	// SourceWeights resolves spec §9's open question: per-source
	// coordinator weights are tenant-configurable, defaulting per §4.5.
	SourceWeights map[ProposalSource]float64

	PacingCriticalRatio      float64
	PacingOverspendingRatio  float64
	PacingUnderspendingRatio float64
	PacingMinIntervalMinutes int
}

// DefaultAlgorithmParams returns the spec-default parameter set (§4.5,
// §4.6, §6).
func DefaultAlgorithmParams() AlgorithmParams {
	return AlgorithmParams{
		MaxAllowedCPC:            5.00,
		CPCWarningThreshold:      3.00,
		MaxTotalMultiplier:       2.5,
		CircuitBreakerMultiplier: 1.5,
		MinBid:                   0.02,
		MaxBid:                   100.00,
		AttributionDelayHours:    48,
		ExcludeDays: map[string]int{
			"bid":         1,
			"placement":   3,
			"dayparting":  3,
			"search_term": 1,
		},
		ProfitMarginPct:           0.20,
		ConversionValueMultiplier: 1.0,
		MaxDailyAdjustments:       4,
		CooldownPeriodHours:       6,
		MinConfidenceThreshold:    0.6,
		MinDataPoints:             30,
		SourceWeights: map[ProposalSource]float64{
			SourceBaseAlgo:    1.0,
			SourceDayparting:  0.8,
			SourcePlacement:   0.7,
			SourceInventory:   1.0,
			SourceOrganicRank: 0.6,
		},
		PacingCriticalRatio:      2.0,
		PacingOverspendingRatio:  1.5,
		PacingUnderspendingRatio: 0.5,
		PacingMinIntervalMinutes: 15,
	}
}
