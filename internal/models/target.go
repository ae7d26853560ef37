package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TargetType enumerates the kinds of biddable entities a Target can be.
type TargetType string

const (
	TargetTypeKeyword       TargetType = "keyword"
	TargetTypeProductTarget TargetType = "product_target"
	TargetTypeAudience      TargetType = "audience"
)

// MatchType enumerates keyword match types. Non-keyword targets leave this empty.
type MatchType string

const (
	MatchTypeBroad  MatchType = "broad"
	MatchTypePhrase MatchType = "phrase"
	MatchTypeExact  MatchType = "exact"
)

// TargetStatus enumerates the lifecycle states of a Target.
type TargetStatus string

const (
	TargetStatusEnabled  TargetStatus = "enabled"
	TargetStatusPaused   TargetStatus = "paused"
	TargetStatusArchived TargetStatus = "archived"
)

// Target is a biddable entity: a keyword, product target, or audience.
// Identity is the pair (TargetType, ID). Bid is not checked against the
// owning campaign's MinBid/MaxBid on any write path; the coordinator clamps
// and batch validation rejects bids outside AlgorithmParams.MinBid/MaxBid.
type Target struct {
	ID          string
	TargetType  TargetType
	AccountID   string
	CampaignID  string
	AdGroupID   string
	MatchType   MatchType
	Text        string
	Bid         decimal.Decimal
	Status      TargetStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PlacementType enumerates the auction placements a campaign bids into.
type PlacementType string

const (
	PlacementTopOfSearch PlacementType = "top_of_search"
	PlacementProductPage PlacementType = "product_page"
	PlacementRest        PlacementType = "rest"
)

// DaypartingPolicy maps hour-of-week (0-167, Sunday 00:00 = 0) to a
// multiplier applied to the base bid. A nil/empty policy means 1.0 always.
type DaypartingPolicy struct {
	Enabled     bool
	Multipliers map[int]float64
}

// Multiplier returns the configured multiplier for the given hour-of-week,
// defaulting to 1.0 when the policy is disabled or the hour is unset.
func (p DaypartingPolicy) Multiplier(hourOfWeek int) float64 {
	if !p.Enabled {
		return 1.0
	}
	if m, ok := p.Multipliers[hourOfWeek]; ok {
		return m
	}
	return 1.0
}

// Campaign owns ad groups, a daily budget, placement multipliers, an
// optional dayparting policy, and optional performance-group membership.
type Campaign struct {
	ID                 string
	AccountID          string
	Name               string
	DailyBudget        decimal.Decimal
	MinBid             decimal.Decimal
	MaxBid             decimal.Decimal
	PlacementPct       map[PlacementType]int // integer percent, per spec §9
	Dayparting         DaypartingPolicy
	PerformanceGroupID string // empty when ungrouped
	Enabled            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OptimizationGoal enumerates the goals a PerformanceGroup can pursue.
type OptimizationGoal string

const (
	GoalMaximizeSales  OptimizationGoal = "maximize_sales"
	GoalTargetACoS     OptimizationGoal = "target_acos"
	GoalTargetROAS     OptimizationGoal = "target_roas"
	GoalDailySpendLimit OptimizationGoal = "daily_spend_limit"
	GoalDailyCost      OptimizationGoal = "daily_cost"
)

// PerformanceGroup is a goal container that drives group-level optimization
// and budget reallocation across its member campaigns.
type PerformanceGroup struct {
	ID          string
	AccountID   string
	Name        string
	Goal        OptimizationGoal
	GoalTarget  decimal.Decimal
	CampaignIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
