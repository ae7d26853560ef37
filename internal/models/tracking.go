package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackingHorizon enumerates the re-measurement windows of spec §4.8.
type TrackingHorizon int

const (
	Horizon7Day  TrackingHorizon = 7
	Horizon14Day TrackingHorizon = 14
	Horizon30Day TrackingHorizon = 30
)

// EffectTrackingRecord holds re-measured outcomes for a BidAdjustmentRecord
// at each horizon crossing. Fields are populated incrementally and never
// back-dated (spec §3): a horizon's fields are nil until that horizon's
// re-measure task runs.
type EffectTrackingRecord struct {
	AdjustmentRecordID string
	TargetID           string

	ActualProfit7d  *decimal.Decimal
	ActualProfit14d *decimal.Decimal
	ActualProfit30d *decimal.Decimal

	ActualSpend7d       decimal.Decimal
	ActualClicks7d      int64
	ActualConversions7d int64

	EstimatedProfit decimal.Decimal // carried from the originating BidAdjustmentRecord

	TrackedAt time.Time
}

// ProfitForHorizon returns the realized profit for the given horizon, or
// nil if that horizon has not yet been re-measured.
func (r EffectTrackingRecord) ProfitForHorizon(h TrackingHorizon) *decimal.Decimal {
	switch h {
	case Horizon7Day:
		return r.ActualProfit7d
	case Horizon14Day:
		return r.ActualProfit14d
	case Horizon30Day:
		return r.ActualProfit30d
	default:
		return nil
	}
}

// RollbackRuleConditions gates whether a rule fires for a given adjustment.
type RollbackRuleConditions struct {
	ProfitThresholdPct       float64 // positive fraction, e.g. 0.20 fires on a drop of 20% or more
	MinTrackingDays          TrackingHorizon
	MinSampleCount           int
	IncludeNegativeAdjustments bool
}

// RollbackRuleActions controls what happens when a rule's conditions match.
type RollbackRuleActions struct {
	AutoRollback     bool
	SendNotification bool
	Priority         int
}

// RollbackRule is versioned; changes never retro-evaluate past records
// (spec §3).
type RollbackRule struct {
	ID         string
	AccountID  string
	Enabled    bool
	Version    int
	Conditions RollbackRuleConditions
	Actions    RollbackRuleActions
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SuggestionStatus enumerates the rollback suggestion lifecycle (spec §4.8).
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionExecuted SuggestionStatus = "executed"
)

// RollbackSuggestion is produced when a RollbackRule's conditions match an
// adjustment's tracked effect.
type RollbackSuggestion struct {
	ID                 string
	RuleID             string
	AdjustmentRecordID string
	TargetID           string
	AccountID          string
	Priority           int
	Status             SuggestionStatus
	Reason             string
	CreatedAt          time.Time
	ReviewedAt         *time.Time
	ExecutedBatchID    string
}
