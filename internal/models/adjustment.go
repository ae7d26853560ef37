package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentSource enumerates what originated a bid change.
type AdjustmentSource string

const (
	AdjustmentAutoOptimal    AdjustmentSource = "auto_optimal"
	AdjustmentAutoDayparting AdjustmentSource = "auto_dayparting"
	AdjustmentAutoPlacement  AdjustmentSource = "auto_placement"
	AdjustmentBatchCampaign  AdjustmentSource = "batch_campaign"
	AdjustmentBatchGroup     AdjustmentSource = "batch_group"
	AdjustmentManual         AdjustmentSource = "manual"
	AdjustmentRollback       AdjustmentSource = "rollback"
)

// BidAdjustmentRecord is an append-only history row per applied bid change
// (spec §3). Rows are never updated in place except for IsRolledBack, which
// is set once the adjustment has been rolled back; the effect tracker
// attaches EffectTrackingRecords by AdjustmentRecordID.
type BidAdjustmentRecord struct {
	ID                   string
	TargetID             string
	AccountID            string
	PreviousBid          decimal.Decimal
	NewBid               decimal.Decimal
	Source               AdjustmentSource
	Reason               string
	ExpectedProfitDelta  decimal.Decimal
	AppliedBy            string
	AppliedAt            time.Time
	BatchID              string // empty when applied outside a batch
	IsRolledBack         bool
}
