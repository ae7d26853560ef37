package tracking

import (
	"math"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
)

// Evaluate checks one rule against one tracked effect and returns a
// RollbackSuggestion when the rule's conditions match (spec §4.8):
// (actualProfit - estimatedProfit) / max(|estimatedProfit|, eps) <= -threshold.
func Evaluate(rule models.RollbackRule, record models.EffectTrackingRecord, sampleCount int, adjustment models.BidAdjustmentRecord) (models.RollbackSuggestion, bool) {
	if !rule.Enabled {
		return models.RollbackSuggestion{}, false
	}
	if sampleCount < rule.Conditions.MinSampleCount {
		return models.RollbackSuggestion{}, false
	}
	if adjustment.NewBid.LessThan(adjustment.PreviousBid) && !rule.Conditions.IncludeNegativeAdjustments {
		return models.RollbackSuggestion{}, false
	}

	actual := record.ProfitForHorizon(rule.Conditions.MinTrackingDays)
	if actual == nil {
		return models.RollbackSuggestion{}, false
	}

	actualF, _ := actual.Float64()
	estimatedF, _ := record.EstimatedProfit.Float64()
	denom := math.Max(math.Abs(estimatedF), epsilon)
	relativeChange := (actualF - estimatedF) / denom

	if relativeChange > -rule.Conditions.ProfitThresholdPct {
		return models.RollbackSuggestion{}, false
	}

	return models.RollbackSuggestion{
		RuleID:             rule.ID,
		AdjustmentRecordID: record.AdjustmentRecordID,
		TargetID:           record.TargetID,
		AccountID:          rule.AccountID,
		Priority:           rule.Actions.Priority,
		Status:             models.SuggestionPending,
		Reason:             "profit dropped below rule threshold",
		CreatedAt:          time.Now().UTC(),
	}, true
}

// Review transitions a pending suggestion to approved or rejected.
func Review(s models.RollbackSuggestion, approve bool) (models.RollbackSuggestion, error) {
	if s.Status != models.SuggestionPending {
		return s, apierr.Conflict("suggestion must be pending to review, got " + string(s.Status))
	}
	now := time.Now().UTC()
	s.ReviewedAt = &now
	if approve {
		s.Status = models.SuggestionApproved
	} else {
		s.Status = models.SuggestionRejected
	}
	return s, nil
}

// BuildRollbackBatch constructs the bid_adjustment batch that reverses one
// suggestion's adjustment, restoring the previous bid (spec §4.8:
// "execution creates a new bid_adjustment batch restoring previous bids").
func BuildRollbackBatch(id string, suggestion models.RollbackSuggestion, adjustment models.BidAdjustmentRecord) models.BatchOperation {
	return models.BatchOperation{
		ID:               id,
		AccountID:        suggestion.AccountID,
		OperationType:    models.OperationBidAdjustment,
		Name:             "auto-rollback",
		Description:      "rollback for suggestion " + suggestion.ID,
		RequiresApproval: false,
		SourceType:       models.BatchSourceScheduled,
		Status:           models.BatchPending,
		CreatedAt:        time.Now().UTC(),
		Items: []models.BatchOperationItem{
			{
				EntityType: "target",
				EntityID:   adjustment.TargetID,
				Payload: map[string]any{
					"new_bid":      adjustment.PreviousBid,
					"previous_bid": adjustment.NewBid,
				},
				Status: models.ItemPending,
			},
		},
	}
}

// Execute marks a suggestion executed once its rollback batch has
// completed. The caller is responsible for flagging the originating
// adjustment record as rolled back (spec §4.8).
func Execute(s models.RollbackSuggestion, batchID string) (models.RollbackSuggestion, error) {
	if s.Status != models.SuggestionApproved {
		return s, apierr.Conflict("suggestion must be approved to execute, got " + string(s.Status))
	}
	s.Status = models.SuggestionExecuted
	s.ExecutedBatchID = batchID
	return s, nil
}

// Cleanup drops suggestions created before the retention cutoff
// (now - retention), grounded on the teacher's expired-cache sweep.
func Cleanup(suggestions []models.RollbackSuggestion, retention time.Duration, now time.Time) []models.RollbackSuggestion {
	cutoff := now.Add(-retention)
	kept := make([]models.RollbackSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
