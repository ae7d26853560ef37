package batch

import (
	"fmt"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

// ValidateItems checks creation-time invariants across all items of a new
// batch (spec §4.7: "validation failures abort batch creation atomically").
// params bounds bid items; maxAdjustmentPct bounds the relative size of a
// bid_adjustment item's change.
func ValidateItems(operationType models.BatchOperationType, items []models.BatchOperationItem, params models.AlgorithmParams, maxAdjustmentPct float64) error {
	for i, item := range items {
		switch operationType {
		case models.OperationBidAdjustment:
			if err := validateBidAdjustment(item, params, maxAdjustmentPct); err != nil {
				return apierr.Validation(fmt.Sprintf("item %d: %s", i, err.Error()))
			}
		case models.OperationNegativeKeyword:
			if err := validateNegativeKeyword(item); err != nil {
				return apierr.Validation(fmt.Sprintf("item %d: %s", i, err.Error()))
			}
		}
	}
	return nil
}

func validateBidAdjustment(item models.BatchOperationItem, params models.AlgorithmParams, maxAdjustmentPct float64) error {
	rawNewBid, ok := item.Payload["new_bid"]
	if !ok {
		return fmt.Errorf("missing new_bid")
	}
	newBid, ok := rawNewBid.(decimal.Decimal)
	if !ok {
		return fmt.Errorf("new_bid must be a decimal")
	}
	if newBid.LessThan(decimal.NewFromFloat(params.MinBid)) || newBid.GreaterThan(decimal.NewFromFloat(params.MaxBid)) {
		return fmt.Errorf("new_bid %s outside [%.2f, %.2f]", newBid.String(), params.MinBid, params.MaxBid)
	}
	if rawPrev, ok := item.Payload["previous_bid"]; ok {
		prevBid, ok := rawPrev.(decimal.Decimal)
		if ok && !prevBid.IsZero() {
			delta := newBid.Sub(prevBid).Div(prevBid).Abs()
			deltaF, _ := delta.Float64()
			if deltaF > maxAdjustmentPct {
				return fmt.Errorf("adjustment %.0f%% exceeds max permitted %.0f%%", deltaF*100, maxAdjustmentPct*100)
			}
		}
	}
	return nil
}

// validNegativeMatchTypes are the match types a negative keyword can carry
// (spec §4.7); exact and phrase are mutually exclusive scopes for the same
// text so any other value is a conflicting match type.
var validNegativeMatchTypes = map[models.MatchType]bool{
	models.MatchTypeBroad:  true,
	models.MatchTypePhrase: true,
	models.MatchTypeExact:  true,
}

func validateNegativeKeyword(item models.BatchOperationItem) error {
	text, _ := item.Payload["text"].(string)
	if text == "" {
		return fmt.Errorf("negative keyword text must not be empty")
	}
	matchType, _ := item.Payload["match_type"].(string)
	if matchType == "" {
		return fmt.Errorf("negative keyword match type must be set")
	}
	if !validNegativeMatchTypes[models.MatchType(matchType)] {
		return fmt.Errorf("negative keyword match type %q conflicts with the supported set (broad, phrase, exact)", matchType)
	}
	return nil
}
