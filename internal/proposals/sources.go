// Package proposals implements the Proposal Sources (C4): independent
// analyzers that each emit BidProposals as pure functions of (target,
// context). None of them write bids directly — that is the coordinator's
// (C5) job. Grounded on spec §4.4; the external-signal sources borrow
// their caching/client shape from the teacher's
// internal/optimization/ctr_client.go (patrickwarner-openadserve).
package proposals

import (
	"time"

	"github.com/patrickwarner/bidops/internal/models"
)

// Context carries everything a proposal source needs to evaluate a single
// target for one coordinator cycle.
type Context struct {
	Campaign       models.Campaign
	CurveModel     *models.MarketCurveModel // nil when no model has been fit yet
	CurrentHour    int                      // hour-of-week, 0-167
	InventoryLevel float64                  // 0-1, fraction of stock remaining; 1 means no constraint
	OrganicRank    int                      // 1 = top organic result, 0 = unranked/unknown
	Now            time.Time
}

// BaseAlgo proposes the curve-fitter's profit-maximizing bid as an
// absolute bid, when a model exists with a usable fit (spec §4.4: "base
// bid algo").
func BaseAlgo(target models.Target, ctx Context) []models.BidProposal {
	if ctx.CurveModel == nil || ctx.CurveModel.OptimalBid <= 0 {
		return nil
	}
	bid := decimalFromFloat(ctx.CurveModel.OptimalBid)
	confidence := ctx.CurveModel.Impression.RSquared
	if confidence <= 0 {
		confidence = 0.5 // degraded/piecewise fit still carries some signal
	}
	if confidence > 1 {
		confidence = 1
	}
	return []models.BidProposal{{
		TargetID:    target.ID,
		TargetType:  target.TargetType,
		Source:      models.SourceBaseAlgo,
		AbsoluteBid: &bid,
		Confidence:  confidence,
		Reason:      "profit-maximizing bid from fitted market curve",
		Timestamp:   ctx.Now,
	}}
}

// Dayparting proposes a multiplicative adjustment derived from the
// campaign's dayparting policy for the current hour-of-week.
func Dayparting(target models.Target, ctx Context) []models.BidProposal {
	if !ctx.Campaign.Dayparting.Enabled {
		return nil
	}
	mult := ctx.Campaign.Dayparting.Multiplier(ctx.CurrentHour)
	if mult == 1.0 {
		return nil
	}
	return []models.BidProposal{{
		TargetID:            target.ID,
		TargetType:          target.TargetType,
		Source:              models.SourceDayparting,
		SuggestedMultiplier:  mult,
		Confidence:           0.8,
		Reason:               "hour-of-week dayparting policy",
		Timestamp:            ctx.Now,
	}}
}

// Placement proposes a multiplicative adjustment reflecting the campaign's
// top-of-search placement tilt; it leans in when top-of-search converts
// well, pulling back when it doesn't, bounded to a modest adjustment.
func Placement(target models.Target, ctx Context) []models.BidProposal {
	pct, ok := ctx.Campaign.PlacementPct[models.PlacementTopOfSearch]
	if !ok || pct == 0 {
		return nil
	}
	mult := 1 + float64(pct)/100/4 // fold a quarter of the placement tilt into the proposal
	return []models.BidProposal{{
		TargetID:            target.ID,
		TargetType:          target.TargetType,
		Source:              models.SourcePlacement,
		SuggestedMultiplier:  mult,
		Confidence:           0.7,
		Reason:               "top-of-search placement tilt",
		Timestamp:            ctx.Now,
	}}
}

// Inventory proposes a downward multiplier when stock is constrained,
// protecting against bidding up demand for inventory that cannot be
// fulfilled. It carries the highest default weight because it encodes a
// hard stock-protection constraint (spec §4.5).
func Inventory(target models.Target, ctx Context) []models.BidProposal {
	if ctx.InventoryLevel >= 1.0 || ctx.InventoryLevel <= 0 {
		return nil
	}
	mult := 0.5 + 0.5*ctx.InventoryLevel // scales from 0.5x at zero stock to 1x at full stock
	return []models.BidProposal{{
		TargetID:            target.ID,
		TargetType:          target.TargetType,
		Source:              models.SourceInventory,
		SuggestedMultiplier:  mult,
		Confidence:           1.0,
		Reason:               "constrained inventory",
		Timestamp:            ctx.Now,
	}}
}

// OrganicRank proposes a downward multiplier when the target already
// ranks well organically, since paid spend there is less incremental.
func OrganicRank(target models.Target, ctx Context) []models.BidProposal {
	if ctx.OrganicRank <= 0 || ctx.OrganicRank > 3 {
		return nil
	}
	mult := 0.85
	return []models.BidProposal{{
		TargetID:            target.ID,
		TargetType:          target.TargetType,
		Source:              models.SourceOrganicRank,
		SuggestedMultiplier:  mult,
		Confidence:           0.6,
		Reason:               "strong organic rank reduces incremental paid value",
		Timestamp:            ctx.Now,
	}}
}

// All runs every proposal source against target and concatenates their
// output.
func All(target models.Target, ctx Context) []models.BidProposal {
	var out []models.BidProposal
	for _, source := range []func(models.Target, Context) []models.BidProposal{
		BaseAlgo, Dayparting, Placement, Inventory, OrganicRank,
	} {
		out = append(out, source(target, ctx)...)
	}
	return out
}
