// Package coordinator implements the Central Bid Coordinator (C5): it
// merges BidProposals per target with per-source weights, enforces the
// theoretical-CPC cap via a circuit breaker, and emits a single
// CoordinationResult. Grounded directly on spec §4.5 and the worked
// scenarios in spec §8; lock striping (locks.go) is the common Go sync
// idiom, not lifted from one corpus file.
package coordinator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Input bundles everything applyCoordinatedBids needs for one target
// (spec §4.5: "inputs — campaign, account, proposals[], currentBaseBid,
// currentPlacementPct, currentDaypartingMult").
type Input struct {
	AccountID              string
	TargetID               string
	CurrentBaseBid         decimal.Decimal
	CurrentPlacementPct    int
	CurrentDaypartingMult  float64
	Proposals              []models.BidProposal
}

// Coordinator applies coordinated bids under a shared AlgorithmParams
// source and a per-(account,target) lock table.
type Coordinator struct {
	Locks   *LockTable
	Params  func() models.AlgorithmParams
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger
}

// ApplyCoordinatedBids runs the full C5 algorithm for a single target and
// returns the CoordinationResult. The per-(account,target) lock is held only
// while the result is computed and is released before this function
// returns; persisting a BidAdjustmentRecord for the result happens outside
// that lock.
func (c *Coordinator) ApplyCoordinatedBids(ctx context.Context, in Input) models.CoordinationResult {
	_, span := observability.StartCoordinatorSpan(ctx, in.AccountID, in.TargetID)
	defer span.End()

	unlock := c.Locks.Lock(in.AccountID, in.TargetID)
	defer unlock()

	params := c.Params()
	now := time.Now().UTC()

	absolute, multiplicative := splitProposals(in.Proposals)

	base := in.CurrentBaseBid
	if len(absolute) > 0 {
		base = weightedAverageAbsolute(absolute, params.SourceWeights)
	}

	combinedMultiplier := combineMultiplicative(multiplicative, params.SourceWeights)
	baseFloat, _ := base.Float64()
	newBaseFloat := baseFloat * combinedMultiplier
	newBase := decimal.NewFromFloat(newBaseFloat)

	placementFactor := 1 + float64(in.CurrentPlacementPct)/100
	theoreticalCPC := newBaseFloat * in.CurrentDaypartingMult * placementFactor

	var warnings []string
	tripped := false
	finalBaseFloat := newBaseFloat

	if theoreticalCPC > params.MaxAllowedCPC {
		tripped = true
		denom := in.CurrentDaypartingMult * placementFactor
		safeBid := params.MaxAllowedCPC
		if denom > 0 {
			safeBid = params.MaxAllowedCPC / denom
		}
		ceiling := baseFloat * params.CircuitBreakerMultiplier
		if safeBid > ceiling {
			safeBid = ceiling
		}
		finalBaseFloat = safeBid
		warnings = append(warnings, fmt.Sprintf("[circuit-breaker] theoretical CPC %.2f exceeded cap %.2f; clamped base bid to %.2f", theoreticalCPC, params.MaxAllowedCPC, safeBid))
		if c.Metrics != nil {
			c.Metrics.IncrementCircuitBreakerTrips(in.AccountID)
		}
	} else if theoreticalCPC > params.CPCWarningThreshold || combinedMultiplier > params.MaxTotalMultiplier {
		warnings = append(warnings, fmt.Sprintf("theoretical CPC %.2f or multiplier %.2f exceeds soft threshold", theoreticalCPC, combinedMultiplier))
	}

	clamped := clampAndRound(finalBaseFloat, params.MinBid, params.MaxBid)
	finalBid := decimal.NewFromFloat(clamped)

	outcome := "applied"
	if tripped {
		outcome = "tripped"
	} else if len(warnings) > 0 {
		outcome = "warned"
	}
	if c.Metrics != nil {
		c.Metrics.IncrementCoordinatorCycles(outcome)
	}

	result := models.CoordinationResult{
		TargetID:              in.TargetID,
		OriginalBid:           in.CurrentBaseBid,
		FinalBid:              finalBid,
		TheoreticalMaxCPC:     decimal.NewFromFloat(theoreticalCPC),
		EffectiveMultiplier:   combinedMultiplier,
		Proposals:             in.Proposals,
		CircuitBreakerTripped: tripped,
		Reason:                reasonFromProposals(in.Proposals),
		Warnings:              warnings,
		ComputedAt:            now,
	}

	if c.Logger != nil {
		c.Logger.Info("coordinator cycle",
			zap.String("target_id", in.TargetID),
			zap.String("final_bid", finalBid.String()),
			zap.Bool("circuit_breaker_tripped", tripped))
	}

	return result
}

func splitProposals(proposals []models.BidProposal) (absolute, multiplicative []models.BidProposal) {
	for _, p := range proposals {
		if p.IsAbsolute() {
			absolute = append(absolute, p)
		} else if p.SuggestedMultiplier != 0 {
			multiplicative = append(multiplicative, p)
		}
	}
	return absolute, multiplicative
}

// weightedAverageAbsolute computes the weighted average of absolute bid
// proposals, weighted by weight(source)*confidence (spec §4.5 step 2).
func weightedAverageAbsolute(proposals []models.BidProposal, weights map[models.ProposalSource]float64) decimal.Decimal {
	var weightedSum, totalWeight float64
	for _, p := range proposals {
		w := sourceWeight(weights, p.Source) * p.Confidence
		bid, _ := p.AbsoluteBid.Float64()
		weightedSum += w * bid
		totalWeight += w
	}
	if totalWeight == 0 {
		if len(proposals) == 0 {
			return decimal.Zero
		}
		bid, _ := proposals[0].AbsoluteBid.Float64()
		return decimal.NewFromFloat(bid)
	}
	return decimal.NewFromFloat(weightedSum / totalWeight)
}

// combineMultiplicative multiplies each proposal's damped effective
// multiplier together: effectiveMultiplier = 1 + (m-1)*weight*confidence
// (spec §4.5 step 2). Proposals that tie on weight and confidence are
// resolved by the smaller magnitude of change first (conservatism), per
// the tie-break rule in spec §4.5 — this only affects ordering, since
// multiplication is commutative, but the ordering is kept deterministic
// for audit-log reproducibility.
func combineMultiplicative(proposals []models.BidProposal, weights map[models.ProposalSource]float64) float64 {
	sorted := append([]models.BidProposal(nil), proposals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sourceWeight(weights, sorted[i].Source), sourceWeight(weights, sorted[j].Source)
		if wi != wj {
			return wi > wj
		}
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return math.Abs(sorted[i].SuggestedMultiplier-1) < math.Abs(sorted[j].SuggestedMultiplier-1)
	})

	combined := 1.0
	for _, p := range sorted {
		w := sourceWeight(weights, p.Source)
		effective := 1 + (p.SuggestedMultiplier-1)*w*p.Confidence
		combined *= effective
	}
	return combined
}

func sourceWeight(weights map[models.ProposalSource]float64, source models.ProposalSource) float64 {
	if w, ok := weights[source]; ok {
		return w
	}
	return 1.0
}

func clampAndRound(bid, minBid, maxBid float64) float64 {
	if bid < minBid {
		bid = minBid
	}
	if bid > maxBid {
		bid = maxBid
	}
	return math.Round(bid*100) / 100
}

func reasonFromProposals(proposals []models.BidProposal) string {
	if len(proposals) == 0 {
		return "no proposals"
	}
	reason := string(proposals[0].Source) + ": " + proposals[0].Reason
	for _, p := range proposals[1:] {
		reason += "; " + string(p.Source) + ": " + p.Reason
	}
	return reason
}
