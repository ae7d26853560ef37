package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/coordinator"
	"github.com/patrickwarner/bidops/internal/decisiontree"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/patrickwarner/bidops/internal/proposals"
	"github.com/shopspring/decimal"
)

// OptimizationInput narrows runUnifiedOptimization to a subset of
// campaigns/groups and optimization types (spec §6).
type OptimizationInput struct {
	CampaignIDs         []string
	PerformanceGroupIDs []string
	OptimizationTypes   []string // empty means "all"
}

// TreeFallback is the decision-tree's CVR estimate for a keyword target
// whose own history was too thin for curve fitting (spec §4.2).
type TreeFallback struct {
	PredictedCVR  float64
	LowConfidence bool
}

// TargetAnalysis is one target's outcome within an AnalysisSummary.
type TargetAnalysis struct {
	TargetID     string
	Result       models.CoordinationResult
	CurveFit     *models.MarketCurveModel
	FitError     string // non-empty when curve fitting failed (e.g. insufficient data)
	TreeFallback *TreeFallback
}

// AnalysisSummary is runUnifiedOptimization's output (spec §6).
type AnalysisSummary struct {
	AccountID             string
	CampaignsAnalyzed     int
	TargetsAnalyzed       int
	Targets               []TargetAnalysis
	TotalProfitDelta      decimal.Decimal
	CVRFeatureImportance  map[string]float64 // from the CVR decision tree, when built
}

// RunUnifiedOptimization fits market curves and runs the coordinator for
// every target under the selected campaigns/groups, producing a
// CoordinationResult per target without applying any bid (spec §6:
// "runUnifiedOptimization"). Applying results is a separate step
// (ApplyGroupOptimalBids or a batch).
func (s *Service) RunUnifiedOptimization(ctx context.Context, accountID string, in OptimizationInput) (AnalysisSummary, error) {
	campaigns, err := s.resolveCampaigns(accountID, in.CampaignIDs, in.PerformanceGroupIDs)
	if err != nil {
		return AnalysisSummary{}, err
	}

	summary := AnalysisSummary{AccountID: accountID, CampaignsAnalyzed: len(campaigns)}
	params := s.Store.AlgorithmParams()

	for _, campaign := range campaigns {
		targets := s.Store.ListTargetsByCampaign(campaign.ID)
		for _, target := range targets {
			summary.TargetsAnalyzed++
			analysis := TargetAnalysis{TargetID: target.ID}

			model, fitErr := s.CurveFit.Fit(ctx, accountID, target, params, 0)
			if fitErr != nil {
				analysis.FitError = fitErr.Error()
				if s.Logger != nil && observability.ShouldSample(observability.GetSamplingRate()) {
					s.Logger.Debug("curve fit failed", zap.String("target_id", target.ID), zap.Error(fitErr))
				}
				if target.TargetType == models.TargetTypeKeyword {
					if tree := s.Tree[decisiontree.TargetCVR]; tree != nil {
						cvr, lowConfidence := tree.PredictKeyword(keywordFeatures(target))
						analysis.TreeFallback = &TreeFallback{PredictedCVR: cvr, LowConfidence: lowConfidence}
					}
				}
			} else {
				s.Store.SetCurveModel(model)
				analysis.CurveFit = &model
			}

			if s.RateLimit != nil {
				if err := s.RateLimit.Wait(ctx, accountID, "proposals"); err != nil {
					return AnalysisSummary{}, err
				}
			}

			propCtx := proposals.Context{
				Campaign:    campaign,
				CurrentHour: currentHourOfWeek(s.now()),
				Now:         s.now(),
			}
			if analysis.FitError == "" {
				propCtx.CurveModel = analysis.CurveFit
			}
			props := proposals.All(target, propCtx)
			for _, p := range props {
				if s.Metrics != nil {
					s.Metrics.IncrementProposals(string(p.Source))
				}
			}

			result := s.Coord.ApplyCoordinatedBids(ctx, coordinator.Input{
				AccountID:             accountID,
				TargetID:              target.ID,
				CurrentBaseBid:        target.Bid,
				CurrentPlacementPct:   campaign.PlacementPct[models.PlacementTopOfSearch],
				CurrentDaypartingMult: campaign.Dayparting.Multiplier(propCtx.CurrentHour),
				Proposals:             props,
			})
			analysis.Result = result
			summary.TotalProfitDelta = summary.TotalProfitDelta.Add(result.FinalBid.Sub(result.OriginalBid))
			summary.Targets = append(summary.Targets, analysis)
		}
	}

	if tree := s.Tree[decisiontree.TargetCVR]; tree != nil {
		summary.CVRFeatureImportance = tree.FeatureImportance()
	}

	return summary, nil
}

// GroupBidsResult is getPerformanceGroupOptimalBids's output (spec §6).
type GroupBidsResult struct {
	Summary   AnalysisSummary
	Campaigns []models.Campaign
}

// GetPerformanceGroupOptimalBids runs unified optimization scoped to one
// performance group (spec §6).
func (s *Service) GetPerformanceGroupOptimalBids(ctx context.Context, groupID, accountID string) (GroupBidsResult, error) {
	campaigns := s.Store.ListCampaignsByPerformanceGroup(groupID)
	if len(campaigns) == 0 {
		return GroupBidsResult{}, apierr.NotFound("performance group " + groupID + " has no campaigns")
	}
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	summary, err := s.RunUnifiedOptimization(ctx, accountID, OptimizationInput{CampaignIDs: ids})
	if err != nil {
		return GroupBidsResult{}, err
	}
	return GroupBidsResult{Summary: summary, Campaigns: campaigns}, nil
}

// ApplyGroupBidsResult is applyGroupOptimalBids's output (spec §6).
type ApplyGroupBidsResult struct {
	AppliedCount              int
	SkippedCount              int
	ErrorCount                int
	TotalExpectedProfitIncrease decimal.Decimal
}

// ApplyGroupOptimalBids re-runs the group's optimal-bid analysis and
// writes every target's new bid whose relative change is at least
// minBidDifferencePct, recording a BidAdjustmentRecord per write (spec
// §6: "applyGroupOptimalBids(groupId, accountId, minBidDifferencePct=5)").
func (s *Service) ApplyGroupOptimalBids(ctx context.Context, groupID, accountID string, minBidDifferencePct float64) (ApplyGroupBidsResult, error) {
	if minBidDifferencePct <= 0 {
		minBidDifferencePct = 5
	}
	group, err := s.Store.GetPerformanceGroup(groupID)
	if err != nil {
		return ApplyGroupBidsResult{}, err
	}

	bids, err := s.GetPerformanceGroupOptimalBids(ctx, group.ID, accountID)
	if err != nil {
		return ApplyGroupBidsResult{}, err
	}

	var out ApplyGroupBidsResult
	for _, analysis := range bids.Summary.Targets {
		if analysis.FitError != "" {
			out.ErrorCount++
			continue
		}
		target, terr := s.Store.GetTarget(analysis.TargetID)
		if terr != nil {
			out.ErrorCount++
			continue
		}

		prevFloat, _ := target.Bid.Float64()
		newFloat, _ := analysis.Result.FinalBid.Float64()
		relDiff := 0.0
		if prevFloat != 0 {
			relDiff = (newFloat - prevFloat) / prevFloat * 100
			if relDiff < 0 {
				relDiff = -relDiff
			}
		}
		if relDiff < minBidDifferencePct {
			out.SkippedCount++
			continue
		}

		record := models.BidAdjustmentRecord{
			ID:                  newID("adj"),
			TargetID:            target.ID,
			AccountID:           accountID,
			PreviousBid:         target.Bid,
			NewBid:              analysis.Result.FinalBid,
			Source:              models.AdjustmentAutoOptimal,
			Reason:              analysis.Result.Reason,
			ExpectedProfitDelta: analysis.Result.FinalBid.Sub(analysis.Result.OriginalBid),
			AppliedBy:           "system",
			AppliedAt:           s.now(),
		}
		target.Bid = analysis.Result.FinalBid
		target.UpdatedAt = s.now()
		s.Store.SetTarget(target)
		s.recordAdjustment(record)

		out.AppliedCount++
		out.TotalExpectedProfitIncrease = out.TotalExpectedProfitIncrease.Add(record.ExpectedProfitDelta)
	}

	return out, nil
}

func (s *Service) resolveCampaigns(accountID string, campaignIDs, groupIDs []string) ([]models.Campaign, error) {
	if len(campaignIDs) == 0 && len(groupIDs) == 0 {
		return s.Store.ListCampaignsByAccount(accountID), nil
	}
	var out []models.Campaign
	seen := make(map[string]bool)
	for _, id := range campaignIDs {
		c, err := s.Store.GetCampaign(id)
		if err != nil {
			return nil, err
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	for _, gid := range groupIDs {
		for _, c := range s.Store.ListCampaignsByPerformanceGroup(gid) {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *Service) recordAdjustment(r models.BidAdjustmentRecord) {
	s.mu.Lock()
	s.history = append(s.history, r)
	s.mu.Unlock()
	if s.Postgres != nil {
		if err := s.Postgres.InsertBidAdjustmentRecord(context.Background(), r); err != nil && s.Logger != nil {
			s.Logger.Error("persist bid adjustment record", zap.Error(err))
		}
	}
}

// currentHourOfWeek returns 0-167 (Sunday 00:00 = 0), matching
// DaypartingPolicy.Multiplier's convention.
func currentHourOfWeek(t time.Time) int {
	return int(t.Weekday())*24 + t.Hour()
}

// keywordFeatures derives the decision tree's fixed categorical feature
// set from a keyword target (spec §4.2). KeywordType has no field on
// Target; "generic" is the safe default absent brand/competitor term
// lists.
func keywordFeatures(target models.Target) decisiontree.Features {
	bid, _ := target.Bid.Float64()
	return decisiontree.Features{
		MatchType:   string(target.MatchType),
		WordCount:   len(strings.Fields(target.Text)),
		KeywordType: "generic",
		AvgBid:      bid,
	}
}
