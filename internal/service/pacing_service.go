package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/pacing"
)

// CheckAllCampaignsPacing runs one pacing cycle for every enabled campaign
// under an account, writing hourly-multiplier overrides to Redis and
// returning every campaign's adjustment (spec §6:
// "checkAllCampaignsPacing(accountId)", spec §4.6).
func (s *Service) CheckAllCampaignsPacing(ctx context.Context, accountID string) ([]pacing.IntradayAdjustment, error) {
	campaigns := s.Store.ListCampaignsByAccount(accountID)
	params := s.Store.AlgorithmParams()
	now := s.now()

	out := make([]pacing.IntradayAdjustment, 0, len(campaigns))
	for _, campaign := range campaigns {
		if !campaign.Enabled {
			continue
		}

		guard, err := s.Plane.GetRealtimeSpendForGuard(ctx, accountID, campaign.ID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("pacing realtime guard query failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
			}
			continue
		}

		adj := pacing.Evaluate(pacing.Snapshot{
			CampaignID:       campaign.ID,
			TodaySpend:       guard.Spend,
			TodayClicks:      guard.Clicks,
			TodayImpressions: guard.Impressions,
			DailyBudget:      campaign.DailyBudget,
			CurrentHour:      now.Hour(),
		}, params)

		if s.Redis != nil {
			if err := s.Redis.SetHourlyMultiplier(campaign.ID, now.Hour(), adj.HourlyMultiplier); err != nil && s.Logger != nil {
				s.Logger.Error("set hourly multiplier", zap.String("campaign_id", campaign.ID), zap.Error(err))
			}
		}
		if adj.AnomalyDetected && s.Metrics != nil {
			s.Metrics.IncrementPacingAnomaly(campaign.ID, adj.AnomalyType)
		}

		out = append(out, adj)
	}
	return out, nil
}

// GetCriticalCampaigns filters CheckAllCampaignsPacing's output to
// campaigns currently in the critical pacing state or flagged with an
// anomaly (spec §6: "getCriticalCampaigns(accountId)").
func (s *Service) GetCriticalCampaigns(ctx context.Context, accountID string) ([]pacing.IntradayAdjustment, error) {
	all, err := s.CheckAllCampaignsPacing(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var critical []pacing.IntradayAdjustment
	for _, adj := range all {
		if adj.Status == pacing.StatusCritical || adj.AnomalyDetected {
			critical = append(critical, adj)
		}
	}
	return critical, nil
}
