package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/dataplane"
)

// CampaignTrackStatus reports one campaign's streaming freshness against
// the dual-track data plane (spec §4.3).
type CampaignTrackStatus struct {
	CampaignID     string
	StreamFresh    bool
	LastStreamTime time.Time
}

// GetDualTrackStatus reports, per campaign under an account, whether the
// fast streaming track has recent data (spec §6: "getDualTrackStatus(accountId)").
// A campaign with no streaming data in the last hour is reported stale;
// callers should expect GetRealtimeSpendForGuard to fall back to the slow
// report track for it.
func (s *Service) GetDualTrackStatus(ctx context.Context, accountID string) []CampaignTrackStatus {
	campaigns := s.Store.ListCampaignsByAccount(accountID)
	now := s.now()

	out := make([]CampaignTrackStatus, 0, len(campaigns))
	for _, campaign := range campaigns {
		latest, ok, err := s.Plane.Stream.LatestUpdate(ctx, accountID, campaign.ID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("dual track status query failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
			}
			continue
		}
		status := CampaignTrackStatus{CampaignID: campaign.ID}
		if ok {
			status.LastStreamTime = latest
			status.StreamFresh = now.Sub(latest) <= time.Hour
		}
		out = append(out, status)
	}
	return out
}

// ConsistencyReport is runConsistencyCheck's output: one CheckResult per
// target in the account.
type ConsistencyReport struct {
	AccountID string
	Results   []dataplane.CheckResult
}

// RunConsistencyCheck compares the slow and fast tracks for every target
// under an account over [startDate, endDate], raising alerts on the
// consecutive-divergence threshold via the shared ConsistencyChecker (spec
// §6: "runConsistencyCheck(accountId, startDate, endDate)", spec §4.3).
func (s *Service) RunConsistencyCheck(ctx context.Context, accountID string, startDate, endDate time.Time) (ConsistencyReport, error) {
	targets := s.Store.ListTargetsByAccount(accountID)
	report := ConsistencyReport{AccountID: accountID}

	for _, target := range targets {
		result, err := s.Checker.Check(ctx, accountID, target.ID, startDate, endDate)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("consistency check failed", zap.String("target_id", target.ID), zap.Error(err))
			}
			continue
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}
