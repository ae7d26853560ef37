package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/tracking"
)

// HistoryFilters narrows getBidAdjustmentHistory (spec §6).
type HistoryFilters struct {
	AccountID string
	TargetID  string
}

// HistoryPage is getBidAdjustmentHistory's paginated output.
type HistoryPage struct {
	Records  []models.BidAdjustmentRecord
	Page     int
	PageSize int
	Total    int
}

// GetBidAdjustmentHistory returns a page of recorded bid adjustments
// matching filters, newest first (spec §6: "getBidAdjustmentHistory({filters, page})").
func (s *Service) GetBidAdjustmentHistory(ctx context.Context, filters HistoryFilters, page, pageSize int) HistoryPage {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	s.mu.Lock()
	var matched []models.BidAdjustmentRecord
	for i := len(s.history) - 1; i >= 0; i-- {
		r := s.history[i]
		if filters.AccountID != "" && r.AccountID != filters.AccountID {
			continue
		}
		if filters.TargetID != "" && r.TargetID != filters.TargetID {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.Unlock()

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return HistoryPage{Records: matched[start:end], Page: page, PageSize: pageSize, Total: total}
}

// TrackingTaskResult summarizes one runEffectTrackingTask pass.
type TrackingTaskResult struct {
	RecordsDue        int
	RecordsMeasured   int
	SuggestionsRaised int
}

// RunEffectTrackingTask re-measures every bid adjustment whose given
// horizon has elapsed, scores estimate accuracy, and evaluates rollback
// rules against the freshly measured outcome (spec §6:
// "runEffectTrackingTask(period)", spec §4.8).
func (s *Service) RunEffectTrackingTask(ctx context.Context, horizon models.TrackingHorizon) (TrackingTaskResult, error) {
	var result TrackingTaskResult
	params := s.Store.AlgorithmParams()

	for _, adjustment := range s.snapshotHistory() {
		record := s.getOrCreateTrackingRecord(adjustment)

		due := tracking.HorizonsDue(record, adjustment.AppliedAt, s.now())
		isDue := false
		for _, h := range due {
			if h == horizon {
				isDue = true
				break
			}
		}
		if !isDue {
			continue
		}
		result.RecordsDue++

		from := adjustment.AppliedAt
		to := adjustment.AppliedAt.AddDate(0, 0, int(horizon))
		snapshots, err := s.Plane.Report.QuerySnapshots(ctx, adjustment.AccountID, adjustment.TargetID, from, to)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("query snapshots for effect tracking", zap.Error(err))
			}
			continue
		}

		measurement := aggregateKPI(snapshots)
		updated := s.Tracker.RecordHorizon(record, horizon, measurement, params.ProfitMarginPct)
		if horizon == models.Horizon7Day {
			updated.ActualSpend7d = measurement.Spend
			updated.ActualClicks7d = measurement.Clicks
			updated.ActualConversions7d = measurement.Orders
		}
		s.putTrackingRecord(updated)
		result.RecordsMeasured++

		raised := s.evaluateRollbackRulesFor(updated, adjustment, len(snapshots))
		result.SuggestionsRaised += raised
	}

	return result, nil
}

func aggregateKPI(snapshots []models.PerformanceSnapshot) tracking.KPISnapshot {
	var out tracking.KPISnapshot
	for _, snap := range snapshots {
		out.Spend = out.Spend.Add(snap.Spend)
		out.Sales = out.Sales.Add(snap.Sales)
		out.Clicks += snap.Clicks
		out.Orders += snap.Orders
	}
	return out
}

func (s *Service) snapshotHistory() []models.BidAdjustmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BidAdjustmentRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) getOrCreateTrackingRecord(adjustment models.BidAdjustmentRecord) models.EffectTrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.trackingRecs[adjustment.ID]; ok {
		return rec
	}
	rec := models.EffectTrackingRecord{
		AdjustmentRecordID: adjustment.ID,
		TargetID:           adjustment.TargetID,
		EstimatedProfit:    adjustment.ExpectedProfitDelta,
	}
	s.trackingRecs[adjustment.ID] = rec
	return rec
}

func (s *Service) putTrackingRecord(rec models.EffectTrackingRecord) {
	s.mu.Lock()
	s.trackingRecs[rec.AdjustmentRecordID] = rec
	s.mu.Unlock()
}

// TrackingStatsSummary reports aggregate estimate accuracy across every
// horizon currently measured (spec §6: "getTrackingStatsSummary").
type TrackingStatsSummary struct {
	TotalTracked       int
	AverageAccuracy7d  float64
	AverageAccuracy14d float64
	AverageAccuracy30d float64
	PendingSuggestions int
}

// GetTrackingStatsSummary aggregates accuracy scores across all tracked
// effects, recomputed from the stored estimated/actual profit pairs rather
// than cached at measurement time.
func (s *Service) GetTrackingStatsSummary(ctx context.Context) TrackingStatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary TrackingStatsSummary
	var sum7, sum14, sum30 float64
	var n7, n14, n30 int

	for _, rec := range s.trackingRecs {
		summary.TotalTracked++
		if p := rec.ProfitForHorizon(models.Horizon7Day); p != nil {
			sum7 += tracking.Accuracy(*p, rec.EstimatedProfit)
			n7++
		}
		if p := rec.ProfitForHorizon(models.Horizon14Day); p != nil {
			sum14 += tracking.Accuracy(*p, rec.EstimatedProfit)
			n14++
		}
		if p := rec.ProfitForHorizon(models.Horizon30Day); p != nil {
			sum30 += tracking.Accuracy(*p, rec.EstimatedProfit)
			n30++
		}
	}
	if n7 > 0 {
		summary.AverageAccuracy7d = sum7 / float64(n7)
	}
	if n14 > 0 {
		summary.AverageAccuracy14d = sum14 / float64(n14)
	}
	if n30 > 0 {
		summary.AverageAccuracy30d = sum30 / float64(n30)
	}
	for _, sug := range s.suggestions {
		if sug.Status == models.SuggestionPending {
			summary.PendingSuggestions++
		}
	}
	return summary
}

