// Package tracking implements the Effect Tracker & Auto-Rollback (C8): it
// re-measures realized profit at the 7/14/30-day horizons for every applied
// bid adjustment, scores estimate accuracy, and evaluates rollback rules to
// produce RollbackSuggestions. Grounded on spec §4.8; the periodic
// re-measure/cleanup task shape is grounded on the teacher's
// StartCacheCleanup ticker loop (internal/logic/cache.go,
// patrickwarner-openadserve).
package tracking

import (
	"math"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const epsilon = 1e-6

// KPISnapshot holds the spend/clicks/sales observed over a window, used
// both as the pre-adjustment baseline and as horizon re-measurements.
type KPISnapshot struct {
	Spend   decimal.Decimal
	Clicks  int64
	Sales   decimal.Decimal
	Orders  int64
}

// RealizedProfit computes sales - spend*(1+profitMarginPct) per spec §4.8.
func RealizedProfit(s KPISnapshot, profitMarginPct float64) decimal.Decimal {
	cost := s.Spend.Mul(decimal.NewFromFloat(1 + profitMarginPct))
	return s.Sales.Sub(cost)
}

// Accuracy scores an estimate against a realized outcome as
// 1 - |actual-estimated| / max(|estimated|, eps), clipped to [0,1]
// (spec §4.8).
func Accuracy(actual, estimated decimal.Decimal) float64 {
	a, _ := actual.Float64()
	e, _ := estimated.Float64()
	denom := math.Max(math.Abs(e), epsilon)
	score := 1 - math.Abs(a-e)/denom
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// HorizonsDue returns the horizons whose re-measure window has elapsed and
// whose field is not yet populated on record, given adjustedAt and now.
func HorizonsDue(record models.EffectTrackingRecord, adjustedAt, now time.Time) []models.TrackingHorizon {
	var due []models.TrackingHorizon
	for _, h := range []models.TrackingHorizon{models.Horizon7Day, models.Horizon14Day, models.Horizon30Day} {
		if record.ProfitForHorizon(h) != nil {
			continue
		}
		if !now.Before(adjustedAt.Add(time.Duration(h) * 24 * time.Hour)) {
			due = append(due, h)
		}
	}
	return due
}

// ApplyHorizonResult writes a re-measured profit into the record's field
// for the given horizon, returning the updated record.
func ApplyHorizonResult(record models.EffectTrackingRecord, h models.TrackingHorizon, profit decimal.Decimal) models.EffectTrackingRecord {
	switch h {
	case models.Horizon7Day:
		record.ActualProfit7d = &profit
	case models.Horizon14Day:
		record.ActualProfit14d = &profit
	case models.Horizon30Day:
		record.ActualProfit30d = &profit
	}
	record.TrackedAt = time.Now().UTC()
	return record
}

// Tracker re-measures effects and records accuracy metrics.
type Tracker struct {
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger
}

// RecordHorizon computes realized profit from a re-measurement snapshot,
// writes it into the record, and reports accuracy against the originally
// estimated profit.
func (t *Tracker) RecordHorizon(record models.EffectTrackingRecord, h models.TrackingHorizon, measurement KPISnapshot, profitMarginPct float64) models.EffectTrackingRecord {
	profit := RealizedProfit(measurement, profitMarginPct)
	updated := ApplyHorizonResult(record, h, profit)
	score := Accuracy(profit, record.EstimatedProfit)
	if t.Metrics != nil {
		t.Metrics.RecordTrackingAccuracy(score)
	}
	if t.Logger != nil {
		t.Logger.Info("effect tracked",
			zap.String("adjustment_record_id", record.AdjustmentRecordID),
			zap.Int("horizon_days", int(h)),
			zap.String("realized_profit", profit.String()),
			zap.Float64("accuracy", score))
	}
	return updated
}
