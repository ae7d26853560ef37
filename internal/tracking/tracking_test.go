package tracking

import (
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

func snapshot(spend, sales float64, clicks int64) KPISnapshot {
	return KPISnapshot{Spend: decimal.NewFromFloat(spend), Sales: decimal.NewFromFloat(sales), Clicks: clicks}
}

func TestRealizedProfitSubtractsMarginedCost(t *testing.T) {
	profit := RealizedProfit(snapshot(100, 150, 10), 0.1)
	want := decimal.NewFromFloat(150).Sub(decimal.NewFromFloat(100).Mul(decimal.NewFromFloat(1.1)))
	if !profit.Equal(want) {
		t.Fatalf("expected profit %v, got %v", want, profit)
	}
}

func TestAccuracyPerfectEstimateScoresOne(t *testing.T) {
	score := Accuracy(decimal.NewFromFloat(50), decimal.NewFromFloat(50))
	if score != 1 {
		t.Fatalf("expected a perfect estimate to score 1, got %v", score)
	}
}

func TestAccuracyClipsToZeroForWildMiss(t *testing.T) {
	score := Accuracy(decimal.NewFromFloat(-500), decimal.NewFromFloat(10))
	if score != 0 {
		t.Fatalf("expected the score to clip at 0 for a wild miss, got %v", score)
	}
}

func TestHorizonsDueReturnsOnlyElapsedUnmeasuredHorizons(t *testing.T) {
	adjustedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := adjustedAt.AddDate(0, 0, 10)
	record := models.EffectTrackingRecord{}

	due := HorizonsDue(record, adjustedAt, now)
	if len(due) != 1 || due[0] != models.Horizon7Day {
		t.Fatalf("expected only the 7-day horizon due at +10 days, got %v", due)
	}
}

func TestHorizonsDueSkipsAlreadyMeasuredHorizons(t *testing.T) {
	adjustedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := adjustedAt.AddDate(0, 0, 40)
	profit := decimal.NewFromFloat(5)
	record := models.EffectTrackingRecord{ActualProfit7d: &profit}

	due := HorizonsDue(record, adjustedAt, now)
	for _, h := range due {
		if h == models.Horizon7Day {
			t.Fatalf("expected the already-measured 7-day horizon to be excluded, got %v", due)
		}
	}
	if len(due) != 2 {
		t.Fatalf("expected the 14 and 30 day horizons due, got %v", due)
	}
}

func TestApplyHorizonResultWritesCorrectField(t *testing.T) {
	profit := decimal.NewFromFloat(42)
	record := ApplyHorizonResult(models.EffectTrackingRecord{}, models.Horizon14Day, profit)
	if record.ActualProfit14d == nil || !record.ActualProfit14d.Equal(profit) {
		t.Fatalf("expected ActualProfit14d to be set to 42, got %+v", record)
	}
	if record.ActualProfit7d != nil || record.ActualProfit30d != nil {
		t.Fatalf("expected only the targeted horizon field to be populated, got %+v", record)
	}
}

func TestTrackerRecordHorizonComputesProfitAndAccuracy(t *testing.T) {
	tracker := &Tracker{}
	record := models.EffectTrackingRecord{EstimatedProfit: decimal.NewFromFloat(45)}
	updated := tracker.RecordHorizon(record, models.Horizon7Day, snapshot(100, 150, 10), 0.1)

	if updated.ActualProfit7d == nil {
		t.Fatalf("expected ActualProfit7d to be populated")
	}
	want := decimal.NewFromFloat(150).Sub(decimal.NewFromFloat(110))
	if !updated.ActualProfit7d.Equal(want) {
		t.Fatalf("expected realized profit %v, got %v", want, updated.ActualProfit7d)
	}
}
