package dataplane

import (
	"context"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

type fakeReportStore struct {
	rows []models.PerformanceSnapshot
	err  error
}

func (f fakeReportStore) QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error) {
	return f.rows, f.err
}

type fakeStreamStore struct {
	rows   []models.PerformanceSnapshot
	err    error
	latest time.Time
	ok     bool
	luErr  error
}

func (f fakeStreamStore) QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error) {
	return f.rows, f.err
}

func (f fakeStreamStore) LatestUpdate(ctx context.Context, accountID, campaignID string) (time.Time, bool, error) {
	return f.latest, f.ok, f.luErr
}

func staticParams() models.AlgorithmParams {
	p := models.DefaultAlgorithmParams()
	p.ExcludeDays = map[string]int{"bid": 7}
	return p
}

func TestGetDataForAlgorithmExcludesFrozenDays(t *testing.T) {
	now := time.Now().UTC()
	fresh := models.PerformanceSnapshot{Day: now, Spend: decimal.Zero}
	safe := models.PerformanceSnapshot{Day: now.AddDate(0, 0, -10), Spend: decimal.Zero}

	plane := &DataPlane{
		Report: fakeReportStore{rows: []models.PerformanceSnapshot{fresh, safe}},
		Params: staticParams,
	}

	rows, err := plane.GetDataForAlgorithm(context.Background(), "acct-1", "tgt-1", "bid", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows.Snapshots) != 1 {
		t.Fatalf("expected exactly 1 snapshot surviving the freeze horizon, got %d", len(rows.Snapshots))
	}
	if rows.ExcludedDays != 7 {
		t.Fatalf("expected ExcludedDays=7, got %d", rows.ExcludedDays)
	}
}

func TestGetDataForAlgorithmWrapsReportError(t *testing.T) {
	plane := &DataPlane{
		Report: fakeReportStore{err: context.DeadlineExceeded},
		Params: staticParams,
	}
	_, err := plane.GetDataForAlgorithm(context.Background(), "acct-1", "tgt-1", "bid", 30)
	if !apierr.Is(err, apierr.KindExternalFailure) {
		t.Fatalf("expected KindExternalFailure, got %v", err)
	}
}

func TestGetRealtimeSpendForGuardPrefersStream(t *testing.T) {
	now := time.Now().UTC()
	plane := &DataPlane{
		Stream: fakeStreamStore{rows: []models.PerformanceSnapshot{
			{Spend: decimal.NewFromFloat(10), Clicks: 5, Impressions: 100, EventTime: now},
		}},
		Report: fakeReportStore{rows: []models.PerformanceSnapshot{
			{Spend: decimal.NewFromFloat(999), Clicks: 999, Impressions: 999},
		}},
		Params: staticParams,
	}

	result, err := plane.GetRealtimeSpendForGuard(context.Background(), "acct-1", "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != models.SourceStream || result.Stale {
		t.Fatalf("expected a fresh stream result, got %+v", result)
	}
	if result.Clicks != 5 {
		t.Fatalf("expected stream clicks to win over report clicks, got %d", result.Clicks)
	}
}

func TestGetRealtimeSpendForGuardFallsBackToReportWhenStreamEmpty(t *testing.T) {
	plane := &DataPlane{
		Stream: fakeStreamStore{rows: nil},
		Report: fakeReportStore{rows: []models.PerformanceSnapshot{
			{Spend: decimal.NewFromFloat(42), Clicks: 3, Impressions: 50},
		}},
		Params: staticParams,
	}

	result, err := plane.GetRealtimeSpendForGuard(context.Background(), "acct-1", "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != models.SourceReport || !result.Stale {
		t.Fatalf("expected a stale report fallback, got %+v", result)
	}
	if result.Clicks != 3 {
		t.Fatalf("expected report clicks to be used, got %d", result.Clicks)
	}
}
