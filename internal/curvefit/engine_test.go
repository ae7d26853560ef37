package curvefit

import (
	"context"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/dataplane"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

type fakeDataSource struct {
	rows dataplane.AlgorithmRows
	err  error
}

func (f fakeDataSource) GetDataForAlgorithm(ctx context.Context, accountID, targetID, algoType string, lookbackDays int) (dataplane.AlgorithmRows, error) {
	return f.rows, f.err
}

func TestEngineFitInsufficientDataBelowMinBidPoints(t *testing.T) {
	engine := &Engine{Data: fakeDataSource{rows: dataplane.AlgorithmRows{
		Snapshots: []models.PerformanceSnapshot{
			snap(1.0, 100, 10, 1, 50, time.Now()),
		},
	}}}

	target := models.Target{ID: "tgt-1", Bid: decimal.NewFromFloat(1.0)}
	_, err := engine.Fit(context.Background(), "acct-1", target, models.DefaultAlgorithmParams(), 30)
	if !apierr.Is(err, apierr.KindInsufficientData) {
		t.Fatalf("expected KindInsufficientData, got %v", err)
	}
}

func TestEngineFitProducesModelWithEnoughBidPoints(t *testing.T) {
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	engine := &Engine{Data: fakeDataSource{rows: dataplane.AlgorithmRows{
		Snapshots: []models.PerformanceSnapshot{
			snap(0.5, 100, 5, 1, 20, day),
			snap(1.0, 300, 20, 3, 90, day),
			snap(2.0, 600, 50, 8, 240, day),
			snap(3.0, 800, 70, 12, 360, day),
		},
	}}}

	target := models.Target{ID: "tgt-1", Bid: decimal.NewFromFloat(1.0)}
	model, err := engine.Fit(context.Background(), "acct-1", target, models.DefaultAlgorithmParams(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.TargetID != "tgt-1" {
		t.Fatalf("expected TargetID to be set, got %q", model.TargetID)
	}
	if model.OptimalBid <= 0 {
		t.Fatalf("expected a positive optimal bid, got %v", model.OptimalBid)
	}
	if model.WindowDays != 30 {
		t.Fatalf("expected WindowDays=30, got %d", model.WindowDays)
	}
}

func TestEngineFitPropagatesDataSourceError(t *testing.T) {
	wantErr := apierr.ExternalFailure("clickhouse unavailable", context.DeadlineExceeded)
	engine := &Engine{Data: fakeDataSource{err: wantErr}}

	target := models.Target{ID: "tgt-1"}
	_, err := engine.Fit(context.Background(), "acct-1", target, models.DefaultAlgorithmParams(), 30)
	if err != wantErr {
		t.Fatalf("expected the data source error to propagate unchanged, got %v", err)
	}
}
