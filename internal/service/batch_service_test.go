package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/batch"
	"github.com/patrickwarner/bidops/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := models.NewInMemoryStore()
	if err := store.ReloadAll(
		[]models.Target{{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(1.0)}},
		[]models.Campaign{{ID: "camp-1", AccountID: "acct-1", Enabled: true}},
		nil,
	); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	svc := New(store, zap.NewNop(), nil)
	svc.BatchMach = &batch.Machine{
		Dispatcher:     &batch.Dispatcher{Store: store, Negatives: batch.NewNegativeKeywordStore()},
		RollbackWindow: 24 * time.Hour,
	}
	return svc
}

func TestServiceBidAdjustmentBatchLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateBidAdjustmentBatch(ctx, "acct-1", "alice", []BidAdjustmentItem{
		{TargetID: "tgt-1", PreviousBid: decimal.NewFromFloat(1.0), NewBid: decimal.NewFromFloat(1.5)},
	}, true)
	if err != nil {
		t.Fatalf("unexpected error creating batch: %v", err)
	}
	if created.Status != models.BatchPending {
		t.Fatalf("expected a pending batch requiring approval, got %s", created.Status)
	}

	approved, err := svc.Approve(ctx, created.ID, "bob")
	if err != nil {
		t.Fatalf("unexpected error approving: %v", err)
	}
	if approved.Status != models.BatchApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}

	executed, err := svc.Execute(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error executing: %v", err)
	}
	if executed.Status != models.BatchCompleted {
		t.Fatalf("expected completed status, got %s", executed.Status)
	}

	store := svc.Store
	updated, _ := store.GetTarget("tgt-1")
	if !updated.Bid.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("expected the target bid updated to 1.5, got %v", updated.Bid)
	}

	rolledBack, err := svc.Rollback(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error rolling back: %v", err)
	}
	if rolledBack.Status != models.BatchRolledBack {
		t.Fatalf("expected rolled-back status, got %s", rolledBack.Status)
	}
	restored, _ := store.GetTarget("tgt-1")
	if !restored.Bid.Equal(decimal.NewFromFloat(1.0)) {
		t.Fatalf("expected the target bid restored to 1.0, got %v", restored.Bid)
	}
}

func TestServiceCreateBatchWithoutApprovalAutoApproves(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateBidAdjustmentBatch(context.Background(), "acct-1", "alice", []BidAdjustmentItem{
		{TargetID: "tgt-1", PreviousBid: decimal.NewFromFloat(1.0), NewBid: decimal.NewFromFloat(2.0)},
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != models.BatchApproved || created.ApprovedAt == nil {
		t.Fatalf("expected an auto-approved batch, got %+v", created)
	}
}

func TestServiceListFiltersByAccountAndStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateBidAdjustmentBatch(ctx, "acct-1", "alice", []BidAdjustmentItem{
		{TargetID: "tgt-1", PreviousBid: decimal.NewFromFloat(1.0), NewBid: decimal.NewFromFloat(1.2)},
	}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateBidAdjustmentBatch(ctx, "acct-2", "alice", []BidAdjustmentItem{
		{TargetID: "tgt-1", PreviousBid: decimal.NewFromFloat(1.0), NewBid: decimal.NewFromFloat(1.2)},
	}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	only1 := svc.List(ctx, BatchFilters{AccountID: "acct-1"})
	if len(only1) != 1 {
		t.Fatalf("expected 1 batch for acct-1, got %d", len(only1))
	}

	pending := svc.List(ctx, BatchFilters{Status: models.BatchPending})
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending batches across accounts, got %d", len(pending))
	}
}

func TestServiceGetDetailedRecordNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetDetailedRecord(context.Background(), "missing"); err == nil {
		t.Fatalf("expected a not-found error for an unknown batch id")
	}
}
