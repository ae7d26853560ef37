package batch

import (
	"context"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

func TestCreateValidatesBidAdjustmentItems(t *testing.T) {
	params := models.DefaultAlgorithmParams()
	op := models.BatchOperation{
		OperationType: models.OperationBidAdjustment,
		Items: []models.BatchOperationItem{
			{EntityID: "tgt-1", Payload: map[string]any{"new_bid": decimal.NewFromFloat(1.5)}},
		},
	}
	created, err := Create(op, params, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != models.BatchPending {
		t.Fatalf("expected BatchPending, got %s", created.Status)
	}
	if created.Items[0].Status != models.ItemPending {
		t.Fatalf("expected items to be marked ItemPending, got %s", created.Items[0].Status)
	}
}

func TestCreateRejectsInvalidBidPayload(t *testing.T) {
	params := models.DefaultAlgorithmParams()
	op := models.BatchOperation{
		OperationType: models.OperationBidAdjustment,
		Items: []models.BatchOperationItem{
			{EntityID: "tgt-1", Payload: map[string]any{"new_bid": "not-a-decimal"}},
		},
	}
	if _, err := Create(op, params, 1.0); err == nil {
		t.Fatalf("expected a validation error for a non-decimal new_bid")
	}
}

func TestApproveRequiresPendingStatus(t *testing.T) {
	op := models.BatchOperation{Status: models.BatchApproved}
	if _, err := Approve(op, "alice"); err == nil {
		t.Fatalf("expected an error approving a non-pending batch")
	}

	op = models.BatchOperation{Status: models.BatchPending}
	approved, err := Approve(op, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != models.BatchApproved || approved.Executor != "alice" || approved.ApprovedAt == nil {
		t.Fatalf("expected an approved batch stamped with its approver, got %+v", approved)
	}
}

func TestCancelAllowedFromPendingOrApprovedOnly(t *testing.T) {
	if _, err := Cancel(models.BatchOperation{Status: models.BatchExecuting}); err == nil {
		t.Fatalf("expected an error cancelling an executing batch")
	}
	cancelled, err := Cancel(models.BatchOperation{Status: models.BatchApproved})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != models.BatchCancelled {
		t.Fatalf("expected BatchCancelled, got %s", cancelled.Status)
	}
}

func TestMachineExecuteRequiresApprovedStatus(t *testing.T) {
	store := newTestStore(t)
	m := &Machine{Dispatcher: &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}}
	op := models.BatchOperation{Status: models.BatchPending}
	result := m.Execute(context.Background(), op)
	if result.Status != models.BatchPending {
		t.Fatalf("expected execute to no-op on a non-approved batch, got %s", result.Status)
	}
}

func TestMachineExecuteContinuesPastItemFailure(t *testing.T) {
	store := newTestStore(t)
	m := &Machine{Dispatcher: &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}}
	op := models.BatchOperation{
		OperationType: models.OperationBidAdjustment,
		Status:        models.BatchApproved,
		Items: []models.BatchOperationItem{
			{ID: "item-ok", EntityID: "tgt-1", Payload: map[string]any{"new_bid": decimal.NewFromFloat(3.0)}},
			{ID: "item-bad", EntityID: "missing-target", Payload: map[string]any{"new_bid": decimal.NewFromFloat(3.0)}},
		},
	}
	result := m.Execute(context.Background(), op)
	if result.Status != models.BatchCompleted {
		t.Fatalf("expected BatchCompleted when at least one item succeeds, got %s", result.Status)
	}
	if result.SuccessItems != 1 || result.FailedItems != 1 {
		t.Fatalf("expected 1 success and 1 failure, got success=%d failed=%d", result.SuccessItems, result.FailedItems)
	}
}

func TestMachineExecuteAllItemsFailedYieldsBatchFailed(t *testing.T) {
	store := newTestStore(t)
	m := &Machine{Dispatcher: &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}}
	op := models.BatchOperation{
		OperationType: models.OperationBidAdjustment,
		Status:        models.BatchApproved,
		Items: []models.BatchOperationItem{
			{ID: "item-bad", EntityID: "missing-target", Payload: map[string]any{"new_bid": decimal.NewFromFloat(3.0)}},
		},
	}
	result := m.Execute(context.Background(), op)
	if result.Status != models.BatchFailed {
		t.Fatalf("expected BatchFailed when every item fails, got %s", result.Status)
	}
}

func TestMachineRollbackRequiresRollbackEligibleState(t *testing.T) {
	store := newTestStore(t)
	m := &Machine{Dispatcher: &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}}
	op := models.BatchOperation{Status: models.BatchExecuting}
	if _, err := m.Rollback(context.Background(), op); err == nil {
		t.Fatalf("expected an error rolling back a non-eligible batch")
	}
}

func TestMachineRollbackRejectsExpiredWindow(t *testing.T) {
	store := newTestStore(t)
	past := time.Now().UTC().Add(-48 * time.Hour)
	m := &Machine{
		Dispatcher:     &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()},
		RollbackWindow: 24 * time.Hour,
	}
	op := models.BatchOperation{
		Status:      models.BatchCompleted,
		CompletedAt: &past,
		Items: []models.BatchOperationItem{
			{ID: "item-1", Status: models.ItemSuccess, RollbackSnapshot: map[string]any{"previous_bid": decimal.NewFromFloat(1.0)}},
		},
	}
	if _, err := m.Rollback(context.Background(), op); err == nil {
		t.Fatalf("expected an error for a rollback past the window")
	}
}

func TestMachineRollbackReversesSuccessfulItems(t *testing.T) {
	store := newTestStore(t)
	disp := &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}
	m := &Machine{Dispatcher: disp, RollbackWindow: 24 * time.Hour}

	op := models.BatchOperation{
		OperationType: models.OperationBidAdjustment,
		Status:        models.BatchApproved,
		Items: []models.BatchOperationItem{
			{ID: "item-1", EntityID: "tgt-1", Payload: map[string]any{"new_bid": decimal.NewFromFloat(4.0)}},
		},
	}
	executed := m.Execute(context.Background(), op)
	if executed.Status != models.BatchCompleted {
		t.Fatalf("expected the setup batch to complete, got %s", executed.Status)
	}

	rolled, err := m.Rollback(context.Background(), executed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rolled.Status != models.BatchRolledBack {
		t.Fatalf("expected BatchRolledBack, got %s", rolled.Status)
	}
	if rolled.Items[0].Status != models.ItemRolledBack {
		t.Fatalf("expected the item to be marked rolled back, got %s", rolled.Items[0].Status)
	}
	restored, _ := store.GetTarget("tgt-1")
	if !restored.Bid.Equal(decimal.NewFromFloat(1.0)) {
		t.Fatalf("expected the target bid restored to 1.0, got %v", restored.Bid)
	}
}
