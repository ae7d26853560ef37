package batch

import (
	"context"
	"testing"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *models.InMemoryStore {
	t.Helper()
	store := models.NewInMemoryStore()
	target := models.Target{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(1.0)}
	campaign := models.Campaign{ID: "camp-1", AccountID: "acct-1", Enabled: true}
	if err := store.ReloadAll([]models.Target{target}, []models.Campaign{campaign}, nil); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestDispatcherBidAdjustmentApplyAndRollback(t *testing.T) {
	store := newTestStore(t)
	d := &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}

	item := models.BatchOperationItem{
		ID: "item-1", EntityID: "tgt-1", EntityType: "target",
		Payload: map[string]any{"new_bid": decimal.NewFromFloat(2.0)},
	}
	snapshot, err := d.Execute(context.Background(), models.OperationBidAdjustment, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, _ := store.GetTarget("tgt-1")
	if !updated.Bid.Equal(decimal.NewFromFloat(2.0)) {
		t.Fatalf("expected bid to be updated to 2.0, got %v", updated.Bid)
	}

	item.RollbackSnapshot = snapshot
	if err := d.Rollback(context.Background(), models.OperationBidAdjustment, item); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}
	restored, _ := store.GetTarget("tgt-1")
	if !restored.Bid.Equal(decimal.NewFromFloat(1.0)) {
		t.Fatalf("expected bid restored to 1.0, got %v", restored.Bid)
	}
}

func TestDispatcherBidAdjustmentMissingNewBidFails(t *testing.T) {
	store := newTestStore(t)
	d := &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}
	item := models.BatchOperationItem{EntityID: "tgt-1", Payload: map[string]any{}}
	_, err := d.Execute(context.Background(), models.OperationBidAdjustment, item)
	if err == nil {
		t.Fatalf("expected an error for a missing new_bid payload")
	}
}

func TestDispatcherNegativeKeywordAddAndRollback(t *testing.T) {
	store := newTestStore(t)
	negatives := NewNegativeKeywordStore()
	d := &Dispatcher{Store: store, Negatives: negatives}

	item := models.BatchOperationItem{
		EntityID: "camp-1",
		Payload:  map[string]any{"text": "competitor brand", "match_type": "exact"},
	}
	snapshot, err := d.Execute(context.Background(), models.OperationNegativeKeyword, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed := negatives.Add("camp-1", "exact", "competitor brand"); !existed {
		t.Fatalf("expected the negative keyword to already be present")
	}

	item.RollbackSnapshot = snapshot
	if err := d.Rollback(context.Background(), models.OperationNegativeKeyword, item); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}
	if existed := negatives.Add("camp-1", "exact", "competitor brand"); existed {
		t.Fatalf("expected the negative keyword to have been removed by rollback")
	}
}

func TestDispatcherCampaignStatusApplyAndRollback(t *testing.T) {
	store := newTestStore(t)
	d := &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}

	item := models.BatchOperationItem{EntityID: "camp-1", Payload: map[string]any{"enabled": false}}
	snapshot, err := d.Execute(context.Background(), models.OperationCampaignStatus, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, _ := store.GetCampaign("camp-1")
	if updated.Enabled {
		t.Fatalf("expected campaign to be disabled")
	}

	item.RollbackSnapshot = snapshot
	if err := d.Rollback(context.Background(), models.OperationCampaignStatus, item); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}
	restored, _ := store.GetCampaign("camp-1")
	if !restored.Enabled {
		t.Fatalf("expected campaign status restored to enabled")
	}
}

func TestDispatcherUnknownOperationTypeErrors(t *testing.T) {
	store := newTestStore(t)
	d := &Dispatcher{Store: store, Negatives: NewNegativeKeywordStore()}
	_, err := d.Execute(context.Background(), models.BatchOperationType("bogus"), models.BatchOperationItem{})
	if err == nil {
		t.Fatalf("expected an error for an unknown operation type")
	}
}
