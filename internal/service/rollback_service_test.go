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

func TestExecuteSuggestionMarksOriginatingAdjustmentRolledBack(t *testing.T) {
	store := models.NewInMemoryStore()
	if err := store.ReloadAll(
		[]models.Target{{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(2.0)}},
		[]models.Campaign{{ID: "camp-1", AccountID: "acct-1", Enabled: true}},
		nil,
	); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	store.SetAlgorithmParams(models.DefaultAlgorithmParams())

	svc := New(store, zap.NewNop(), nil)
	svc.BatchMach = &batch.Machine{
		Dispatcher:     &batch.Dispatcher{Store: store, Negatives: batch.NewNegativeKeywordStore()},
		RollbackWindow: 24 * time.Hour,
	}

	adjustment := models.BidAdjustmentRecord{
		ID:          "adj-1",
		TargetID:    "tgt-1",
		AccountID:   "acct-1",
		PreviousBid: decimal.NewFromFloat(1.0),
		NewBid:      decimal.NewFromFloat(2.0),
		Source:      models.AdjustmentAutoOptimal,
		AppliedAt:   time.Now().UTC(),
	}
	svc.recordAdjustment(adjustment)

	suggestion := models.RollbackSuggestion{
		ID:                 "sug-1",
		RuleID:              "rule-1",
		AdjustmentRecordID: adjustment.ID,
		TargetID:           adjustment.TargetID,
		AccountID:          adjustment.AccountID,
		Status:             models.SuggestionApproved,
		CreatedAt:          time.Now().UTC(),
	}
	svc.mu.Lock()
	svc.suggestions[suggestion.ID] = suggestion
	svc.mu.Unlock()

	if _, err := svc.ExecuteSuggestion(context.Background(), suggestion.ID); err != nil {
		t.Fatalf("unexpected error executing suggestion: %v", err)
	}

	updated, err := svc.findAdjustment(adjustment.ID)
	if err != nil {
		t.Fatalf("unexpected error looking up adjustment: %v", err)
	}
	if !updated.IsRolledBack {
		t.Fatalf("expected the originating adjustment record to be marked rolled back")
	}

	svc.mu.Lock()
	executed := svc.suggestions[suggestion.ID]
	svc.mu.Unlock()
	if executed.Status != models.SuggestionExecuted {
		t.Fatalf("expected the suggestion to be marked executed, got %s", executed.Status)
	}
}

func TestExecuteSuggestionUnknownIDReturnsNotFound(t *testing.T) {
	store := models.NewInMemoryStore()
	svc := New(store, zap.NewNop(), nil)
	if _, err := svc.ExecuteSuggestion(context.Background(), "missing"); err == nil {
		t.Fatalf("expected a not-found error for an unknown suggestion id")
	}
}
