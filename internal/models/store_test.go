package models

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSetTargetIsVisibleToSubsequentReads(t *testing.T) {
	store := NewInMemoryStore()
	store.SetTarget(Target{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(1.0)})

	got, err := store.GetTarget("tgt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Bid.Equal(decimal.NewFromFloat(1.0)) {
		t.Fatalf("expected bid 1.0, got %v", got.Bid)
	}

	byCampaign := store.ListTargetsByCampaign("camp-1")
	if len(byCampaign) != 1 || byCampaign[0].ID != "tgt-1" {
		t.Fatalf("expected the target indexed under its campaign, got %+v", byCampaign)
	}
	byAccount := store.ListTargetsByAccount("acct-1")
	if len(byAccount) != 1 || byAccount[0].ID != "tgt-1" {
		t.Fatalf("expected the target indexed under its account, got %+v", byAccount)
	}
}

func TestSetTargetUpdateDoesNotDuplicateIndexEntries(t *testing.T) {
	store := NewInMemoryStore()
	store.SetTarget(Target{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(1.0)})
	store.SetTarget(Target{ID: "tgt-1", CampaignID: "camp-1", AccountID: "acct-1", Bid: decimal.NewFromFloat(2.0)})

	byCampaign := store.ListTargetsByCampaign("camp-1")
	if len(byCampaign) != 1 {
		t.Fatalf("expected a single index entry after an update, got %d", len(byCampaign))
	}
	if !byCampaign[0].Bid.Equal(decimal.NewFromFloat(2.0)) {
		t.Fatalf("expected the updated bid to be visible, got %v", byCampaign[0].Bid)
	}
}

func TestGetTargetNotFound(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.GetTarget("missing"); err == nil {
		t.Fatalf("expected a not-found error for a missing target")
	}
}

func TestReloadAllReplacesSnapshotAtomically(t *testing.T) {
	store := NewInMemoryStore()
	store.SetTarget(Target{ID: "old", CampaignID: "camp-old", AccountID: "acct-1"})

	err := store.ReloadAll(
		[]Target{{ID: "new", CampaignID: "camp-new", AccountID: "acct-1"}},
		[]Campaign{{ID: "camp-new", AccountID: "acct-1"}},
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.GetTarget("old"); err == nil {
		t.Fatalf("expected the old target to be gone after ReloadAll")
	}
	if _, err := store.GetTarget("new"); err != nil {
		t.Fatalf("expected the new target to be present: %v", err)
	}
}

func TestReloadAllPreservesCurveModelsAndParams(t *testing.T) {
	store := NewInMemoryStore()
	store.SetCurveModel(MarketCurveModel{TargetID: "tgt-1"})
	params := DefaultAlgorithmParams()
	params.MinBid = 0.42
	store.SetAlgorithmParams(params)

	if err := store.ReloadAll(nil, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.GetCurveModel("tgt-1"); err != nil {
		t.Fatalf("expected the curve model to survive ReloadAll: %v", err)
	}
	if store.AlgorithmParams().MinBid != 0.42 {
		t.Fatalf("expected algorithm params to survive ReloadAll, got %v", store.AlgorithmParams())
	}
}

func TestSetCurveModelBumpsVersion(t *testing.T) {
	store := NewInMemoryStore()
	store.SetCurveModel(MarketCurveModel{TargetID: "tgt-1"})
	first, _ := store.GetCurveModel("tgt-1")
	if first.Version != 1 {
		t.Fatalf("expected the first write to start at version 1, got %d", first.Version)
	}

	store.SetCurveModel(MarketCurveModel{TargetID: "tgt-1"})
	second, _ := store.GetCurveModel("tgt-1")
	if second.Version != 2 {
		t.Fatalf("expected the second write to bump to version 2, got %d", second.Version)
	}
}

func TestSetAlgorithmParamsIsolatesInFlightReaders(t *testing.T) {
	store := NewInMemoryStore()
	initial := store.AlgorithmParams()

	updated := DefaultAlgorithmParams()
	updated.MinBid = 9.99
	store.SetAlgorithmParams(updated)

	if initial.MinBid == 9.99 {
		t.Fatalf("expected the previously-read params value to remain unaffected by a later write")
	}
	if store.AlgorithmParams().MinBid != 9.99 {
		t.Fatalf("expected a fresh read to observe the new params")
	}
}

func TestSetRollbackRuleReplacesExistingByID(t *testing.T) {
	store := NewInMemoryStore()
	store.SetRollbackRule(RollbackRule{ID: "rule-1", AccountID: "acct-1", Enabled: true})
	store.SetRollbackRule(RollbackRule{ID: "rule-1", AccountID: "acct-1", Enabled: false})

	rules := store.ListRollbackRules("acct-1")
	if len(rules) != 1 {
		t.Fatalf("expected exactly one rule after replacing by ID, got %d", len(rules))
	}
	if rules[0].Enabled {
		t.Fatalf("expected the replaced rule's fields to reflect the latest write")
	}
}

func TestInMemoryStoreConcurrentWritesDoNotRace(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.SetTarget(Target{ID: "tgt", CampaignID: "camp", AccountID: "acct", Bid: decimal.NewFromFloat(float64(i))})
		}(i)
	}
	wg.Wait()

	if _, err := store.GetTarget("tgt"); err != nil {
		t.Fatalf("unexpected error after concurrent writes: %v", err)
	}
	if len(store.ListTargetsByCampaign("camp")) != 1 {
		t.Fatalf("expected concurrent updates to the same target to collapse to one index entry")
	}
}
