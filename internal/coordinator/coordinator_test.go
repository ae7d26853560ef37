package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

func absoluteBid(source models.ProposalSource, bid float64, confidence float64) models.BidProposal {
	d := decimal.NewFromFloat(bid)
	return models.BidProposal{Source: source, AbsoluteBid: &d, Confidence: confidence, Reason: "test"}
}

func multiplicative(source models.ProposalSource, mult, confidence float64) models.BidProposal {
	return models.BidProposal{Source: source, SuggestedMultiplier: mult, Confidence: confidence, Reason: "test"}
}

func TestApplyCoordinatedBidsUsesAbsoluteProposalWhenPresent(t *testing.T) {
	c := &Coordinator{Locks: NewLockTable(), Params: models.DefaultAlgorithmParams}

	in := Input{
		AccountID:      "acct-1",
		TargetID:       "tgt-1",
		CurrentBaseBid: decimal.NewFromFloat(1.0),
		Proposals:      []models.BidProposal{absoluteBid(models.SourceBaseAlgo, 2.0, 0.9)},
	}
	result := c.ApplyCoordinatedBids(context.Background(), in)
	f, _ := result.FinalBid.Float64()
	if f != 2.0 {
		t.Fatalf("expected final bid to track the single absolute proposal, got %v", f)
	}
	if result.CircuitBreakerTripped {
		t.Fatalf("did not expect the circuit breaker to trip")
	}
}

func TestApplyCoordinatedBidsClampsToMaxBid(t *testing.T) {
	params := models.DefaultAlgorithmParams()
	params.MaxBid = 10
	params.MaxAllowedCPC = 1000 // avoid tripping the breaker before the clamp matters
	c := &Coordinator{Locks: NewLockTable(), Params: func() models.AlgorithmParams { return params }}

	in := Input{
		AccountID:      "acct-1",
		TargetID:       "tgt-1",
		CurrentBaseBid: decimal.NewFromFloat(1.0),
		Proposals:      []models.BidProposal{absoluteBid(models.SourceBaseAlgo, 50.0, 1.0)},
	}
	result := c.ApplyCoordinatedBids(context.Background(), in)
	f, _ := result.FinalBid.Float64()
	if f != 10 {
		t.Fatalf("expected final bid clamped to MaxBid=10, got %v", f)
	}
}

func TestApplyCoordinatedBidsTripsCircuitBreakerOverCPCCap(t *testing.T) {
	params := models.DefaultAlgorithmParams()
	params.MaxAllowedCPC = 2.0
	params.MaxBid = 1000
	c := &Coordinator{Locks: NewLockTable(), Params: func() models.AlgorithmParams { return params }}

	in := Input{
		AccountID:             "acct-1",
		TargetID:              "tgt-1",
		CurrentBaseBid:        decimal.NewFromFloat(1.0),
		CurrentPlacementPct:   50,
		CurrentDaypartingMult: 2.0,
		Proposals:             []models.BidProposal{absoluteBid(models.SourceBaseAlgo, 10.0, 1.0)},
	}
	result := c.ApplyCoordinatedBids(context.Background(), in)
	if !result.CircuitBreakerTripped {
		t.Fatalf("expected the circuit breaker to trip when theoretical CPC exceeds the cap")
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning message describing the trip")
	}
}

func TestApplyCoordinatedBidsCombinesMultiplicativeProposals(t *testing.T) {
	params := models.DefaultAlgorithmParams()
	params.MaxAllowedCPC = 1000
	c := &Coordinator{Locks: NewLockTable(), Params: func() models.AlgorithmParams { return params }}

	in := Input{
		AccountID:      "acct-1",
		TargetID:       "tgt-1",
		CurrentBaseBid: decimal.NewFromFloat(1.0),
		Proposals: []models.BidProposal{
			multiplicative(models.SourceDayparting, 1.2, 1.0),
			multiplicative(models.SourceInventory, 0.8, 1.0),
		},
	}
	result := c.ApplyCoordinatedBids(context.Background(), in)
	if result.EffectiveMultiplier <= 0 {
		t.Fatalf("expected a positive combined multiplier, got %v", result.EffectiveMultiplier)
	}
	f, _ := result.FinalBid.Float64()
	if f <= 0 {
		t.Fatalf("expected a positive final bid, got %v", f)
	}
}

func TestApplyCoordinatedBidsNoProposalsKeepsCurrentBid(t *testing.T) {
	c := &Coordinator{Locks: NewLockTable(), Params: models.DefaultAlgorithmParams}
	in := Input{
		AccountID:      "acct-1",
		TargetID:       "tgt-1",
		CurrentBaseBid: decimal.NewFromFloat(1.5),
	}
	result := c.ApplyCoordinatedBids(context.Background(), in)
	f, _ := result.FinalBid.Float64()
	if f != 1.5 {
		t.Fatalf("expected the final bid to equal the current bid absent proposals, got %v", f)
	}
	if result.Reason != "no proposals" {
		t.Fatalf("expected reason 'no proposals', got %q", result.Reason)
	}
}

func TestLockTableSerializesSameAccountTarget(t *testing.T) {
	lt := NewLockTable()
	unlock := lt.Lock("acct-1", "tgt-1")

	done := make(chan struct{})
	go func() {
		unlock2 := lt.Lock("acct-1", "tgt-1")
		unlock2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("expected the second lock acquisition to block while the first is held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-done
}
