package curvefit

import (
	"testing"

	"github.com/patrickwarner/bidops/internal/models"
)

func TestProfitMaximizingBidStaysWithinBounds(t *testing.T) {
	impr := models.ImpressionCurveParams{A: 1000, B: 0.8, C: 0}
	ctr := models.CTRCurveParams{Base: 0.02, PositionBonus: 0.01, TopSearchBonus: 0.01}
	conv := models.ConversionParams{CVR: 0.1, AOV: 40}

	optimalBid, maxProfit, breakEven := ProfitMaximizingBid(impr, ctr, conv, 0.7, 0.2, 5.0)

	if optimalBid < 0.2 || optimalBid > 5.0 {
		t.Fatalf("expected optimal bid within [0.2, 5.0], got %v", optimalBid)
	}
	if maxProfit < profitAt(0.2, impr, ctr, conv, 0.7) {
		t.Fatalf("expected maxProfit to be at least as good as the floor bid's profit")
	}
	wantBreakEven := conv.AOV * conv.CVR * 0.7
	if breakEven != wantBreakEven {
		t.Fatalf("expected breakEvenCPC=%v, got %v", wantBreakEven, breakEven)
	}
}

func TestProfitMaximizingBidClampsInvertedRange(t *testing.T) {
	impr := models.ImpressionCurveParams{A: 500, B: 0.5}
	ctr := models.CTRCurveParams{Base: 0.01}
	conv := models.ConversionParams{CVR: 0.05, AOV: 20}

	bid, _, _ := ProfitMaximizingBid(impr, ctr, conv, 0.5, 3.0, 1.0)
	if bid != 3.0 {
		t.Fatalf("expected search to clamp to minBid=3.0 when maxBid<minBid, got %v", bid)
	}
}
