package curvefit

import (
	"github.com/patrickwarner/bidops/internal/models"
)

const bidSearchStepCents = 1 // search granularity: one cent

// ProfitMaximizingBid searches [minBid, maxBid] for the bid that maximizes
// profit(b) = impr(b)*ctr(b)*cvr*aov*margin - impr(b)*ctr(b)*b
// (spec §4.1 step 6). The search space is small and evaluated on a penny
// grid; no example repo in the retrieval pack imports a numerical
// optimization library, and a bounded 1-D grid search doesn't need one
// (see DESIGN.md).
func ProfitMaximizingBid(impr models.ImpressionCurveParams, ctr models.CTRCurveParams, conv models.ConversionParams, margin, minBid, maxBid float64) (optimalBid, maxProfit, breakEvenCPC float64) {
	breakEvenCPC = conv.AOV * conv.CVR * margin

	if maxBid < minBid {
		maxBid = minBid
	}
	steps := int((maxBid - minBid) / bidSearchStepCents * 100)
	if steps < 1 {
		steps = 1
	}

	bestBid := minBid
	bestProfit := profitAt(minBid, impr, ctr, conv, margin)

	for i := 1; i <= steps; i++ {
		bid := minBid + float64(i)*(maxBid-minBid)/float64(steps)
		p := profitAt(bid, impr, ctr, conv, margin)
		if p > bestProfit {
			bestProfit = p
			bestBid = bid
		}
	}

	return bestBid, bestProfit, breakEvenCPC
}

func profitAt(bid float64, impr models.ImpressionCurveParams, ctr models.CTRCurveParams, conv models.ConversionParams, margin float64) float64 {
	i := impr.Eval(bid)
	c := ctr.Eval(bid)
	clicks := i * c
	revenue := clicks * conv.CVR * conv.AOV * margin
	cost := clicks * bid
	return revenue - cost
}
