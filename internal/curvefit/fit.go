// Package curvefit implements the Market-Curve Fitter (C1): per-target
// impression and CTR curves fit by nonlinear least squares, plus the
// profit-maximizing bid search described in spec §4.1. No example repo in
// the retrieval pack fits market curves, so the numerical method here is
// grounded directly on the spec's algorithm description (see DESIGN.md).
package curvefit

import (
	"math"
	"sort"

	"github.com/patrickwarner/bidops/internal/models"
)

const minBidPointsForFit = 3

// GroupByBid aggregates snapshots by their recorded bid value, summing
// impressions/clicks/spend/sales/orders across days (spec §4.1 step 2).
func GroupByBid(snapshots []models.PerformanceSnapshot) []models.AggregatedMetrics {
	byBid := make(map[string]*models.AggregatedMetrics)
	order := make([]string, 0)
	for _, s := range snapshots {
		key := s.Bid.StringFixed(2)
		agg, ok := byBid[key]
		if !ok {
			agg = &models.AggregatedMetrics{Bid: s.Bid}
			byBid[key] = agg
			order = append(order, key)
		}
		agg.Impressions += s.Impressions
		agg.Clicks += s.Clicks
		agg.Spend = agg.Spend.Add(s.Spend)
		agg.Sales = agg.Sales.Add(s.Sales)
		agg.Orders += s.Orders
	}
	sort.Strings(order)
	out := make([]models.AggregatedMetrics, 0, len(order))
	for _, k := range order {
		out = append(out, *byBid[k])
	}
	return out
}

// FitImpressionCurve fits impr(bid) = a*(1 - e^(-b*bid)) + c by nonlinear
// least squares (Gauss-Newton with a fixed step-damping fallback), falling
// back to piecewise-linear interpolation when R² < 0.3 (spec §4.1 step 3).
func FitImpressionCurve(points []models.AggregatedMetrics) models.ImpressionCurveParams {
	bids := make([]float64, len(points))
	imprs := make([]float64, len(points))
	for i, p := range points {
		b, _ := p.Bid.Float64()
		bids[i] = b
		imprs[i] = float64(p.Impressions)
	}

	a, b, c := gaussNewtonImpression(bids, imprs)
	r2 := rSquaredImpression(bids, imprs, a, b, c)

	params := models.ImpressionCurveParams{A: a, B: b, C: c, RSquared: r2}
	if r2 < 0.3 {
		params.Piecewise = &models.PiecewiseLinear{BidPoints: append([]float64(nil), bids...), ImprPoints: append([]float64(nil), imprs...)}
	}
	return params
}

// gaussNewtonImpression fits a*(1-e^(-b*x))+c with a handful of fixed
// iterations from a heuristic starting point; with at most a few dozen
// bid points this converges well within the iteration budget and a
// non-convergent run simply returns its last estimate (spec: "never
// throw").
func gaussNewtonImpression(x, y []float64) (a, b, c float64) {
	n := len(x)
	if n == 0 {
		return 0, 0, 0
	}
	maxY := y[0]
	for _, v := range y {
		if v > maxY {
			maxY = v
		}
	}
	a, b, c = maxY, 0.5, 0

	for iter := 0; iter < 50; iter++ {
		var sumJ11, sumJ12, sumJ13 float64
		var sumJ22, sumJ23, sumJ33 float64
		var sumR1, sumR2, sumR3 float64

		for i := 0; i < n; i++ {
			e := math.Exp(-b * x[i])
			pred := a*(1-e) + c
			resid := y[i] - pred

			dA := 1 - e
			dB := a * x[i] * e
			dC := 1.0

			sumJ11 += dA * dA
			sumJ12 += dA * dB
			sumJ13 += dA * dC
			sumJ22 += dB * dB
			sumJ23 += dB * dC
			sumJ33 += dC * dC

			sumR1 += dA * resid
			sumR2 += dB * resid
			sumR3 += dC * resid
		}

		// Solve the 3x3 normal-equations system with simple Cramer's rule;
		// guard against a singular system by bailing out to the current estimate.
		det := det3(sumJ11, sumJ12, sumJ13, sumJ12, sumJ22, sumJ23, sumJ13, sumJ23, sumJ33)
		if math.Abs(det) < 1e-9 {
			break
		}
		dA := det3(sumR1, sumJ12, sumJ13, sumR2, sumJ22, sumJ23, sumR3, sumJ23, sumJ33) / det
		dB := det3(sumJ11, sumR1, sumJ13, sumJ12, sumR2, sumJ23, sumJ13, sumR3, sumJ33) / det
		dC := det3(sumJ11, sumJ12, sumR1, sumJ12, sumJ22, sumR2, sumJ13, sumJ23, sumR3) / det

		a += 0.5 * dA
		b += 0.5 * dB
		c += 0.5 * dC
		if b < 0.001 {
			b = 0.001
		}

		if math.Abs(dA)+math.Abs(dB)+math.Abs(dC) < 1e-6 {
			break
		}
	}
	return a, b, c
}

func det3(a11, a12, a13, a21, a22, a23, a31, a32, a33 float64) float64 {
	return a11*(a22*a33-a23*a32) - a12*(a21*a33-a23*a31) + a13*(a21*a32-a22*a31)
}

func rSquaredImpression(x, y []float64, a, b, c float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i := range y {
		pred := a*(1-math.Exp(-b*x[i])) + c
		ssRes += (y[i] - pred) * (y[i] - pred)
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

// FitCTRCurve fits ctr(bid) = base + positionBonus*f(bid) + topSearchBonus*g(bid)
// where f and g are the same saturating shape, by ordinary least squares
// over the two saturating regressors (spec §4.1 step 4).
func FitCTRCurve(points []models.AggregatedMetrics) models.CTRCurveParams {
	n := len(points)
	if n == 0 {
		return models.CTRCurveParams{}
	}

	var sumSat, sumSat2, sumCTR, sumSatCTR float64
	for _, p := range points {
		bid, _ := p.Bid.Float64()
		ctr := 0.0
		if p.Impressions > 0 {
			ctr = float64(p.Clicks) / float64(p.Impressions)
		}
		sat := 1 - math.Exp(-bid)
		sumSat += sat
		sumSat2 += sat * sat
		sumCTR += ctr
		sumSatCTR += sat * ctr
	}
	meanSat := sumSat / float64(n)
	meanCTR := sumCTR / float64(n)

	var slope float64
	denom := sumSat2 - float64(n)*meanSat*meanSat
	if denom != 0 {
		slope = (sumSatCTR - float64(n)*meanSat*meanCTR) / denom
	}
	base := meanCTR - slope*meanSat
	if base < 0 {
		base = 0
	}

	// Split the saturating slope evenly between position and top-search
	// bonuses: the fitted regressor can't separate the two without
	// placement-labeled data, which this aggregate view doesn't carry.
	return models.CTRCurveParams{
		Base:           base,
		PositionBonus:  slope / 2,
		TopSearchBonus: slope / 2,
	}
}
