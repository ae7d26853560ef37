package models

import (
	"math"
	"time"
)

// ImpressionCurveParams fits impr(bid) = a*(1 - e^(-b*bid)) + c.
type ImpressionCurveParams struct {
	A, B, C float64
	RSquared float64
	// Piecewise is populated instead of A/B/C when RSquared < 0.3 at fit
	// time (spec §4.1 fallback); when non-nil, callers must use it.
	Piecewise *PiecewiseLinear
}

// PiecewiseLinear is the degraded-fit fallback: sorted (bid, impressions)
// control points interpolated linearly between neighbors and clamped at
// the ends.
type PiecewiseLinear struct {
	BidPoints   []float64
	ImprPoints  []float64
}

// Eval interpolates the piecewise-linear curve at bid, clamping outside
// the fitted range.
func (p *PiecewiseLinear) Eval(bid float64) float64 {
	n := len(p.BidPoints)
	if n == 0 {
		return 0
	}
	if bid <= p.BidPoints[0] {
		return p.ImprPoints[0]
	}
	if bid >= p.BidPoints[n-1] {
		return p.ImprPoints[n-1]
	}
	for i := 1; i < n; i++ {
		if bid <= p.BidPoints[i] {
			x0, x1 := p.BidPoints[i-1], p.BidPoints[i]
			y0, y1 := p.ImprPoints[i-1], p.ImprPoints[i]
			if x1 == x0 {
				return y0
			}
			t := (bid - x0) / (x1 - x0)
			return y0 + t*(y1-y0)
		}
	}
	return p.ImprPoints[n-1]
}

// Eval returns predicted impressions at bid, using the fitted exponential
// curve or falling back to the piecewise-linear interpolation.
func (p ImpressionCurveParams) Eval(bid float64) float64 {
	if p.Piecewise != nil {
		return p.Piecewise.Eval(bid)
	}
	return p.A*(1-expNeg(p.B*bid)) + p.C
}

// CTRCurveParams fits ctr(bid) = base + positionBonus*f(bid) + topSearchBonus*g(bid),
// f and g saturating functions of bid (1 - e^-bid shape, scaled).
type CTRCurveParams struct {
	Base            float64
	PositionBonus   float64
	TopSearchBonus  float64
}

// Eval returns predicted CTR at bid.
func (p CTRCurveParams) Eval(bid float64) float64 {
	saturating := 1 - expNeg(bid)
	return p.Base + p.PositionBonus*saturating + p.TopSearchBonus*saturating
}

// ConversionParams holds the conversion-side inputs to profit estimation.
type ConversionParams struct {
	CVR              float64
	AOV              float64
	AttributionDelayDays int // fixed 7 per spec §4.1
}

// MarketCurveModel is the per-target fitted model. Fit leaves Version
// unset; Store.SetCurveModel assigns Version = previous.Version + 1 when it
// supersedes a stored model, which is never mutated in place (spec §3
// lifecycle, SPEC_FULL C1 supplement).
type MarketCurveModel struct {
	TargetID   string
	Version    int
	Impression ImpressionCurveParams
	CTR        CTRCurveParams
	Conversion ConversionParams
	OptimalBid      float64
	MaxProfit       float64
	BreakEvenCPC    float64
	ProfitMargin    float64
	WindowDays      int
	BuiltAt         time.Time
}

func expNeg(x float64) float64 {
	return math.Exp(-x)
}
