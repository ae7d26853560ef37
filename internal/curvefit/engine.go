package curvefit

import (
	"context"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/dataplane"
	"github.com/patrickwarner/bidops/internal/models"
	"go.uber.org/zap"
)

const attributionDelayDays = 7
const defaultWindowDays = 30

// DataSource is the subset of the data plane the fitter needs: non-frozen
// snapshots for a target over a lookback window (spec §4.1 step 1).
type DataSource interface {
	GetDataForAlgorithm(ctx context.Context, accountID, targetID, algoType string, lookbackDays int) (dataplane.AlgorithmRows, error)
}

// Engine fits MarketCurveModels for targets, grounded on the teacher's
// internal/forecasting/engine.go request-validate/compute/respond shape
// (patrickwarner-openadserve), generalized to this domain's algorithm.
type Engine struct {
	Data   DataSource
	Logger *zap.Logger
}

// Fit builds a new MarketCurveModel for target from the rolling window
// (default 30 days of non-frozen data). Returns apierr.InsufficientData
// when fewer than minBidPointsForFit distinct bid points are available.
func (e *Engine) Fit(ctx context.Context, accountID string, target models.Target, params models.AlgorithmParams, windowDays int) (models.MarketCurveModel, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	rows, err := e.Data.GetDataForAlgorithm(ctx, accountID, target.ID, "bid", windowDays)
	if err != nil {
		return models.MarketCurveModel{}, err
	}

	grouped := GroupByBid(rows.Snapshots)
	if len(grouped) < minBidPointsForFit {
		return models.MarketCurveModel{}, apierr.InsufficientData(
			"fewer than the minimum number of distinct bid points in the window")
	}

	imprParams := FitImpressionCurve(grouped)
	ctrParams := FitCTRCurve(grouped)
	conv := conversionParams(grouped)

	margin := 1 - params.ProfitMarginPct
	optimalBid, maxProfit, breakEven := ProfitMaximizingBid(imprParams, ctrParams, conv, margin, params.MinBid, params.MaxBid)

	model := models.MarketCurveModel{
		TargetID:     target.ID,
		Impression:   imprParams,
		CTR:          ctrParams,
		Conversion:   conv,
		OptimalBid:   optimalBid,
		MaxProfit:    maxProfit,
		BreakEvenCPC: breakEven,
		ProfitMargin: margin,
		WindowDays:   windowDays,
		BuiltAt:      time.Now().UTC(),
	}

	if e.Logger != nil {
		e.Logger.Info("fitted market curve model",
			zap.String("target_id", target.ID),
			zap.Float64("r_squared", imprParams.RSquared),
			zap.Float64("optimal_bid", optimalBid))
	}

	return model, nil
}

func conversionParams(points []models.AggregatedMetrics) models.ConversionParams {
	var totalClicks, totalOrders int64
	var totalSales float64
	for _, p := range points {
		totalClicks += p.Clicks
		totalOrders += p.Orders
		sales, _ := p.Sales.Float64()
		totalSales += sales
	}

	cvr := 0.0
	if totalClicks > 0 {
		cvr = float64(totalOrders) / float64(totalClicks)
	}
	aov := 0.0
	if totalOrders > 0 {
		aov = totalSales / float64(totalOrders)
	}

	return models.ConversionParams{
		CVR:                  cvr,
		AOV:                  aov,
		AttributionDelayDays: attributionDelayDays,
	}
}
