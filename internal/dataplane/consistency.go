package dataplane

import (
	"context"
	"math"
	"time"

	"github.com/patrickwarner/bidops/internal/observability"
	"go.uber.org/zap"
)

const (
	divergenceThresholdPct      = 0.05
	consecutiveFailureAlertAt   = 3
	defaultAMSBackfillThreshold = 4 * time.Hour
)

// ConsistencyChecker compares report vs. stream sums for a window and
// tracks consecutive divergences above threshold, raising an alert at 3 in
// a row (spec §4.3). Grounded on the teacher's Reload() ticker-driven
// refresh loop (tools/cmd/server/main.go's ReloadInterval ticker),
// generalized into a scheduled task rather than an HTTP-triggered reload.
type ConsistencyChecker struct {
	Plane   *DataPlane
	Metrics observability.MetricsRegistry
	Logger  *zap.Logger

	AMSBackfillThreshold time.Duration

	consecutiveFailures map[string]int // keyed by targetID
}

// CheckResult is the outcome of one consistency check for a single target.
type CheckResult struct {
	TargetID          string
	SpendDivergence   float64
	ClicksDivergence  float64
	ImprDivergence    float64
	Diverged          bool
	AlertRaised       bool
	BackfillTriggered bool
}

// Check compares report and stream sums for accountID/targetID over
// [from, to]. A divergence above 5% on any field increments a consecutive
// counter for that target; at 3 consecutive failures it raises an alert.
func (c *ConsistencyChecker) Check(ctx context.Context, accountID, targetID string, from, to time.Time) (CheckResult, error) {
	if c.consecutiveFailures == nil {
		c.consecutiveFailures = make(map[string]int)
	}
	threshold := c.AMSBackfillThreshold
	if threshold == 0 {
		threshold = defaultAMSBackfillThreshold
	}

	reportRows, err := c.Plane.Report.QuerySnapshots(ctx, accountID, targetID, from, to)
	if err != nil {
		return CheckResult{}, err
	}
	streamRows, err := c.Plane.Stream.QuerySnapshots(ctx, accountID, targetID, from, to)
	if err != nil {
		return CheckResult{}, err
	}

	var reportSpend, streamSpend float64
	var reportClicks, streamClicks int64
	var reportImpr, streamImpr int64
	for _, r := range reportRows {
		v, _ := r.Spend.Float64()
		reportSpend += v
		reportClicks += r.Clicks
		reportImpr += r.Impressions
	}
	for _, r := range streamRows {
		v, _ := r.Spend.Float64()
		streamSpend += v
		streamClicks += r.Clicks
		streamImpr += r.Impressions
	}

	spendDiv := relativeDivergence(reportSpend, streamSpend)
	clicksDiv := relativeDivergence(float64(reportClicks), float64(streamClicks))
	imprDiv := relativeDivergence(float64(reportImpr), float64(streamImpr))

	diverged := spendDiv > divergenceThresholdPct || clicksDiv > divergenceThresholdPct || imprDiv > divergenceThresholdPct

	result := CheckResult{
		TargetID:         targetID,
		SpendDivergence:  spendDiv,
		ClicksDivergence: clicksDiv,
		ImprDivergence:   imprDiv,
		Diverged:         diverged,
	}

	if diverged {
		c.consecutiveFailures[targetID]++
		if c.Metrics != nil {
			c.Metrics.IncrementDataPlaneDivergence(targetID)
		}
		if c.consecutiveFailures[targetID] >= consecutiveFailureAlertAt {
			result.AlertRaised = true
			if c.Logger != nil {
				c.Logger.Warn("consistency check alert: consecutive divergences",
					zap.String("target_id", targetID),
					zap.Int("consecutive_failures", c.consecutiveFailures[targetID]))
			}
		}
	} else {
		c.consecutiveFailures[targetID] = 0
	}

	// AMS-backfill repair: stream rows older than the threshold with no
	// matching report row are stale enough to need re-fetch from reports.
	if time.Since(to) > threshold && len(streamRows) > 0 && len(reportRows) == 0 {
		result.BackfillTriggered = true
	}

	return result, nil
}

func relativeDivergence(a, b float64) float64 {
	denom := math.Max(math.Abs(a), 1e-9)
	return math.Abs(a-b) / denom
}
