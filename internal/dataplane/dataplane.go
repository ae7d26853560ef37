// Package dataplane implements the Data Plane (C3): a freshness-aware
// merge of slow authoritative report data (Postgres) with fast streaming
// telemetry (ClickHouse), the data-freezing policy that hides unattributed
// recent data from algorithms, and the realtime-guard query restricted to
// spend/clicks/impressions. Grounded on the teacher's
// internal/analytics/clickhouse.go (stream sink, cost accounting) and
// internal/db/postgres.go (report-table access) — patrickwarner-openadserve.
package dataplane

import (
	"context"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

// ReportStore is the slow, authoritative track (Postgres report tables).
type ReportStore interface {
	QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error)
}

// StreamStore is the fast streaming track (ClickHouse telemetry).
type StreamStore interface {
	QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error)
	LatestUpdate(ctx context.Context, accountID string, campaignID string) (time.Time, bool, error)
}

// AlgorithmRows is the result of getDataForAlgorithm (spec §4.3): only
// rows within the safe (non-frozen) window, plus the metadata an algorithm
// needs to reason about how much history it actually saw.
type AlgorithmRows struct {
	Snapshots    []models.PerformanceSnapshot
	SafeEndDate  time.Time
	ExcludedDays int
}

// RealtimeGuardResult is the result of getRealtimeSpendForGuard (spec
// §4.3): restricted by contract to spend/clicks/impressions plus metadata.
// Conversion-derived fields are deliberately absent from this type — there
// is no field to carry them even by mistake.
type RealtimeGuardResult struct {
	Spend       decimal.Decimal
	Clicks      int64
	Impressions int64
	LastUpdate  time.Time
	Source      models.SnapshotSource
	Stale       bool
}

// DataPlane implements C3's two query contracts plus the consistency
// checker.
type DataPlane struct {
	Report ReportStore
	Stream StreamStore
	Params func() models.AlgorithmParams // current AlgorithmParams, re-fetched per call (copy-on-write)
}

// excludeDays returns the per-algorithm exclusion tail from the current
// AlgorithmParams, defaulting to 1 day for unknown algorithm kinds.
func (d *DataPlane) excludeDays(algoType string) int {
	params := d.Params()
	if days, ok := params.ExcludeDays[algoType]; ok {
		return days
	}
	return 1
}

// GetDataForAlgorithm returns only rows whose event date is on or before
// now - excludeDays(algoType) (spec §4.3). Rationale: conversions are
// attributed with up to 48-hour delay; fresher data would systematically
// under-count recent successes.
func (d *DataPlane) GetDataForAlgorithm(ctx context.Context, accountID, targetID, algoType string, lookbackDays int) (AlgorithmRows, error) {
	excluded := d.excludeDays(algoType)
	now := time.Now().UTC()
	safeEnd := now.AddDate(0, 0, -excluded)
	from := safeEnd.AddDate(0, 0, -lookbackDays)

	rows, err := d.Report.QuerySnapshots(ctx, accountID, targetID, from, safeEnd)
	if err != nil {
		return AlgorithmRows{}, apierr.ExternalFailure("query report snapshots", err)
	}

	safe := make([]models.PerformanceSnapshot, 0, len(rows))
	for _, r := range rows {
		if !r.Day.After(safeEnd) {
			safe = append(safe, r)
		}
	}

	return AlgorithmRows{
		Snapshots:    safe,
		SafeEndDate:  safeEnd,
		ExcludedDays: excluded,
	}, nil
}

// GetRealtimeSpendForGuard prefers the streaming buffer, falling back to
// the slow report table with a stale warning when the stream has nothing
// recent (spec §4.3). Only spend/clicks/impressions are ever populated.
func (d *DataPlane) GetRealtimeSpendForGuard(ctx context.Context, accountID string, campaignID string) (RealtimeGuardResult, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -1)

	streamRows, err := d.Stream.QuerySnapshots(ctx, accountID, campaignID, from, now)
	if err == nil && len(streamRows) > 0 {
		var spend decimal.Decimal
		var clicks, impressions int64
		latest := streamRows[0].EventTime
		for _, r := range streamRows {
			spend = spend.Add(r.Spend)
			clicks += r.Clicks
			impressions += r.Impressions
			if r.EventTime.After(latest) {
				latest = r.EventTime
			}
		}
		return RealtimeGuardResult{
			Spend:       spend,
			Clicks:      clicks,
			Impressions: impressions,
			LastUpdate:  latest,
			Source:      models.SourceStream,
			Stale:       false,
		}, nil
	}

	reportRows, rerr := d.Report.QuerySnapshots(ctx, accountID, campaignID, from, now)
	if rerr != nil {
		return RealtimeGuardResult{}, apierr.ExternalFailure("query realtime guard fallback", rerr)
	}

	var spend decimal.Decimal
	var clicks, impressions int64
	latest := time.Time{}
	for _, r := range reportRows {
		spend = spend.Add(r.Spend)
		clicks += r.Clicks
		impressions += r.Impressions
		if r.EventTime.After(latest) {
			latest = r.EventTime
		}
	}

	return RealtimeGuardResult{
		Spend:       spend,
		Clicks:      clicks,
		Impressions: impressions,
		LastUpdate:  latest,
		Source:      models.SourceReport,
		Stale:       true,
	}, nil
}
