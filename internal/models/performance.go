package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotSource distinguishes where a PerformanceSnapshot's numbers came
// from. "merged" rows are produced by the data plane fusing report+stream.
type SnapshotSource string

const (
	SourceReport SnapshotSource = "report"
	SourceStream SnapshotSource = "stream"
	SourceMerged SnapshotSource = "merged"
)

// EntityKind distinguishes whether a snapshot belongs to a Target or a
// Campaign aggregate row.
type EntityKind string

const (
	EntityTarget   EntityKind = "target"
	EntityCampaign EntityKind = "campaign"
)

// PerformanceSnapshot is one immutable observation of (impressions, clicks,
// spend, sales, orders) for a target or campaign on a given day. Late
// arrivals never mutate an existing row; they produce a new row keyed by
// (Source, EventTime), per spec §3.
type PerformanceSnapshot struct {
	EntityKind  EntityKind
	EntityID    string
	AccountID   string
	Day         time.Time // truncated to UTC date
	Bid         decimal.Decimal // bid in effect when this snapshot was recorded
	Impressions int64
	Clicks      int64
	Spend       decimal.Decimal
	Sales       decimal.Decimal
	Orders      int64
	Source      SnapshotSource
	EventTime   time.Time
}

// CVR returns the conversion rate (orders/clicks), 0 when clicks is 0.
func (s PerformanceSnapshot) CVR() float64 {
	if s.Clicks == 0 {
		return 0
	}
	return float64(s.Orders) / float64(s.Clicks)
}

// CTR returns the click-through rate (clicks/impressions), 0 when impressions is 0.
func (s PerformanceSnapshot) CTR() float64 {
	if s.Impressions == 0 {
		return 0
	}
	return float64(s.Clicks) / float64(s.Impressions)
}

// ROAS returns sales/spend, 0 when spend is zero.
func (s PerformanceSnapshot) ROAS() float64 {
	spend, _ := s.Spend.Float64()
	if spend == 0 {
		return 0
	}
	sales, _ := s.Sales.Float64()
	return sales / spend
}

// ACoS returns spend/sales as a fraction (not percent), 0 when sales is zero.
func (s PerformanceSnapshot) ACoS() float64 {
	sales, _ := s.Sales.Float64()
	if sales == 0 {
		return 0
	}
	spend, _ := s.Spend.Float64()
	return spend / sales
}

// AggregatedMetrics accumulates snapshot fields for a single bid value or
// window, used by the curve fitter when grouping by bid.
type AggregatedMetrics struct {
	Bid         decimal.Decimal
	Impressions int64
	Clicks      int64
	Spend       decimal.Decimal
	Sales       decimal.Decimal
	Orders      int64
}
