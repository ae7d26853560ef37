// Package analytics implements the fast streaming track of the data plane
// (C3): a ClickHouse-backed sink and query surface for near-real-time
// performance telemetry, satisfying dataplane.StreamStore. Grounded on the
// teacher's internal/analytics/clickhouse.go (patrickwarner-openadserve)
// connection/table wiring; the events schema and query methods are new to
// this domain.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/shopspring/decimal"
)

// Stream wraps a ClickHouse connection holding streaming performance
// telemetry (spec §4.3's fast track).
type Stream struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

const createEventsTable = `CREATE TABLE IF NOT EXISTS performance_events (
    event_time    DateTime,
    account_id    String,
    entity_kind   String,
    entity_id     String,
    campaign_id   String,
    day           Date,
    bid           Float64,
    impressions   UInt64,
    clicks        UInt64,
    spend         Float64,
    sales         Float64,
    orders        UInt64
) ENGINE=MergeTree() ORDER BY (account_id, entity_id, event_time)`

// InitClickHouse connects to ClickHouse and ensures the streaming events
// table exists.
func InitClickHouse(dsn string, metrics observability.MetricsRegistry) (*Stream, error) {
	conn, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	if err := conn.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := conn.ExecContext(context.Background(), createEventsTable); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return &Stream{DB: conn, Metrics: metrics}, nil
}

// RecordSnapshot appends one streaming performance observation. Late
// arrivals never mutate an existing row; ClickHouse's MergeTree just
// accumulates another row for the same entity/day.
func (s *Stream) RecordSnapshot(ctx context.Context, campaignID string, snap models.PerformanceSnapshot) error {
	bid, _ := snap.Bid.Float64()
	spend, _ := snap.Spend.Float64()
	sales, _ := snap.Sales.Float64()

	stmt := `INSERT INTO performance_events (event_time, account_id, entity_kind, entity_id, campaign_id, day, bid, impressions, clicks, spend, sales, orders) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err := s.DB.ExecContext(ctx, stmt, snap.EventTime, snap.AccountID, string(snap.EntityKind), snap.EntityID, campaignID, snap.Day, bid, snap.Impressions, snap.Clicks, spend, sales, snap.Orders)
	if err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("entity_id", snap.EntityID))
		return fmt.Errorf("insert performance event: %w", err)
	}
	return nil
}

// QuerySnapshots implements dataplane.StreamStore.
func (s *Stream) QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT entity_kind, entity_id, account_id, day, bid, impressions, clicks, spend, sales, orders, event_time
        FROM performance_events WHERE account_id=? AND entity_id=? AND event_time BETWEEN ? AND ? ORDER BY event_time`,
		accountID, targetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query stream snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceSnapshot
	for rows.Next() {
		var snap models.PerformanceSnapshot
		var bid, spend, sales float64
		var entityKind string
		if err := rows.Scan(&entityKind, &snap.EntityID, &snap.AccountID, &snap.Day, &bid, &snap.Impressions, &snap.Clicks, &spend, &sales, &snap.Orders, &snap.EventTime); err != nil {
			return nil, fmt.Errorf("scan stream snapshot: %w", err)
		}
		snap.EntityKind = models.EntityKind(entityKind)
		snap.Bid = decimal.NewFromFloat(bid)
		snap.Spend = decimal.NewFromFloat(spend)
		snap.Sales = decimal.NewFromFloat(sales)
		snap.Source = models.SourceStream
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestUpdate implements dataplane.StreamStore: the most recent event_time
// recorded for any target under a campaign, used to gate freshness.
func (s *Stream) LatestUpdate(ctx context.Context, accountID string, campaignID string) (time.Time, bool, error) {
	var latest sql.NullTime
	err := s.DB.QueryRowContext(ctx, `SELECT max(event_time) FROM performance_events WHERE account_id=? AND campaign_id=?`, accountID, campaignID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest update: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

// Close terminates the ClickHouse connection.
func (s *Stream) Close() {
	if s != nil && s.DB != nil {
		if err := s.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
