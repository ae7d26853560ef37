package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

// Postgres wraps the authoritative relational store: accounts, campaigns,
// ad groups, targets, performance snapshots (partitioned by date), batch
// operations and items, bid-adjustment history (append-only), rollback
// rules and suggestions, scheduled tasks and executions, market-curve
// models, and algorithm parameters (spec §6 "Persisted state"). Grounded
// on the teacher's internal/db/postgres.go connection/otelsql wiring
// (patrickwarner-openadserve); the schema itself is new to this domain.
type Postgres struct {
	DB *sql.DB
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    daily_budget NUMERIC NOT NULL,
    min_bid NUMERIC NOT NULL,
    max_bid NUMERIC NOT NULL,
    placement_pct JSONB NOT NULL DEFAULT '{}',
    dayparting JSONB NOT NULL DEFAULT '{}',
    performance_group_id TEXT,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS performance_groups (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    goal TEXT NOT NULL,
    goal_target NUMERIC NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS targets (
    id TEXT PRIMARY KEY,
    target_type TEXT NOT NULL,
    account_id TEXT NOT NULL,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id),
    ad_group_id TEXT NOT NULL,
    match_type TEXT,
    text TEXT NOT NULL,
    bid NUMERIC NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS performance_snapshots (
    entity_kind TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    day DATE NOT NULL,
    bid NUMERIC NOT NULL DEFAULT 0,
    impressions BIGINT NOT NULL DEFAULT 0,
    clicks BIGINT NOT NULL DEFAULT 0,
    spend NUMERIC NOT NULL DEFAULT 0,
    sales NUMERIC NOT NULL DEFAULT 0,
    orders BIGINT NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    event_time TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (entity_id, day, source, event_time)
) PARTITION BY RANGE (day);

CREATE TABLE IF NOT EXISTS performance_snapshots_default PARTITION OF performance_snapshots DEFAULT;

CREATE TABLE IF NOT EXISTS market_curve_models (
    target_id TEXT NOT NULL,
    version INT NOT NULL,
    model JSONB NOT NULL,
    built_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (target_id, version)
);

CREATE TABLE IF NOT EXISTS batch_operations (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    account_id TEXT NOT NULL,
    operation_type TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
    source_type TEXT NOT NULL,
    source_task_id TEXT,
    status TEXT NOT NULL,
    success_items INT NOT NULL DEFAULT 0,
    failed_items INT NOT NULL DEFAULT 0,
    skipped_items INT NOT NULL DEFAULT 0,
    executor TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    approved_at TIMESTAMPTZ,
    executed_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS batch_operation_items (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL REFERENCES batch_operations(id),
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}',
    rollback_snapshot JSONB NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    error_message TEXT,
    executed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bid_adjustment_history (
    id TEXT PRIMARY KEY,
    target_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    previous_bid NUMERIC NOT NULL,
    new_bid NUMERIC NOT NULL,
    source TEXT NOT NULL,
    reason TEXT,
    expected_profit_delta NUMERIC NOT NULL DEFAULT 0,
    applied_by TEXT,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    batch_id TEXT,
    is_rolled_back BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS effect_tracking_records (
    adjustment_record_id TEXT PRIMARY KEY REFERENCES bid_adjustment_history(id),
    target_id TEXT NOT NULL,
    actual_profit_7d NUMERIC,
    actual_profit_14d NUMERIC,
    actual_profit_30d NUMERIC,
    actual_spend_7d NUMERIC NOT NULL DEFAULT 0,
    actual_clicks_7d BIGINT NOT NULL DEFAULT 0,
    actual_conversions_7d BIGINT NOT NULL DEFAULT 0,
    estimated_profit NUMERIC NOT NULL DEFAULT 0,
    tracked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS rollback_rules (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    version INT NOT NULL DEFAULT 1,
    conditions JSONB NOT NULL,
    actions JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rollback_suggestions (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL REFERENCES rollback_rules(id),
    adjustment_record_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    priority INT NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    reviewed_at TIMESTAMPTZ,
    executed_batch_id TEXT
);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
    id TEXT PRIMARY KEY,
    task_type TEXT NOT NULL,
    account_id TEXT NOT NULL,
    schedule TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    auto_apply BOOLEAN NOT NULL DEFAULT FALSE,
    require_approval BOOLEAN NOT NULL DEFAULT TRUE,
    parameters JSONB NOT NULL DEFAULT '{}',
    next_run TIMESTAMPTZ,
    last_run TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_executions (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL REFERENCES scheduled_tasks(id),
    task_type TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ NOT NULL,
    outcome TEXT NOT NULL,
    error TEXT
);

CREATE TABLE IF NOT EXISTS algorithm_parameters (
    id INT PRIMARY KEY DEFAULT 1,
    params JSONB NOT NULL,
    CONSTRAINT single_row CHECK (id = 1)
);

CREATE INDEX IF NOT EXISTS idx_targets_campaign_id ON targets (campaign_id);
CREATE INDEX IF NOT EXISTS idx_targets_account_id ON targets (account_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_account_id ON campaigns (account_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_entity_day ON performance_snapshots (entity_id, day);
CREATE INDEX IF NOT EXISTS idx_batch_items_batch_id ON batch_operation_items (batch_id);
CREATE INDEX IF NOT EXISTS idx_adjustment_history_target_id ON bid_adjustment_history (target_id);
CREATE INDEX IF NOT EXISTS idx_rollback_suggestions_status ON rollback_suggestions (status);
`

// InitPostgres connects to Postgres with connection pooling configuration
// and ensures the schema exists.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.connection_string", dsn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: sqlDB}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadTargets returns every target for an account.
func (p *Postgres) LoadTargets(ctx context.Context, accountID string) ([]models.Target, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, target_type, account_id, campaign_id, ad_group_id, match_type, text, bid, status, created_at, updated_at FROM targets WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []models.Target
	for rows.Next() {
		var t models.Target
		var matchType sql.NullString
		var bid string
		if err := rows.Scan(&t.ID, &t.TargetType, &t.AccountID, &t.CampaignID, &t.AdGroupID, &matchType, &t.Text, &bid, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.MatchType = models.MatchType(matchType.String)
		t.Bid, _ = decimal.NewFromString(bid)
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTarget inserts or updates a target row.
func (p *Postgres) UpsertTarget(ctx context.Context, t models.Target) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO targets (id, target_type, account_id, campaign_id, ad_group_id, match_type, text, bid, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (id) DO UPDATE SET bid=$8, status=$9, updated_at=$11`,
		t.ID, t.TargetType, t.AccountID, t.CampaignID, t.AdGroupID, string(t.MatchType), t.Text, t.Bid.String(), t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// LoadCampaigns returns every campaign for an account.
func (p *Postgres) LoadCampaigns(ctx context.Context, accountID string) ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, account_id, name, daily_budget, min_bid, max_bid, placement_pct, dayparting, performance_group_id, enabled, created_at, updated_at FROM campaigns WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var dailyBudget, minBid, maxBid string
		var placementJSON, daypartingJSON []byte
		var groupID sql.NullString
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &dailyBudget, &minBid, &maxBid, &placementJSON, &daypartingJSON, &groupID, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.DailyBudget, _ = decimal.NewFromString(dailyBudget)
		c.MinBid, _ = decimal.NewFromString(minBid)
		c.MaxBid, _ = decimal.NewFromString(maxBid)
		c.PerformanceGroupID = groupID.String

		var placementPct map[models.PlacementType]int
		if len(placementJSON) > 0 {
			_ = json.Unmarshal(placementJSON, &placementPct)
		}
		c.PlacementPct = placementPct

		var dayparting models.DaypartingPolicy
		if len(daypartingJSON) > 0 {
			_ = json.Unmarshal(daypartingJSON, &dayparting)
		}
		c.Dayparting = dayparting

		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCampaign inserts or updates a campaign row.
func (p *Postgres) UpsertCampaign(ctx context.Context, c models.Campaign) error {
	placementJSON, _ := json.Marshal(c.PlacementPct)
	daypartingJSON, _ := json.Marshal(c.Dayparting)
	_, err := p.DB.ExecContext(ctx, `INSERT INTO campaigns (id, account_id, name, daily_budget, min_bid, max_bid, placement_pct, dayparting, performance_group_id, enabled, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO UPDATE SET daily_budget=$4, min_bid=$5, max_bid=$6, placement_pct=$7, dayparting=$8, performance_group_id=$9, enabled=$10, updated_at=$12`,
		c.ID, c.AccountID, c.Name, c.DailyBudget.String(), c.MinBid.String(), c.MaxBid.String(), placementJSON, daypartingJSON, nullableString(c.PerformanceGroupID), c.Enabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// ListAccountIDs returns every distinct account that owns at least one
// campaign, used at boot to seed the in-memory store one account at a time.
func (p *Postgres) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT DISTINCT account_id FROM campaigns`)
	if err != nil {
		return nil, fmt.Errorf("query account ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LoadPerformanceGroups returns every performance group for an account.
func (p *Postgres) LoadPerformanceGroups(ctx context.Context, accountID string) ([]models.PerformanceGroup, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, account_id, name, goal, goal_target, created_at, updated_at FROM performance_groups WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query performance groups: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceGroup
	for rows.Next() {
		var g models.PerformanceGroup
		var goalTarget string
		if err := rows.Scan(&g.ID, &g.AccountID, &g.Name, &g.Goal, &goalTarget, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan performance group: %w", err)
		}
		g.GoalTarget, _ = decimal.NewFromString(goalTarget)
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertPerformanceGroup inserts or updates a performance group row.
func (p *Postgres) UpsertPerformanceGroup(ctx context.Context, g models.PerformanceGroup) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO performance_groups (id, account_id, name, goal, goal_target, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE SET name=$3, goal=$4, goal_target=$5, updated_at=$7`,
		g.ID, g.AccountID, g.Name, string(g.Goal), g.GoalTarget.String(), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert performance group: %w", err)
	}
	return nil
}

// QuerySnapshots implements dataplane.ReportStore against the
// performance_snapshots partitioned table.
func (p *Postgres) QuerySnapshots(ctx context.Context, accountID, targetID string, from, to time.Time) ([]models.PerformanceSnapshot, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT entity_kind, entity_id, account_id, day, bid, impressions, clicks, spend, sales, orders, source, event_time
        FROM performance_snapshots WHERE account_id=$1 AND entity_id=$2 AND day BETWEEN $3 AND $4 ORDER BY day`,
		accountID, targetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceSnapshot
	for rows.Next() {
		var s models.PerformanceSnapshot
		var bid, spend, sales string
		if err := rows.Scan(&s.EntityKind, &s.EntityID, &s.AccountID, &s.Day, &bid, &s.Impressions, &s.Clicks, &spend, &sales, &s.Orders, &s.Source, &s.EventTime); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Bid, _ = decimal.NewFromString(bid)
		s.Spend, _ = decimal.NewFromString(spend)
		s.Sales, _ = decimal.NewFromString(sales)
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertBidAdjustmentRecord appends one immutable history row (spec §3).
func (p *Postgres) InsertBidAdjustmentRecord(ctx context.Context, r models.BidAdjustmentRecord) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO bid_adjustment_history (id, target_id, account_id, previous_bid, new_bid, source, reason, expected_profit_delta, applied_by, applied_at, batch_id, is_rolled_back)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.TargetID, r.AccountID, r.PreviousBid.String(), r.NewBid.String(), r.Source, r.Reason, r.ExpectedProfitDelta.String(), r.AppliedBy, r.AppliedAt, nullableString(r.BatchID), r.IsRolledBack)
	if err != nil {
		return fmt.Errorf("insert bid adjustment record: %w", err)
	}
	return nil
}

// MarkBidAdjustmentRolledBack flips is_rolled_back on the originating
// history row once its rollback suggestion executes (spec §4.8: "the
// original record is marked isRolledBack = true").
func (p *Postgres) MarkBidAdjustmentRolledBack(ctx context.Context, id string) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE bid_adjustment_history SET is_rolled_back = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark bid adjustment rolled back: %w", err)
	}
	return nil
}

// LoadAlgorithmParams reads the single-row config, returning ok=false when
// unset (caller should fall back to models.DefaultAlgorithmParams()).
func (p *Postgres) LoadAlgorithmParams(ctx context.Context) (models.AlgorithmParams, bool, error) {
	var raw []byte
	err := p.DB.QueryRowContext(ctx, `SELECT params FROM algorithm_parameters WHERE id=1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.AlgorithmParams{}, false, nil
	}
	if err != nil {
		return models.AlgorithmParams{}, false, fmt.Errorf("load algorithm params: %w", err)
	}
	var params models.AlgorithmParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return models.AlgorithmParams{}, false, fmt.Errorf("unmarshal algorithm params: %w", err)
	}
	return params, true, nil
}

// SaveAlgorithmParams persists the single-row config.
func (p *Postgres) SaveAlgorithmParams(ctx context.Context, params models.AlgorithmParams) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal algorithm params: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO algorithm_parameters (id, params) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET params=$1`, raw)
	if err != nil {
		return fmt.Errorf("save algorithm params: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
