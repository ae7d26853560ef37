package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	ServiceName string

	PostgresDSN   string
	ClickHouseDSN string
	RedisAddr     string

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64

	// Scheduler / worker pool
	SchedulerWorkers    int
	SchedulerQueueDepth int
	TaskTimeout         time.Duration

	// Bid coordinator (spec §4.5)
	MaxAllowedCPC            float64
	CPCWarningThreshold      float64
	MaxTotalMultiplier       float64
	CircuitBreakerMultiplier float64
	MinBid                   float64
	MaxBid                   float64
	ProfitMarginPct          float64
	ConversionValueMultiplier float64
	MaxDailyAdjustments      int
	CooldownPeriodHours      int
	MinConfidenceThreshold   float64
	MinDataPoints            int

	// Source weights default (spec §9 Open Question: tenant-configurable).
	// These bid-coordinator and weight fields are parsed from the
	// environment but are not copied into AlgorithmParams: the worker boots
	// from the persisted parameter row or models.DefaultAlgorithmParams().
	WeightBaseAlgo    float64
	WeightDayparting  float64
	WeightPlacement   float64
	WeightInventory   float64
	WeightOrganicRank float64

	// Intraday pacing controller (spec §4.6)
	PacingCriticalRatio     float64
	PacingOverspendingRatio float64
	PacingUnderspendingRatio float64
	PacingMinIntervalMinutes int

	// Rate limiting (per accountId/apiFamily pair)
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Effect tracking / auto-rollback (spec §4.8)
	TrackingHorizonsDays     []int
	TrackingRetentionDays    int
	TrackingCleanupInterval  time.Duration
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.ServiceName = getenv("SERVICE_NAME", "bidops")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 100)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 25)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.SchedulerWorkers = envInt("SCHEDULER_WORKERS", 8)
	cfg.SchedulerQueueDepth = envInt("SCHEDULER_QUEUE_DEPTH", 256)
	cfg.TaskTimeout = envDuration("TASK_TIMEOUT", 30*time.Second)

	cfg.MaxAllowedCPC = envFloat("MAX_ALLOWED_CPC", 5.0)
	cfg.CPCWarningThreshold = envFloat("CPC_WARNING_THRESHOLD", 3.0)
	cfg.MaxTotalMultiplier = envFloat("MAX_TOTAL_MULTIPLIER", 2.5)
	cfg.CircuitBreakerMultiplier = envFloat("CIRCUIT_BREAKER_MULTIPLIER", 1.5)
	cfg.MinBid = envFloat("MIN_BID", 0.02)
	cfg.MaxBid = envFloat("MAX_BID", 100.0)
	cfg.ProfitMarginPct = envFloat("PROFIT_MARGIN_PCT", 0.20)
	cfg.ConversionValueMultiplier = envFloat("CONVERSION_VALUE_MULTIPLIER", 1.0)
	cfg.MaxDailyAdjustments = envInt("MAX_DAILY_ADJUSTMENTS", 4)
	cfg.CooldownPeriodHours = envInt("COOLDOWN_PERIOD_HOURS", 6)
	cfg.MinConfidenceThreshold = envFloat("MIN_CONFIDENCE_THRESHOLD", 0.6)
	cfg.MinDataPoints = envInt("MIN_DATA_POINTS", 30)

	cfg.WeightBaseAlgo = envFloat("WEIGHT_BASE_ALGO", 1.0)
	cfg.WeightDayparting = envFloat("WEIGHT_DAYPARTING", 0.8)
	cfg.WeightPlacement = envFloat("WEIGHT_PLACEMENT", 0.7)
	cfg.WeightInventory = envFloat("WEIGHT_INVENTORY", 1.0)
	cfg.WeightOrganicRank = envFloat("WEIGHT_ORGANIC_RANK", 0.6)

	cfg.PacingCriticalRatio = envFloat("PACING_CRITICAL_RATIO", 2.0)
	cfg.PacingOverspendingRatio = envFloat("PACING_OVERSPENDING_RATIO", 1.5)
	cfg.PacingUnderspendingRatio = envFloat("PACING_UNDERSPENDING_RATIO", 0.5)
	cfg.PacingMinIntervalMinutes = envInt("PACING_MIN_INTERVAL_MINUTES", 15)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 100)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 10)

	cfg.TrackingHorizonsDays = []int{7, 14, 30}
	cfg.TrackingRetentionDays = envInt("TRACKING_RETENTION_DAYS", 90)
	cfg.TrackingCleanupInterval = envDuration("TRACKING_CLEANUP_INTERVAL", 10*time.Minute)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
