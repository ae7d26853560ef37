// Package service is the Go-native typed RPC surface of spec §6: one
// exported method per spec bullet, wiring together the curve fitter (C1),
// decision tree (C2), data plane (C3), proposal sources (C4), coordinator
// (C5), pacing controller (C6), batch machine (C7), and effect tracker
// (C8). Grounded on the teacher's internal/api/server.go Server
// dependency-aggregator shape (patrickwarner-openadserve), minus the HTTP
// handlers that struct wires up — there is no HTTP layer in this module.
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/bidops/internal/batch"
	"github.com/patrickwarner/bidops/internal/coordinator"
	"github.com/patrickwarner/bidops/internal/curvefit"
	"github.com/patrickwarner/bidops/internal/dataplane"
	"github.com/patrickwarner/bidops/internal/db"
	"github.com/patrickwarner/bidops/internal/decisiontree"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"github.com/patrickwarner/bidops/internal/ratelimit"
	"github.com/patrickwarner/bidops/internal/tracking"
)

// Service aggregates every component and owns the process-local state that
// has no relational-store counterpart yet (batches, adjustment history,
// rollback rules/suggestions, tracking records) behind a mutex, mirroring
// models.InMemoryStore's read-mostly shape for the aggregates that do.
type Service struct {
	Store      models.Store
	CurveFit   *curvefit.Engine
	Tree       map[decisiontree.PredictionTarget]*decisiontree.Tree
	Plane      *dataplane.DataPlane
	Checker    *dataplane.ConsistencyChecker
	Coord      *coordinator.Coordinator
	BatchMach  *batch.Machine
	Tracker    *tracking.Tracker
	Redis      *db.RedisStore
	Postgres   *db.Postgres
	Logger     *zap.Logger
	Metrics    observability.MetricsRegistry

	// RateLimit gates external-API call sites per (accountId, apiFamily),
	// nil meaning no limiting (spec §5). Proposal generation and every
	// scheduled sync task draw from it and suspend until refill rather
	// than short-circuiting on exhaustion.
	RateLimit *ratelimit.Registry

	mu           sync.Mutex
	batches      map[string]models.BatchOperation
	history      []models.BidAdjustmentRecord
	trackingRecs map[string]models.EffectTrackingRecord // keyed by AdjustmentRecordID
	rules        map[string]models.RollbackRule
	suggestions  map[string]models.RollbackSuggestion
}

// New returns a ready-to-use Service with empty process-local state.
func New(store models.Store, logger *zap.Logger, metrics observability.MetricsRegistry) *Service {
	return &Service{
		Store:        store,
		Tree:         make(map[decisiontree.PredictionTarget]*decisiontree.Tree),
		Logger:       logger,
		Metrics:      metrics,
		batches:      make(map[string]models.BatchOperation),
		trackingRecs: make(map[string]models.EffectTrackingRecord),
		rules:        make(map[string]models.RollbackRule),
		suggestions:  make(map[string]models.RollbackSuggestion),
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}
