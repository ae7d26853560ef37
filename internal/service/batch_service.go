package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/batch"
	"github.com/patrickwarner/bidops/internal/models"
)

// NegativeKeywordItem describes one negative-keyword addition within a
// createNegativeKeywordBatch call (spec §4.7).
type NegativeKeywordItem struct {
	ScopeID   string // campaign or ad group id
	ScopeType string // "campaign" | "ad_group"
	Text      string
	MatchType string
}

// CreateNegativeKeywordBatch stages a batch of negative-keyword additions
// (spec §6).
func (s *Service) CreateNegativeKeywordBatch(ctx context.Context, accountID, owner string, items []NegativeKeywordItem, requiresApproval bool) (models.BatchOperation, error) {
	opItems := make([]models.BatchOperationItem, 0, len(items))
	for _, it := range items {
		opItems = append(opItems, models.BatchOperationItem{
			ID:         newID("item"),
			EntityType: it.ScopeType,
			EntityID:   it.ScopeID,
			Payload: map[string]any{
				"text":       it.Text,
				"match_type": it.MatchType,
			},
		})
	}
	return s.createBatch(accountID, owner, models.OperationNegativeKeyword, opItems, requiresApproval)
}

// BidAdjustmentItem describes one target's bid change within a
// createBidAdjustmentBatch call (spec §4.7).
type BidAdjustmentItem struct {
	TargetID    string
	PreviousBid decimal.Decimal
	NewBid      decimal.Decimal
}

// CreateBidAdjustmentBatch stages a batch of per-target bid changes (spec §6).
func (s *Service) CreateBidAdjustmentBatch(ctx context.Context, accountID, owner string, items []BidAdjustmentItem, requiresApproval bool) (models.BatchOperation, error) {
	opItems := make([]models.BatchOperationItem, 0, len(items))
	for _, it := range items {
		opItems = append(opItems, models.BatchOperationItem{
			ID:         newID("item"),
			EntityType: "target",
			EntityID:   it.TargetID,
			Payload: map[string]any{
				"previous_bid": it.PreviousBid,
				"new_bid":      it.NewBid,
			},
		})
	}
	return s.createBatch(accountID, owner, models.OperationBidAdjustment, opItems, requiresApproval)
}

func (s *Service) createBatch(accountID, owner string, opType models.BatchOperationType, items []models.BatchOperationItem, requiresApproval bool) (models.BatchOperation, error) {
	op := models.BatchOperation{
		ID:               newID("batch"),
		Owner:            owner,
		AccountID:        accountID,
		OperationType:    opType,
		RequiresApproval: requiresApproval,
		SourceType:       models.BatchSourceManual,
		Items:            items,
		CreatedAt:        s.now(),
	}
	for i := range op.Items {
		op.Items[i].BatchID = op.ID
	}

	params := s.Store.AlgorithmParams()
	maxAdjustmentPct := 1.0 // 100% per spec §4.7 default
	created, err := batch.Create(op, params, maxAdjustmentPct)
	if err != nil {
		return models.BatchOperation{}, err
	}
	if !requiresApproval {
		created.Status = models.BatchApproved
		created.ApprovedAt = ptrTime(s.now())
	}

	s.mu.Lock()
	s.batches[created.ID] = created
	s.mu.Unlock()
	return created, nil
}

// Approve transitions a batch from pending to approved (spec §6).
func (s *Service) Approve(ctx context.Context, batchID, approvedBy string) (models.BatchOperation, error) {
	op, err := s.getBatch(batchID)
	if err != nil {
		return models.BatchOperation{}, err
	}
	approved, err := batch.Approve(op, approvedBy)
	if err != nil {
		return models.BatchOperation{}, err
	}
	s.putBatch(approved)
	return approved, nil
}

// Cancel transitions a batch to cancelled from pending or approved (spec §6).
func (s *Service) Cancel(ctx context.Context, batchID string) (models.BatchOperation, error) {
	op, err := s.getBatch(batchID)
	if err != nil {
		return models.BatchOperation{}, err
	}
	cancelled, err := batch.Cancel(op)
	if err != nil {
		return models.BatchOperation{}, err
	}
	s.putBatch(cancelled)
	return cancelled, nil
}

// Execute runs a batch's items to completion (continue-on-failure, spec §6).
func (s *Service) Execute(ctx context.Context, batchID string) (models.BatchOperation, error) {
	op, err := s.getBatch(batchID)
	if err != nil {
		return models.BatchOperation{}, err
	}
	executed := s.BatchMach.Execute(ctx, op)
	s.putBatch(executed)
	return executed, nil
}

// Rollback reverses a completed batch within the configured window (spec §6).
func (s *Service) Rollback(ctx context.Context, batchID string) (models.BatchOperation, error) {
	op, err := s.getBatch(batchID)
	if err != nil {
		return models.BatchOperation{}, err
	}
	rolledBack, err := s.BatchMach.Rollback(ctx, op)
	if err != nil {
		return models.BatchOperation{}, err
	}
	s.putBatch(rolledBack)
	return rolledBack, nil
}

// BatchFilters narrows List (spec §6: "list({filters})").
type BatchFilters struct {
	AccountID     string
	OperationType models.BatchOperationType // empty means any
	Status        models.BatchStatus        // empty means any
}

// List returns batches matching the given filters.
func (s *Service) List(ctx context.Context, filters BatchFilters) []models.BatchOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchOperation
	for _, op := range s.batches {
		if filters.AccountID != "" && op.AccountID != filters.AccountID {
			continue
		}
		if filters.OperationType != "" && op.OperationType != filters.OperationType {
			continue
		}
		if filters.Status != "" && op.Status != filters.Status {
			continue
		}
		out = append(out, op)
	}
	return out
}

// GetDetailedRecord returns a single batch with its items (spec §6).
func (s *Service) GetDetailedRecord(ctx context.Context, batchID string) (models.BatchOperation, error) {
	return s.getBatch(batchID)
}

func (s *Service) getBatch(id string) (models.BatchOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.batches[id]
	if !ok {
		return models.BatchOperation{}, apierr.NotFound("batch " + id + " not found")
	}
	return op, nil
}

func (s *Service) putBatch(op models.BatchOperation) {
	s.mu.Lock()
	s.batches[op.ID] = op
	s.mu.Unlock()
}

func ptrTime(t time.Time) *time.Time { return &t }
