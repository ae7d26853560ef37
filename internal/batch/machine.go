package batch

import (
	"context"
	"time"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/observability"
	"go.uber.org/zap"
)

// Machine drives the batch operation state machine for one BatchOperation
// at a time; callers hold the BatchOperation in whatever store they use
// (internal/service wires this to persistence) and pass it by pointer.
type Machine struct {
	Dispatcher *Dispatcher
	Metrics    observability.MetricsRegistry
	Logger     *zap.Logger

	// RollbackWindow bounds how long after CompletedAt a rollback remains
	// legal (spec §4.7: "within a configurable window").
	RollbackWindow time.Duration

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// Create validates items and returns a new BatchOperation in BatchPending
// state, or a Validation error if any item fails creation-time checks
// (spec §4.7: "validation failures abort batch creation atomically").
func Create(op models.BatchOperation, params models.AlgorithmParams, maxAdjustmentPct float64) (models.BatchOperation, error) {
	if err := ValidateItems(op.OperationType, op.Items, params, maxAdjustmentPct); err != nil {
		return models.BatchOperation{}, err
	}
	for i := range op.Items {
		op.Items[i].Status = models.ItemPending
	}
	op.Status = models.BatchPending
	return op, nil
}

// Approve transitions pending -> approved.
func Approve(op models.BatchOperation, approvedBy string) (models.BatchOperation, error) {
	if op.Status != models.BatchPending {
		return op, apierr.Conflict("batch must be pending to approve, got " + string(op.Status))
	}
	now := time.Now().UTC()
	op.Status = models.BatchApproved
	op.ApprovedAt = &now
	op.Executor = approvedBy
	return op, nil
}

// Cancel transitions pending or approved -> cancelled (spec §4.7: "cancel
// only from pending/approved").
func Cancel(op models.BatchOperation) (models.BatchOperation, error) {
	if op.Status != models.BatchPending && op.Status != models.BatchApproved {
		return op, apierr.Conflict("batch must be pending or approved to cancel, got " + string(op.Status))
	}
	op.Status = models.BatchCancelled
	return op, nil
}

// Execute runs every item in stored order, continuing past per-item
// failures (spec §4.7: "no batch-level transaction"). ctx cancellation is
// checked between items (spec §5); already-executed items are left as-is
// on cancellation and the batch is marked cancelled.
func (m *Machine) Execute(ctx context.Context, op models.BatchOperation) models.BatchOperation {
	if op.Status != models.BatchApproved {
		return op
	}
	_, span := observability.StartBatchExecSpan(ctx, op.ID, len(op.Items))
	defer span.End()
	now := m.now()
	op.Status = models.BatchExecuting
	op.ExecutedAt = &now

	for i := range op.Items {
		select {
		case <-ctx.Done():
			op.Status = models.BatchCancelled
			return op
		default:
		}

		item := &op.Items[i]
		snapshot, err := m.Dispatcher.Execute(ctx, op.OperationType, *item)
		executedAt := m.now()
		item.ExecutedAt = &executedAt
		if err != nil {
			item.Status = models.ItemFailed
			item.ErrorMessage = err.Error()
			op.FailedItems++
			if m.Metrics != nil {
				m.Metrics.IncrementBatchItemOutcome("failed")
			}
			continue
		}
		item.Status = models.ItemSuccess
		item.RollbackSnapshot = snapshot
		op.SuccessItems++
		if m.Metrics != nil {
			m.Metrics.IncrementBatchItemOutcome("success")
		}
	}

	completedAt := m.now()
	op.CompletedAt = &completedAt
	if op.SuccessItems == 0 && op.FailedItems > 0 {
		op.Status = models.BatchFailed
	} else {
		op.Status = models.BatchCompleted
	}

	if m.Metrics != nil {
		m.Metrics.IncrementBatchOutcome(string(op.OperationType), string(op.Status))
	}
	if m.Logger != nil {
		m.Logger.Info("batch executed",
			zap.String("batch_id", op.ID),
			zap.String("status", string(op.Status)),
			zap.Int("success_items", op.SuccessItems),
			zap.Int("failed_items", op.FailedItems))
	}

	return op
}

// Rollback reverses every successfully-executed item of a completed batch,
// within the configured rollback window (spec §4.7).
func (m *Machine) Rollback(ctx context.Context, op models.BatchOperation) (models.BatchOperation, error) {
	if !op.CanRollback() {
		return op, apierr.Conflict("batch is not in a rollback-eligible state")
	}
	if op.CompletedAt != nil && m.RollbackWindow > 0 && m.now().Sub(*op.CompletedAt) > m.RollbackWindow {
		return op, apierr.Conflict("rollback window has expired")
	}

	for i := range op.Items {
		item := &op.Items[i]
		if item.Status != models.ItemSuccess {
			continue
		}
		if err := m.Dispatcher.Rollback(ctx, op.OperationType, *item); err != nil {
			if m.Logger != nil {
				m.Logger.Warn("batch item rollback failed", zap.String("item_id", item.ID), zap.Error(err))
			}
			continue
		}
		item.Status = models.ItemRolledBack
	}
	op.Status = models.BatchRolledBack
	if m.Metrics != nil {
		m.Metrics.IncrementBatchOutcome(string(op.OperationType), "rolled_back")
	}
	return op, nil
}
