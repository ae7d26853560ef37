package models

import "time"

// BatchOperationType enumerates the kinds of batch that C7 can execute.
type BatchOperationType string

const (
	OperationNegativeKeyword  BatchOperationType = "negative_keyword"
	OperationBidAdjustment    BatchOperationType = "bid_adjustment"
	OperationKeywordMigration BatchOperationType = "keyword_migration"
	OperationCampaignStatus   BatchOperationType = "campaign_status"
)

// BatchStatus enumerates the batch operation state machine's states
// (spec §4.7).
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchApproved   BatchStatus = "approved"
	BatchExecuting  BatchStatus = "executing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
	BatchRolledBack BatchStatus = "rolled_back"
)

// BatchItemStatus enumerates the per-item outcome within a batch.
type BatchItemStatus string

const (
	ItemPending    BatchItemStatus = "pending"
	ItemSuccess    BatchItemStatus = "success"
	ItemFailed     BatchItemStatus = "failed"
	ItemSkipped    BatchItemStatus = "skipped"
	ItemRolledBack BatchItemStatus = "rolled_back"
)

// SourceType records what originated a batch: a human operator or a
// scheduled task.
type SourceType string

const (
	BatchSourceManual    SourceType = "manual"
	BatchSourceScheduled SourceType = "scheduled"
)

// BatchOperationItem is one atomic unit within a batch. RollbackSnapshot is
// an opaque blob sufficient to reverse the item; its shape is tagged by
// EntityType per spec §9 ("tagged-union payloads, one variant per type").
type BatchOperationItem struct {
	ID               string
	BatchID          string
	EntityType       string // "target" | "campaign" | "ad_group"
	EntityID         string
	Payload          map[string]any
	RollbackSnapshot map[string]any
	Status           BatchItemStatus
	ErrorMessage     string
	ExecutedAt       *time.Time
}

// BatchOperation aggregates items and owns status, counts, executor, and
// timestamps (spec §3).
type BatchOperation struct {
	ID               string
	Owner            string
	AccountID        string
	OperationType    BatchOperationType
	Name             string
	Description      string
	RequiresApproval bool
	SourceType       SourceType
	SourceTaskID     string

	Status       BatchStatus
	Items        []BatchOperationItem
	SuccessItems int
	FailedItems  int
	SkippedItems int

	Executor    string
	CreatedAt   time.Time
	ApprovedAt  *time.Time
	ExecutedAt  *time.Time
	CompletedAt *time.Time
}

// TotalItems returns len(Items).
func (b BatchOperation) TotalItems() int {
	return len(b.Items)
}

// CanRollback reports whether the batch is completed and every successful
// item carries a non-empty rollback snapshot, a precondition for a rollback
// to be legal (spec §4.7). Items that did not succeed are not checked.
func (b BatchOperation) CanRollback() bool {
	if b.Status != BatchCompleted {
		return false
	}
	for _, item := range b.Items {
		if item.Status == ItemSuccess && len(item.RollbackSnapshot) == 0 {
			return false
		}
	}
	return true
}

// EstimateTime returns a rough wall-clock estimate for executing a batch of
// the given operation type and item count, exposed to the UI (spec §4.7).
// Grounded directly on the spec's "simple function of item count and
// operation type" description — no corpus analogue exists for this.
func EstimateTime(operationType BatchOperationType, itemCount int) time.Duration {
	perItem := map[BatchOperationType]time.Duration{
		OperationNegativeKeyword:  200 * time.Millisecond,
		OperationBidAdjustment:    150 * time.Millisecond,
		OperationKeywordMigration: 400 * time.Millisecond,
		OperationCampaignStatus:   100 * time.Millisecond,
	}
	d, ok := perItem[operationType]
	if !ok {
		d = 250 * time.Millisecond
	}
	return time.Duration(itemCount) * d
}
