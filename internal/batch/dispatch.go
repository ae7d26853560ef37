// Package batch implements the Batch Operation Machine (C7): a state
// machine (pending -> approved -> executing -> completed|failed, with
// cancel and rollback) plus a per-operation-type dispatcher. Grounded on
// spec §4.7; the continue-on-failure execution loop is grounded on the
// teacher's per-line-item apply loop in internal/logic/pacing.go
// (patrickwarner-openadserve), generalized from ad pacing to batch items.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/shopspring/decimal"
)

// NegativeKeywordStore tracks negative-keyword exclusions at the campaign
// or ad-group scope. It has no analogue in models.Store because the spec
// scopes it out of the relational data model (spec §1: "no SQL
// schema/migrations"); this is a minimal in-memory ledger sufficient for
// C7 to add/remove entries and produce a rollback snapshot.
type NegativeKeywordStore struct {
	mu      sync.Mutex
	entries map[string]map[string]bool // scopeID -> "matchType|text" -> present
}

// NewNegativeKeywordStore returns an empty ledger.
func NewNegativeKeywordStore() *NegativeKeywordStore {
	return &NegativeKeywordStore{entries: make(map[string]map[string]bool)}
}

func negKey(matchType, text string) string { return matchType + "|" + text }

// Add records a negative keyword at scopeID, returning whether it was
// already present (idempotent no-op).
func (n *NegativeKeywordStore) Add(scopeID, matchType, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.entries[scopeID] == nil {
		n.entries[scopeID] = make(map[string]bool)
	}
	existed := n.entries[scopeID][negKey(matchType, text)]
	n.entries[scopeID][negKey(matchType, text)] = true
	return existed
}

// Remove deletes a negative keyword at scopeID.
func (n *NegativeKeywordStore) Remove(scopeID, matchType, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries[scopeID], negKey(matchType, text))
}

// Dispatcher executes one BatchOperationItem against the live data model
// and returns the snapshot needed to reverse it.
type Dispatcher struct {
	Store      models.Store
	Negatives  *NegativeKeywordStore
}

// Execute runs a single item according to its owning operation type and
// returns the rollback snapshot to attach to the item.
func (d *Dispatcher) Execute(ctx context.Context, operationType models.BatchOperationType, item models.BatchOperationItem) (map[string]any, error) {
	switch operationType {
	case models.OperationNegativeKeyword:
		return d.applyNegativeKeyword(item)
	case models.OperationBidAdjustment:
		return d.applyBidAdjustment(item)
	case models.OperationKeywordMigration:
		return d.applyKeywordMigration(item)
	case models.OperationCampaignStatus:
		return d.applyCampaignStatus(item)
	default:
		return nil, apierr.Validation(fmt.Sprintf("unknown operation type %q", operationType))
	}
}

// Rollback reverses a previously-executed item using its rollback snapshot.
func (d *Dispatcher) Rollback(ctx context.Context, operationType models.BatchOperationType, item models.BatchOperationItem) error {
	switch operationType {
	case models.OperationNegativeKeyword:
		return d.rollbackNegativeKeyword(item)
	case models.OperationBidAdjustment:
		return d.rollbackBidAdjustment(item)
	case models.OperationKeywordMigration:
		return d.rollbackKeywordMigration(item)
	case models.OperationCampaignStatus:
		return d.rollbackCampaignStatus(item)
	default:
		return apierr.Validation(fmt.Sprintf("unknown operation type %q", operationType))
	}
}

func (d *Dispatcher) applyNegativeKeyword(item models.BatchOperationItem) (map[string]any, error) {
	text, _ := item.Payload["text"].(string)
	matchType, _ := item.Payload["match_type"].(string)
	d.Negatives.Add(item.EntityID, matchType, text)
	return map[string]any{"action": "remove_negative", "scope_id": item.EntityID, "text": text, "match_type": matchType}, nil
}

func (d *Dispatcher) rollbackNegativeKeyword(item models.BatchOperationItem) error {
	text, _ := item.RollbackSnapshot["text"].(string)
	matchType, _ := item.RollbackSnapshot["match_type"].(string)
	scopeID, _ := item.RollbackSnapshot["scope_id"].(string)
	d.Negatives.Remove(scopeID, matchType, text)
	return nil
}

func (d *Dispatcher) applyBidAdjustment(item models.BatchOperationItem) (map[string]any, error) {
	target, err := d.Store.GetTarget(item.EntityID)
	if err != nil {
		return nil, err
	}
	newBid, ok := item.Payload["new_bid"].(decimal.Decimal)
	if !ok {
		return nil, apierr.Validation("bid_adjustment item missing new_bid")
	}
	previous := target.Bid
	target.Bid = newBid
	d.Store.SetTarget(target)
	return map[string]any{"action": "restore_bid", "target_id": target.ID, "previous_bid": previous}, nil
}

func (d *Dispatcher) rollbackBidAdjustment(item models.BatchOperationItem) error {
	target, err := d.Store.GetTarget(item.EntityID)
	if err != nil {
		return err
	}
	previous, ok := item.RollbackSnapshot["previous_bid"].(decimal.Decimal)
	if !ok {
		return apierr.Internal("missing previous_bid in rollback snapshot", nil)
	}
	target.Bid = previous
	d.Store.SetTarget(target)
	return nil
}

func (d *Dispatcher) applyKeywordMigration(item models.BatchOperationItem) (map[string]any, error) {
	source, err := d.Store.GetTarget(item.EntityID)
	if err != nil {
		return nil, err
	}
	destCampaignID, _ := item.Payload["dest_campaign_id"].(string)
	destText, _ := item.Payload["dest_text"].(string)
	destMatchRaw, _ := item.Payload["dest_match_type"].(string)
	destID, _ := item.Payload["dest_target_id"].(string)
	if destID == "" {
		destID = item.EntityID + "-migrated"
	}

	dest := source
	dest.ID = destID
	dest.CampaignID = destCampaignID
	dest.Text = destText
	dest.MatchType = models.MatchType(destMatchRaw)
	d.Store.SetTarget(dest)

	d.Negatives.Add(source.CampaignID, string(source.MatchType), source.Text)

	return map[string]any{
		"action":            "remove_migrated_target",
		"dest_target_id":    destID,
		"source_campaign_id": source.CampaignID,
		"source_match_type": string(source.MatchType),
		"source_text":       source.Text,
	}, nil
}

func (d *Dispatcher) rollbackKeywordMigration(item models.BatchOperationItem) error {
	destID, _ := item.RollbackSnapshot["dest_target_id"].(string)
	if destID != "" {
		if dest, err := d.Store.GetTarget(destID); err == nil {
			dest.Status = models.TargetStatusArchived
			d.Store.SetTarget(dest)
		}
	}
	campaignID, _ := item.RollbackSnapshot["source_campaign_id"].(string)
	matchType, _ := item.RollbackSnapshot["source_match_type"].(string)
	text, _ := item.RollbackSnapshot["source_text"].(string)
	d.Negatives.Remove(campaignID, matchType, text)
	return nil
}

func (d *Dispatcher) applyCampaignStatus(item models.BatchOperationItem) (map[string]any, error) {
	campaign, err := d.Store.GetCampaign(item.EntityID)
	if err != nil {
		return nil, err
	}
	enabled, _ := item.Payload["enabled"].(bool)
	previous := campaign.Enabled
	campaign.Enabled = enabled
	d.Store.SetCampaign(campaign)
	return map[string]any{"action": "restore_status", "campaign_id": campaign.ID, "previous_enabled": previous}, nil
}

func (d *Dispatcher) rollbackCampaignStatus(item models.BatchOperationItem) error {
	campaign, err := d.Store.GetCampaign(item.EntityID)
	if err != nil {
		return err
	}
	previous, ok := item.RollbackSnapshot["previous_enabled"].(bool)
	if !ok {
		return apierr.Internal("missing previous_enabled in rollback snapshot", nil)
	}
	campaign.Enabled = previous
	d.Store.SetCampaign(campaign)
	return nil
}
