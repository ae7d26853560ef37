package service

import (
	"context"

	"github.com/patrickwarner/bidops/internal/apierr"
	"github.com/patrickwarner/bidops/internal/batch"
	"github.com/patrickwarner/bidops/internal/models"
	"github.com/patrickwarner/bidops/internal/tracking"
)

// GetRules returns every rollback rule configured for an account (spec §6).
func (s *Service) GetRules(ctx context.Context, accountID string) []models.RollbackRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RollbackRule
	for _, r := range s.rules {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out
}

// CreateRule adds a new rollback rule at version 1 (spec §6, spec §3:
// "changes never retro-evaluate past records").
func (s *Service) CreateRule(ctx context.Context, rule models.RollbackRule) (models.RollbackRule, error) {
	if rule.AccountID == "" {
		return models.RollbackRule{}, apierr.Validation("rollback rule requires an account id")
	}
	rule.ID = newID("rule")
	rule.Version = 1
	rule.CreatedAt = s.now()
	rule.UpdatedAt = rule.CreatedAt

	s.mu.Lock()
	s.rules[rule.ID] = rule
	s.mu.Unlock()
	return rule, nil
}

// UpdateRule replaces a rule's conditions/actions and bumps its version.
// The new version only governs adjustments tracked from this point forward
// (spec §3); already-raised suggestions are untouched.
func (s *Service) UpdateRule(ctx context.Context, ruleID string, conditions models.RollbackRuleConditions, actions models.RollbackRuleActions) (models.RollbackRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return models.RollbackRule{}, apierr.NotFound("rollback rule " + ruleID + " not found")
	}
	rule.Conditions = conditions
	rule.Actions = actions
	rule.Version++
	rule.UpdatedAt = s.now()
	s.rules[ruleID] = rule
	return rule, nil
}

// EvaluationResult summarizes one runEvaluation pass.
type EvaluationResult struct {
	RecordsEvaluated  int
	SuggestionsRaised int
}

// RunEvaluation re-evaluates every tracked effect against every enabled
// rule for accountID, or every account when accountID is empty (spec §6:
// "runEvaluation(accountId?)").
func (s *Service) RunEvaluation(ctx context.Context, accountID string) EvaluationResult {
	var result EvaluationResult
	for _, adjustment := range s.snapshotHistory() {
		if accountID != "" && adjustment.AccountID != accountID {
			continue
		}
		rec, ok := s.lookupTrackingRecord(adjustment.ID)
		if !ok {
			continue
		}
		result.RecordsEvaluated++
		result.SuggestionsRaised += s.evaluateRollbackRulesFor(rec, adjustment, s.sampleCountFor(adjustment))
	}
	return result
}

func (s *Service) lookupTrackingRecord(adjustmentID string) (models.EffectTrackingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trackingRecs[adjustmentID]
	return rec, ok
}

// sampleCountFor approximates the observation count backing a tracked
// effect from whichever horizon has been measured so far, used to gate
// RollbackRuleConditions.MinSampleCount.
func (s *Service) sampleCountFor(adjustment models.BidAdjustmentRecord) int {
	rec, ok := s.lookupTrackingRecord(adjustment.ID)
	if !ok {
		return 0
	}
	count := 0
	for _, h := range []models.TrackingHorizon{models.Horizon7Day, models.Horizon14Day, models.Horizon30Day} {
		if rec.ProfitForHorizon(h) != nil {
			count++
		}
	}
	return count
}

// evaluateRollbackRulesFor checks every enabled rule for the adjustment's
// account against the record, raising a suggestion per match that doesn't
// already have one pending for the same adjustment+rule pair.
func (s *Service) evaluateRollbackRulesFor(rec models.EffectTrackingRecord, adjustment models.BidAdjustmentRecord, sampleCount int) int {
	s.mu.Lock()
	var rules []models.RollbackRule
	for _, r := range s.rules {
		if r.AccountID == adjustment.AccountID && r.Enabled {
			rules = append(rules, r)
		}
	}
	existing := make(map[string]bool)
	for _, sug := range s.suggestions {
		if sug.AdjustmentRecordID == adjustment.ID {
			existing[sug.RuleID] = true
		}
	}
	s.mu.Unlock()

	raised := 0
	for _, rule := range rules {
		if existing[rule.ID] {
			continue
		}
		suggestion, matched := tracking.Evaluate(rule, rec, sampleCount, adjustment)
		if !matched {
			continue
		}
		suggestion.ID = newID("rollback")
		s.mu.Lock()
		s.suggestions[suggestion.ID] = suggestion
		s.mu.Unlock()
		if s.Metrics != nil {
			s.Metrics.IncrementRollbackSuggestions(rule.ID)
		}
		raised++
	}
	return raised
}

// ReviewSuggestion approves or rejects a pending rollback suggestion (spec
// §6: "reviewSuggestion(id, approve|reject)").
func (s *Service) ReviewSuggestion(ctx context.Context, suggestionID string, approve bool) (models.RollbackSuggestion, error) {
	s.mu.Lock()
	sug, ok := s.suggestions[suggestionID]
	s.mu.Unlock()
	if !ok {
		return models.RollbackSuggestion{}, apierr.NotFound("rollback suggestion " + suggestionID + " not found")
	}

	reviewed, err := tracking.Review(sug, approve)
	if err != nil {
		return models.RollbackSuggestion{}, err
	}

	s.mu.Lock()
	s.suggestions[reviewed.ID] = reviewed
	s.mu.Unlock()
	return reviewed, nil
}

// ExecuteSuggestion builds and immediately executes the rollback batch
// restoring the adjustment's previous bid, then flags the suggestion and
// originating adjustment as resolved (spec §6: "executeSuggestion(id)",
// spec §4.8).
func (s *Service) ExecuteSuggestion(ctx context.Context, suggestionID string) (models.BatchOperation, error) {
	s.mu.Lock()
	sug, ok := s.suggestions[suggestionID]
	s.mu.Unlock()
	if !ok {
		return models.BatchOperation{}, apierr.NotFound("rollback suggestion " + suggestionID + " not found")
	}

	adjustment, err := s.findAdjustment(sug.AdjustmentRecordID)
	if err != nil {
		return models.BatchOperation{}, err
	}

	batchID := newID("batch")
	op := tracking.BuildRollbackBatch(batchID, sug, adjustment)
	for i := range op.Items {
		op.Items[i].ID = newID("item")
		op.Items[i].BatchID = op.ID
	}

	params := s.Store.AlgorithmParams()
	created, err := batch.Create(op, params, 1.0)
	if err != nil {
		return models.BatchOperation{}, err
	}
	created.Status = models.BatchApproved
	created.ApprovedAt = ptrTime(s.now())
	s.putBatch(created)

	executed := s.BatchMach.Execute(ctx, created)
	s.putBatch(executed)

	executedSuggestion, err := tracking.Execute(sug, executed.ID)
	if err != nil {
		return executed, err
	}
	s.mu.Lock()
	s.suggestions[executedSuggestion.ID] = executedSuggestion
	s.mu.Unlock()

	if err := s.markAdjustmentRolledBack(ctx, adjustment.ID); err != nil {
		return executed, err
	}

	return executed, nil
}

func (s *Service) findAdjustment(id string) (models.BidAdjustmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.history {
		if r.ID == id {
			return r, nil
		}
	}
	return models.BidAdjustmentRecord{}, apierr.NotFound("bid adjustment record " + id + " not found")
}

// markAdjustmentRolledBack flips IsRolledBack on the originating history
// row in place (spec §4.8), in both the in-memory history and Postgres.
func (s *Service) markAdjustmentRolledBack(ctx context.Context, adjustmentID string) error {
	s.mu.Lock()
	found := false
	for i := range s.history {
		if s.history[i].ID == adjustmentID {
			s.history[i].IsRolledBack = true
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return apierr.NotFound("bid adjustment record " + adjustmentID + " not found")
	}
	if s.Postgres != nil {
		return s.Postgres.MarkBidAdjustmentRolledBack(ctx, adjustmentID)
	}
	return nil
}
