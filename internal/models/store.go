package models

import (
	"sync"
	"sync/atomic"

	"github.com/patrickwarner/bidops/internal/apierr"
)

// Store is the read path for the process-wide, read-mostly aggregates:
// targets, campaigns, performance groups, market-curve models, rollback
// rules, and algorithm parameters. It is the generalization of the
// teacher's AdDataStore interface (models/ad_data_store.go) to this
// domain's entities. InMemoryStore serializes all writes, for every
// account, on one process-wide mutex; reads never block on it.
type Store interface {
	GetTarget(id string) (Target, error)
	ListTargetsByCampaign(campaignID string) []Target
	ListTargetsByAccount(accountID string) []Target
	SetTarget(t Target)

	GetCampaign(id string) (Campaign, error)
	ListCampaignsByAccount(accountID string) []Campaign
	ListCampaignsByPerformanceGroup(groupID string) []Campaign
	SetCampaign(c Campaign)

	GetPerformanceGroup(id string) (PerformanceGroup, error)
	SetPerformanceGroup(g PerformanceGroup)

	GetCurveModel(targetID string) (MarketCurveModel, error)
	SetCurveModel(m MarketCurveModel) // always bumps Version, never mutates in place

	ListRollbackRules(accountID string) []RollbackRule
	SetRollbackRule(r RollbackRule)

	AlgorithmParams() AlgorithmParams
	SetAlgorithmParams(p AlgorithmParams)

	// ReloadAll atomically replaces the targets/campaigns/groups snapshot,
	// mirroring the teacher's AdDataStore.ReloadAll bulk-refresh entry point.
	ReloadAll(targets []Target, campaigns []Campaign, groups []PerformanceGroup) error
}

// snapshot is the copy-on-write value swapped atomically on every write,
// exactly the teacher's dataSnapshot shape generalized to this domain.
type snapshot struct {
	targetsByID          map[string]Target
	targetsByCampaign    map[string][]string // campaignID -> target IDs
	targetsByAccount     map[string][]string

	campaignsByID      map[string]Campaign
	campaignsByAccount map[string][]string
	campaignsByGroup   map[string][]string

	groupsByID map[string]PerformanceGroup

	curveModelsByTarget map[string]MarketCurveModel

	rollbackRulesByAccount map[string][]RollbackRule

	params AlgorithmParams
}

func emptySnapshot() *snapshot {
	return &snapshot{
		targetsByID:            make(map[string]Target),
		targetsByCampaign:      make(map[string][]string),
		targetsByAccount:       make(map[string][]string),
		campaignsByID:          make(map[string]Campaign),
		campaignsByAccount:     make(map[string][]string),
		campaignsByGroup:       make(map[string][]string),
		groupsByID:             make(map[string]PerformanceGroup),
		curveModelsByTarget:    make(map[string]MarketCurveModel),
		rollbackRulesByAccount: make(map[string][]RollbackRule),
		params:                 DefaultAlgorithmParams(),
	}
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		targetsByID:            make(map[string]Target, len(s.targetsByID)),
		targetsByCampaign:      make(map[string][]string, len(s.targetsByCampaign)),
		targetsByAccount:       make(map[string][]string, len(s.targetsByAccount)),
		campaignsByID:          make(map[string]Campaign, len(s.campaignsByID)),
		campaignsByAccount:     make(map[string][]string, len(s.campaignsByAccount)),
		campaignsByGroup:       make(map[string][]string, len(s.campaignsByGroup)),
		groupsByID:             make(map[string]PerformanceGroup, len(s.groupsByID)),
		curveModelsByTarget:    make(map[string]MarketCurveModel, len(s.curveModelsByTarget)),
		rollbackRulesByAccount: make(map[string][]RollbackRule, len(s.rollbackRulesByAccount)),
		params:                 s.params,
	}
	for k, v := range s.targetsByID {
		out.targetsByID[k] = v
	}
	for k, v := range s.targetsByCampaign {
		out.targetsByCampaign[k] = append([]string(nil), v...)
	}
	for k, v := range s.targetsByAccount {
		out.targetsByAccount[k] = append([]string(nil), v...)
	}
	for k, v := range s.campaignsByID {
		out.campaignsByID[k] = v
	}
	for k, v := range s.campaignsByAccount {
		out.campaignsByAccount[k] = append([]string(nil), v...)
	}
	for k, v := range s.campaignsByGroup {
		out.campaignsByGroup[k] = append([]string(nil), v...)
	}
	for k, v := range s.groupsByID {
		out.groupsByID[k] = v
	}
	for k, v := range s.curveModelsByTarget {
		out.curveModelsByTarget[k] = v
	}
	for k, v := range s.rollbackRulesByAccount {
		out.rollbackRulesByAccount[k] = append([]RollbackRule(nil), v...)
	}
	return out
}

// InMemoryStore is the copy-on-write implementation of Store, grounded on
// the teacher's InMemoryAdDataStore (models/ad_data_store.go). Reads load
// the current snapshot pointer without locking; writes take writeMu,
// clone the snapshot, mutate the clone, and swap the pointer.
type InMemoryStore struct {
	data    atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// NewInMemoryStore returns a Store with an empty, default-params snapshot.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	s.data.Store(emptySnapshot())
	return s
}

func (s *InMemoryStore) GetTarget(id string) (Target, error) {
	snap := s.data.Load()
	t, ok := snap.targetsByID[id]
	if !ok {
		return Target{}, apierr.NotFound("target " + id + " not found")
	}
	return t, nil
}

func (s *InMemoryStore) ListTargetsByCampaign(campaignID string) []Target {
	snap := s.data.Load()
	ids := snap.targetsByCampaign[campaignID]
	out := make([]Target, 0, len(ids))
	for _, id := range ids {
		if t, ok := snap.targetsByID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *InMemoryStore) ListTargetsByAccount(accountID string) []Target {
	snap := s.data.Load()
	ids := snap.targetsByAccount[accountID]
	out := make([]Target, 0, len(ids))
	for _, id := range ids {
		if t, ok := snap.targetsByID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *InMemoryStore) SetTarget(t Target) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	if _, existed := next.targetsByID[t.ID]; !existed {
		next.targetsByCampaign[t.CampaignID] = append(next.targetsByCampaign[t.CampaignID], t.ID)
		next.targetsByAccount[t.AccountID] = append(next.targetsByAccount[t.AccountID], t.ID)
	}
	next.targetsByID[t.ID] = t
	s.data.Store(next)
}

func (s *InMemoryStore) GetCampaign(id string) (Campaign, error) {
	snap := s.data.Load()
	c, ok := snap.campaignsByID[id]
	if !ok {
		return Campaign{}, apierr.NotFound("campaign " + id + " not found")
	}
	return c, nil
}

func (s *InMemoryStore) ListCampaignsByAccount(accountID string) []Campaign {
	snap := s.data.Load()
	ids := snap.campaignsByAccount[accountID]
	out := make([]Campaign, 0, len(ids))
	for _, id := range ids {
		if c, ok := snap.campaignsByID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *InMemoryStore) ListCampaignsByPerformanceGroup(groupID string) []Campaign {
	snap := s.data.Load()
	ids := snap.campaignsByGroup[groupID]
	out := make([]Campaign, 0, len(ids))
	for _, id := range ids {
		if c, ok := snap.campaignsByID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *InMemoryStore) SetCampaign(c Campaign) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	if _, existed := next.campaignsByID[c.ID]; !existed {
		next.campaignsByAccount[c.AccountID] = append(next.campaignsByAccount[c.AccountID], c.ID)
		if c.PerformanceGroupID != "" {
			next.campaignsByGroup[c.PerformanceGroupID] = append(next.campaignsByGroup[c.PerformanceGroupID], c.ID)
		}
	}
	next.campaignsByID[c.ID] = c
	s.data.Store(next)
}

func (s *InMemoryStore) GetPerformanceGroup(id string) (PerformanceGroup, error) {
	snap := s.data.Load()
	g, ok := snap.groupsByID[id]
	if !ok {
		return PerformanceGroup{}, apierr.NotFound("performance group " + id + " not found")
	}
	return g, nil
}

func (s *InMemoryStore) SetPerformanceGroup(g PerformanceGroup) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	next.groupsByID[g.ID] = g
	s.data.Store(next)
}

func (s *InMemoryStore) GetCurveModel(targetID string) (MarketCurveModel, error) {
	snap := s.data.Load()
	m, ok := snap.curveModelsByTarget[targetID]
	if !ok {
		return MarketCurveModel{}, apierr.NotFound("curve model for " + targetID + " not found")
	}
	return m, nil
}

// SetCurveModel always bumps Version relative to the superseded model,
// per spec §3 ("never mutated in place") and the C1 supplement in
// SPEC_FULL.md.
func (s *InMemoryStore) SetCurveModel(m MarketCurveModel) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	if prev, ok := next.curveModelsByTarget[m.TargetID]; ok {
		m.Version = prev.Version + 1
	} else if m.Version == 0 {
		m.Version = 1
	}
	next.curveModelsByTarget[m.TargetID] = m
	s.data.Store(next)
}

func (s *InMemoryStore) ListRollbackRules(accountID string) []RollbackRule {
	snap := s.data.Load()
	return append([]RollbackRule(nil), snap.rollbackRulesByAccount[accountID]...)
}

func (s *InMemoryStore) SetRollbackRule(r RollbackRule) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	rules := next.rollbackRulesByAccount[r.AccountID]
	replaced := false
	for i, existing := range rules {
		if existing.ID == r.ID {
			rules[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		rules = append(rules, r)
	}
	next.rollbackRulesByAccount[r.AccountID] = rules
	s.data.Store(next)
}

func (s *InMemoryStore) AlgorithmParams() AlgorithmParams {
	return s.data.Load().params
}

func (s *InMemoryStore) SetAlgorithmParams(p AlgorithmParams) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.data.Load().clone()
	next.params = p
	s.data.Store(next)
}

func (s *InMemoryStore) ReloadAll(targets []Target, campaigns []Campaign, groups []PerformanceGroup) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	prev := s.data.Load()
	next := emptySnapshot()
	next.params = prev.params
	next.curveModelsByTarget = prev.curveModelsByTarget
	next.rollbackRulesByAccount = prev.rollbackRulesByAccount

	for _, c := range campaigns {
		next.campaignsByID[c.ID] = c
		next.campaignsByAccount[c.AccountID] = append(next.campaignsByAccount[c.AccountID], c.ID)
		if c.PerformanceGroupID != "" {
			next.campaignsByGroup[c.PerformanceGroupID] = append(next.campaignsByGroup[c.PerformanceGroupID], c.ID)
		}
	}
	for _, g := range groups {
		next.groupsByID[g.ID] = g
	}
	for _, t := range targets {
		next.targetsByID[t.ID] = t
		next.targetsByCampaign[t.CampaignID] = append(next.targetsByCampaign[t.CampaignID], t.ID)
		next.targetsByAccount[t.AccountID] = append(next.targetsByAccount[t.AccountID], t.ID)
	}

	s.data.Store(next)
	return nil
}
