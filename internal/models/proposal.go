package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalSource enumerates the independent analyzers that emit BidProposals.
type ProposalSource string

const (
	SourceBaseAlgo    ProposalSource = "base_algo"
	SourceDayparting  ProposalSource = "dayparting"
	SourcePlacement   ProposalSource = "placement"
	SourceInventory   ProposalSource = "inventory"
	SourceOrganicRank ProposalSource = "organic_rank"
)

// BidProposal is emitted by a proposal source; it is transient and consumed
// by the coordinator within one cycle. It never writes a bid directly.
type BidProposal struct {
	TargetID            string
	TargetType           TargetType
	Source               ProposalSource
	SuggestedMultiplier  float64         // e.g. 1.2 = +20%; zero means "not set"
	AbsoluteBid          *decimal.Decimal // set only when the source proposes an absolute bid
	Confidence           float64          // [0,1]
	Reason               string
	Timestamp            time.Time
}

// IsAbsolute reports whether this proposal carries an absolute bid rather
// than a multiplicative suggestion.
func (p BidProposal) IsAbsolute() bool {
	return p.AbsoluteBid != nil
}

// CoordinationResult is the output of one coordinator invocation (spec §3,
// §4.5). It is written to the audit log and referenced by any batch item
// produced from it.
type CoordinationResult struct {
	TargetID              string
	OriginalBid           decimal.Decimal
	FinalBid              decimal.Decimal
	TheoreticalMaxCPC     decimal.Decimal
	EffectiveMultiplier   float64
	Proposals             []BidProposal
	CircuitBreakerTripped bool
	Reason                string
	Warnings              []string
	ComputedAt            time.Time
}
