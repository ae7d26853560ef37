package coordinator

import "sync"

// stripes is the number of lock stripes; a small fixed count keeps memory
// bounded while still spreading contention across many (accountId,
// targetId) pairs. Grounded on spec §5 ("the coordinator acquires an
// exclusive lock on (accountId, targetId) before writing"); the striping
// itself is the common Go sync idiom, not lifted from one corpus file.
const stripes = 256

// LockTable grants one exclusive lock per (accountId, targetId) pair,
// implemented as a fixed set of mutex stripes keyed by a hash of the pair
// so the table never grows unbounded with the number of targets ever seen.
type LockTable struct {
	mus [stripes]sync.Mutex
}

// NewLockTable returns a ready-to-use LockTable.
func NewLockTable() *LockTable {
	return &LockTable{}
}

// Lock acquires the exclusive lock for (accountID, targetID) and returns an
// unlock function. The lock must be held until the resulting
// BidAdjustmentRecord is durable (spec §5).
func (t *LockTable) Lock(accountID, targetID string) func() {
	idx := stripeIndex(accountID, targetID)
	t.mus[idx].Lock()
	return t.mus[idx].Unlock
}

func stripeIndex(accountID, targetID string) uint32 {
	h := fnv32(accountID + "|" + targetID)
	return h % stripes
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
