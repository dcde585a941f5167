package odconsensus

import "time"

// Proposal is the ordered set of batches offered
// as the candidate content for exactly one round.
//
// Proposals are shared by pointer between every caller interested in the round.
// A Proposal must never be modified after it has been stored in a cache.
type Proposal struct {
	Round Round

	Batches []Batch

	CreatedAt time.Time
}

// IsEmpty reports whether the proposal contains no batches.
// Empty proposals are valid; consensus may advance on an empty round.
func (p *Proposal) IsEmpty() bool {
	return len(p.Batches) == 0
}

// TxCount returns the total number of transactions across all batches.
func (p *Proposal) TxCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Transactions)
	}
	return n
}

// ContainsBatch reports whether a batch with hash h is part of the proposal.
func (p *Proposal) ContainsBatch(h BatchHash) bool {
	for _, b := range p.Batches {
		if b.Hash == h {
			return true
		}
	}
	return false
}

// CommittedBlock is the upstream record of a finalized height:
// the batches that were committed and the hashes that were rejected
// or detected as duplicates while applying the block.
type CommittedBlock struct {
	Height uint64
	Round  Round

	Batches  []Batch
	Rejected []BatchHash
}
