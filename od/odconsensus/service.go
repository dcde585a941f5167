package odconsensus

import "context"

// OrderingService is the contract the rest of the node uses
// to drive on-demand transaction ordering.
//
// Every method is safe to call concurrently,
// and no method reports an error:
// expected races and missing data degrade to empty results or no-ops.
type OrderingService interface {
	// OnBatches offers batches for inclusion in a future proposal.
	// Batches already known, or previously committed or duplicate, are ignored.
	OnBatches(batches []Batch)

	// RequestProposal returns the proposal for the given round, if one is available.
	// It may fetch the proposal from a peer, bounded by ctx.
	RequestProposal(ctx context.Context, r Round) (*Proposal, ProposalStatus)

	// OnCollaborationOutcome notifies the service that consensus reached round r.
	OnCollaborationOutcome(r Round)

	// OnTxsCommitted excludes committed batches from future proposals.
	OnTxsCommitted(hashes []BatchHash)

	// OnDuplicates excludes rejected or duplicate batches from future proposals.
	OnDuplicates(hashes []BatchHash)

	// ProcessReceivedProposal folds a proposal produced by another peer
	// into the local state for its round.
	ProcessReceivedProposal(p *Proposal)

	HasProposal(r Round) bool
	IsEmptyBatchesCache() bool

	// ForCachedBatches calls visitor with a snapshot of the pending batches.
	// The visitor must not modify the batches.
	ForCachedBatches(visitor func([]Batch))
}
