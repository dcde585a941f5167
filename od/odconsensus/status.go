package odconsensus

//go:generate go run golang.org/x/tools/cmd/stringer -type=ExclusionReason -trimprefix=Exclusion
//go:generate go run golang.org/x/tools/cmd/stringer -type=ProposalStatus -trimprefix=ProposalStatus

// ExclusionReason records why a batch hash was removed from the pending cache.
//
// The pending cache treats every reason the same way for removal,
// but committed and duplicate hashes are also remembered
// so that a later re-submission of the same batch is ignored.
type ExclusionReason uint8

const (
	_ ExclusionReason = iota // Zero value reserved.

	// The batch was committed in a finalized block.
	ExclusionCommitted

	// The batch was rejected or detected as a duplicate of committed work.
	ExclusionDuplicate

	// The batch is part of a proposal received from another peer.
	// It is not remembered, since that proposal may still fail to be agreed upon.
	ExclusionInFlight
)

// Remembered reports whether hashes excluded for this reason
// must be refused if they are inserted again.
func (r ExclusionReason) Remembered() bool {
	return r == ExclusionCommitted || r == ExclusionDuplicate
}

// ProposalStatus accompanies the result of a proposal request,
// distinguishing a missing proposal that may still arrive
// from one that can never be served again.
type ProposalStatus uint8

const (
	_ ProposalStatus = iota // Zero value reserved.

	// The returned proposal is valid for the requested round.
	ProposalStatusPresent

	// No proposal is available for the round yet.
	// A retry may succeed.
	ProposalStatusNotYetAvailable

	// The round is older than the retained window.
	ProposalStatusEvicted
)
