// Package odcodec defines how ordering values are encoded
// for the network and for storage.
//
// The [odjson] subpackage contains the only implementation at present.
package odcodec

import (
	"github.com/gordian-engine/godos/od/odconsensus"
)

// MarshalCodec marshals and unmarshals ordering values as bytes.
type MarshalCodec interface {
	MarshalProposal(*odconsensus.Proposal) ([]byte, error)
	UnmarshalProposal([]byte, *odconsensus.Proposal) error

	MarshalBatches([]odconsensus.Batch) ([]byte, error)
	UnmarshalBatches([]byte) ([]odconsensus.Batch, error)

	MarshalBlock(odconsensus.CommittedBlock) ([]byte, error)
	UnmarshalBlock([]byte, *odconsensus.CommittedBlock) error

	MarshalMessage(Message) ([]byte, error)
	UnmarshalMessage([]byte, *Message) error
}

// Message is one frame exchanged on a peer-to-peer ordering stream.
// Exactly one of the pointer fields is set.
type Message struct {
	ProposalRequest  *ProposalRequest
	ProposalResponse *ProposalResponse
	BatchPush        *BatchPush
}

// ProposalRequest asks a peer for its proposal for a round.
type ProposalRequest struct {
	// Echoed in the response, so responses can be matched to requests.
	ID string

	Round odconsensus.Round
}

// ProposalResponse answers a [ProposalRequest].
// A nil Proposal means the peer had none for the round.
type ProposalResponse struct {
	ID string

	Proposal *odconsensus.Proposal
}

// BatchPush carries batches offered by a peer.
type BatchPush struct {
	Batches []odconsensus.Batch
}
