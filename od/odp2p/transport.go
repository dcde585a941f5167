// Package odp2p defines the network boundary of the ordering service.
//
// The service depends only on the narrow interfaces here;
// [github.com/gordian-engine/godos/od/odp2p/odlibp2p] provides a libp2p implementation
// and [github.com/gordian-engine/godos/od/odp2p/odp2ptest] an in-process one.
package odp2p

import (
	"context"
	"errors"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// PeerID identifies a remote peer.
// Implementations choose the encoding; libp2p uses the string form of its peer ID.
type PeerID string

// ErrNoPeers is returned by fetchers that have no peer to ask.
var ErrNoPeers = errors.New("no peers available")

// ErrNoProposal is returned by a [Transport] when the peer answered
// but had no proposal for the requested round.
var ErrNoProposal = errors.New("peer has no proposal for round")

// Transport carries ordering traffic between peers.
type Transport interface {
	// RequestProposal asks peer for its proposal for round r.
	// Unreachable peers, malformed responses, and missing proposals are all errors;
	// callers treat every error as "no proposal".
	RequestProposal(ctx context.Context, peer PeerID, r odconsensus.Round) (*odconsensus.Proposal, error)

	// PushBatches offers batches to peer.
	// Delivery is best effort.
	PushBatches(ctx context.Context, peer PeerID, batches []odconsensus.Batch) error
}

// ProposalProvider answers proposal requests arriving from peers.
//
// Implementations must only consult local state:
// answering a remote request must never trigger another remote request.
type ProposalProvider interface {
	ProvideProposal(ctx context.Context, r odconsensus.Round) (*odconsensus.Proposal, bool)
}

// BatchHandler accepts batches pushed by peers.
type BatchHandler interface {
	HandleBatches(ctx context.Context, batches []odconsensus.Batch)
}

// Server is the combination of handlers a transport dispatches inbound traffic to.
type Server interface {
	ProposalProvider
	BatchHandler
}
