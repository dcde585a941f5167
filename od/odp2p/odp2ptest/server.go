package odp2ptest

import (
	"context"
	"sync"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// MapServer is a trivial [odp2p.Server] backed by maps,
// for transport tests that do not need a full ordering service.
type MapServer struct {
	mu        sync.Mutex
	proposals map[odconsensus.Round]*odconsensus.Proposal
	received  [][]odconsensus.Batch
}

// NewMapServer returns an empty MapServer.
func NewMapServer() *MapServer {
	return &MapServer{proposals: make(map[odconsensus.Round]*odconsensus.Proposal)}
}

// SetProposal makes p available for its round.
func (s *MapServer) SetProposal(p *odconsensus.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.Round] = p
}

// SetProposalFor makes p the answer to requests for r,
// even when p is nil or belongs to another round.
func (s *MapServer) SetProposalFor(r odconsensus.Round, p *odconsensus.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[r] = p
}

// ProvideProposal implements [odp2p.ProposalProvider].
func (s *MapServer) ProvideProposal(_ context.Context, r odconsensus.Round) (*odconsensus.Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[r]
	return p, ok
}

// HandleBatches implements [odp2p.BatchHandler].
func (s *MapServer) HandleBatches(_ context.Context, batches []odconsensus.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, batches)
}

// Received returns every batch slice handled so far.
func (s *MapServer) Received() [][]odconsensus.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]odconsensus.Batch, len(s.received))
	copy(out, s.received)
	return out
}
