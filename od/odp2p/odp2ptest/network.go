// Package odp2ptest contains an in-process implementation of [odp2p.Transport]
// for tests that exercise several ordering services together.
package odp2ptest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gordian-engine/godos/gnetdag"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odp2p"
)

// Network connects in-process peers.
// Every peer that joins can reach every other peer directly.
//
// Network methods are safe to call concurrently.
type Network struct {
	mu sync.RWMutex

	// Join order, used as the index space for relay trees.
	order   []odp2p.PeerID
	servers map[odp2p.PeerID]odp2p.Server

	down   map[odp2p.PeerID]bool
	delays map[odp2p.PeerID]time.Duration

	requests map[odp2p.PeerID]int

	tree gnetdag.FanoutTree
}

// NewNetwork returns an empty network whose relays
// use the given branch factor (values below 1 are treated as 2).
func NewNetwork(branchFactor int) *Network {
	if branchFactor < 1 {
		branchFactor = 2
	}
	return &Network{
		servers:  make(map[odp2p.PeerID]odp2p.Server),
		down:     make(map[odp2p.PeerID]bool),
		delays:   make(map[odp2p.PeerID]time.Duration),
		requests: make(map[odp2p.PeerID]int),

		tree: gnetdag.FanoutTree{BranchFactor: branchFactor},
	}
}

// Join registers srv under id and returns the transport
// that peer uses to reach the others.
// It panics if id has already joined.
func (n *Network) Join(id odp2p.PeerID, srv odp2p.Server) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.servers[id]; ok {
		panic(fmt.Errorf("BUG: peer %q joined twice", id))
	}
	n.servers[id] = srv
	n.order = append(n.order, id)

	return &Transport{n: n, self: id}
}

// Peers returns every joined peer except self, in join order.
func (n *Network) Peers(self odp2p.PeerID) []odp2p.PeerID {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]odp2p.PeerID, 0, len(n.order))
	for _, id := range n.order {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// SetDown marks a peer as unreachable, or reachable again.
func (n *Network) SetDown(id odp2p.PeerID, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = down
}

// SetResponseDelay makes proposal requests to id wait for d before answering.
func (n *Network) SetResponseDelay(id odp2p.PeerID, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays[id] = d
}

// RequestCount returns how many proposal requests id has received.
func (n *Network) RequestCount(id odp2p.PeerID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.requests[id]
}

func (n *Network) lookup(id odp2p.PeerID) (odp2p.Server, time.Duration, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	srv, ok := n.servers[id]
	if !ok {
		return nil, 0, fmt.Errorf("unknown peer %q", id)
	}
	if n.down[id] {
		return nil, 0, fmt.Errorf("peer %q unreachable", id)
	}
	return srv, n.delays[id], nil
}

// Relay delivers batches from origin to every other peer,
// with each peer forwarding to its children in a fan-out tree rooted at origin.
// Unreachable peers neither receive nor forward.
func (n *Network) Relay(ctx context.Context, origin odp2p.PeerID, batches []odconsensus.Batch) {
	n.mu.RLock()
	order := slices.Clone(n.order)
	n.mu.RUnlock()

	originIdx := slices.Index(order, origin)
	if originIdx < 0 {
		return
	}

	n.relayFrom(ctx, 0, originIdx, order, batches)
}

func (n *Network) relayFrom(
	ctx context.Context, treeIdx, originIdx int, order []odp2p.PeerID, batches []odconsensus.Batch,
) {
	for _, child := range n.tree.Children(treeIdx, len(order)) {
		if ctx.Err() != nil {
			return
		}

		id := order[gnetdag.Unrotate(child, originIdx, len(order))]
		srv, _, err := n.lookup(id)
		if err != nil {
			continue
		}
		srv.HandleBatches(ctx, batches)
		n.relayFrom(ctx, child, originIdx, order, batches)
	}
}

// Transport is one peer's view of a [Network].
type Transport struct {
	n    *Network
	self odp2p.PeerID
}

var _ odp2p.Transport = (*Transport)(nil)

// Self returns the ID the transport joined with.
func (t *Transport) Self() odp2p.PeerID {
	return t.self
}

// RequestProposal implements [odp2p.Transport].
func (t *Transport) RequestProposal(
	ctx context.Context, peer odp2p.PeerID, r odconsensus.Round,
) (*odconsensus.Proposal, error) {
	srv, delay, err := t.n.lookup(peer)
	if err != nil {
		return nil, err
	}

	t.n.mu.Lock()
	t.n.requests[peer]++
	t.n.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-timer.C:
			// Okay.
		}
	}

	p, ok := srv.ProvideProposal(ctx, r)
	if !ok {
		return nil, odp2p.ErrNoProposal
	}
	return p, nil
}

// PushBatches implements [odp2p.Transport].
func (t *Transport) PushBatches(ctx context.Context, peer odp2p.PeerID, batches []odconsensus.Batch) error {
	srv, _, err := t.n.lookup(peer)
	if err != nil {
		return err
	}
	srv.HandleBatches(ctx, batches)
	return nil
}
