package odforward

import (
	"container/heap"
	"sync"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odp2p"
)

// Proposer is a peer expected to build the proposal for an upcoming round.
type Proposer struct {
	Peer  odp2p.PeerID
	Round odconsensus.Round

	// Lower values are served first.
	Priority int
}

// UpcomingProposers returns the proposers of the n rounds at and after cur,
// assuming the proposer of round r is peers[(r.Height+r.Reject) % len(peers)].
// The proposer of cur has priority 0, the next one 1, and so on.
func UpcomingProposers(peers []odp2p.PeerID, cur odconsensus.Round, n int) []Proposer {
	if len(peers) == 0 || n <= 0 {
		return nil
	}

	out := make([]Proposer, 0, n)
	r := cur
	for i := range n {
		idx := (r.Height + uint64(r.Reject)) % uint64(len(peers))
		out = append(out, Proposer{
			Peer:     peers[idx],
			Round:    r,
			Priority: i,
		})
		r = r.NextHeight()
	}
	return out
}

// proposerQueue is a thread-safe priority queue of proposers.
type proposerQueue struct {
	mu    sync.RWMutex
	items proposerHeap
}

func newProposerQueue() *proposerQueue {
	q := &proposerQueue{}
	heap.Init(&q.items)
	return q
}

// Update replaces the entire queue.
func (q *proposerQueue) Update(proposers []Proposer) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	for _, p := range proposers {
		heap.Push(&q.items, p)
	}
}

// Ordered returns the queued proposers in priority order,
// keeping only the first entry for each peer.
func (q *proposerQueue) Ordered() []Proposer {
	q.mu.RLock()
	h := make(proposerHeap, len(q.items))
	copy(h, q.items)
	q.mu.RUnlock()

	out := make([]Proposer, 0, len(h))
	seen := make(map[odp2p.PeerID]struct{}, len(h))
	for h.Len() > 0 {
		p := heap.Pop(&h).(Proposer)
		if _, ok := seen[p.Peer]; ok {
			continue
		}
		seen[p.Peer] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (q *proposerQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// proposerHeap implements heap.Interface.
type proposerHeap []Proposer

func (h proposerHeap) Len() int { return len(h) }

func (h proposerHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Round.Less(h[j].Round)
}

func (h proposerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *proposerHeap) Push(x any) {
	*h = append(*h, x.(Proposer))
}

func (h *proposerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
