package odp2p

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// PeerFetcher retrieves proposals by asking peers over a [Transport].
//
// Peers are asked in an order rotated by the requested round,
// so that consecutive rounds spread load across peers.
// Up to Parallelism requests are in flight at once;
// the first well-formed proposal for the requested round wins
// and cancels the remaining requests.
type PeerFetcher struct {
	log *slog.Logger
	t   Transport

	parallelism int

	mu    sync.RWMutex
	peers []PeerID
}

// PeerFetcherConfig configures a [PeerFetcher].
type PeerFetcherConfig struct {
	Peers []PeerID

	// Maximum concurrent requests. Values below 1 are treated as 1.
	Parallelism int
}

// NewPeerFetcher returns a fetcher over t.
func NewPeerFetcher(log *slog.Logger, t Transport, cfg PeerFetcherConfig) *PeerFetcher {
	return &PeerFetcher{
		log: log,
		t:   t,

		parallelism: max(cfg.Parallelism, 1),

		peers: slices.Clone(cfg.Peers),
	}
}

// SetPeers replaces the set of peers consulted on future fetches.
func (f *PeerFetcher) SetPeers(peers []PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers = slices.Clone(peers)
}

// Peers returns a copy of the current peer set.
func (f *PeerFetcher) Peers() []PeerID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.peers)
}

// FetchProposal asks peers for the proposal for round r until one answers,
// every peer has been asked, or ctx is done.
func (f *PeerFetcher) FetchProposal(ctx context.Context, r odconsensus.Round) (*odconsensus.Proposal, error) {
	peers := f.Peers()
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan *odconsensus.Proposal, 1)

	var attemptedMu sync.Mutex
	var attempted bitset.BitSet

	var g errgroup.Group
	g.SetLimit(f.parallelism)

	start := int((r.Height + uint64(r.Reject)) % uint64(len(peers)))
	for n := range len(peers) {
		if ctx.Err() != nil {
			break
		}

		idx := (start + n) % len(peers)
		peer := peers[idx]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			attemptedMu.Lock()
			attempted.Set(uint(idx))
			attemptedMu.Unlock()

			p, err := f.t.RequestProposal(ctx, peer, r)
			if err != nil {
				if ctx.Err() == nil {
					f.log.Debug(
						"Proposal request failed",
						"peer", peer, "round", r, "err", err,
					)
				}
				return nil
			}
			if p == nil || p.Round != r {
				f.log.Info(
					"Discarding malformed proposal response",
					"peer", peer, "round", r,
				)
				return nil
			}

			select {
			case found <- p:
				cancel()
			default:
				// Another peer already answered.
			}
			return nil
		})
	}

	// The goroutines never return errors; failures are only logged.
	_ = g.Wait()

	select {
	case p := <-found:
		return p, nil
	default:
	}

	attemptedMu.Lock()
	nAttempted := attempted.Count()
	attemptedMu.Unlock()

	if err := context.Cause(ctx); err != nil && nAttempted < uint(len(peers)) {
		return nil, fmt.Errorf(
			"proposal fetch for round %s interrupted after %d of %d peers: %w",
			r, nAttempted, len(peers), err,
		)
	}
	return nil, fmt.Errorf("no peer of %d supplied proposal for round %s", len(peers), r)
}

// PushBatches sends batches to every peer, logging failures.
// It blocks until every push has completed or ctx is done.
func PushBatches(
	ctx context.Context, log *slog.Logger, t Transport, peers []PeerID, batches []odconsensus.Batch,
) {
	if len(batches) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.PushBatches(ctx, peer, batches); err != nil {
				log.Debug("Failed to push batches", "peer", peer, "n", len(batches), "err", err)
			}
		}()
	}
	wg.Wait()
}
