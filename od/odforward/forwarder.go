// Package odforward pushes locally received batches
// to the peers expected to propose upcoming rounds,
// so that their pending caches hold the batches before they build a proposal.
package odforward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odp2p"
)

// batchPusher is the subset of [odp2p.Transport] the forwarder needs.
type batchPusher interface {
	PushBatches(ctx context.Context, peer odp2p.PeerID, batches []odconsensus.Batch) error
}

// Config holds forwarder configuration.
type Config struct {
	// Maximum number of batches in a single push.
	MaxBatchesPerPush int

	// Maximum number of pushes in flight at once.
	MaxConcurrentSends int

	// Number of batch hashes whose delivery is remembered,
	// to avoid pushing the same batch to the same peer twice.
	SentMemory int
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		MaxBatchesPerPush:  100,
		MaxConcurrentSends: 4,
		SentMemory:         1 << 14,
	}
}

// Forwarder manages batch forwarding to potential proposers.
type Forwarder struct {
	log *slog.Logger
	t   batchPusher
	cfg Config

	proposers *proposerQueue

	// Peers each batch has already been delivered to.
	// The map values are only touched while holding sentMu.
	sentMu sync.Mutex
	sent   *lru.Cache[odconsensus.BatchHash, map[odp2p.PeerID]struct{}]

	batchesForwarded atomic.Uint64
	pushes           atomic.Uint64
	pushErrors       atomic.Uint64
}

// Stats are cumulative forwarder counters.
type Stats struct {
	BatchesForwarded uint64
	Pushes           uint64
	PushErrors       uint64
}

// New returns a forwarder pushing over t.
// Zero fields in cfg take their value from [DefaultConfig].
func New(log *slog.Logger, t batchPusher, cfg Config) (*Forwarder, error) {
	if t == nil {
		return nil, errors.New("transport required")
	}

	def := DefaultConfig()
	if cfg.MaxBatchesPerPush <= 0 {
		cfg.MaxBatchesPerPush = def.MaxBatchesPerPush
	}
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = def.MaxConcurrentSends
	}
	if cfg.SentMemory <= 0 {
		cfg.SentMemory = def.SentMemory
	}

	sent, err := lru.New[odconsensus.BatchHash, map[odp2p.PeerID]struct{}](cfg.SentMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create sent cache: %w", err)
	}

	return &Forwarder{
		log: log,
		t:   t,
		cfg: cfg,

		proposers: newProposerQueue(),
		sent:      sent,
	}, nil
}

// SetProposers replaces the set of peers batches are forwarded to.
func (f *Forwarder) SetProposers(proposers []Proposer) {
	f.proposers.Update(proposers)
}

// Forward pushes batches to every known proposer,
// skipping batches already delivered to that proposer.
// It blocks until every push finished or ctx is done,
// and returns the joined push errors.
func (f *Forwarder) Forward(ctx context.Context, batches []odconsensus.Batch) error {
	if len(batches) == 0 {
		return nil
	}
	proposers := f.proposers.Ordered()
	if len(proposers) == 0 {
		return nil
	}

	var errMu sync.Mutex
	var errs []error

	var g errgroup.Group
	g.SetLimit(f.cfg.MaxConcurrentSends)

	for _, p := range proposers {
		todo := f.unsent(p.Peer, batches)
		for len(todo) > 0 {
			chunk := todo[:min(len(todo), f.cfg.MaxBatchesPerPush)]
			todo = todo[len(chunk):]

			g.Go(func() error {
				f.pushes.Add(1)
				if err := f.t.PushBatches(ctx, p.Peer, chunk); err != nil {
					f.pushErrors.Add(1)

					errMu.Lock()
					errs = append(errs, fmt.Errorf("forward to %s: %w", p.Peer, err))
					errMu.Unlock()
					return nil
				}

				f.markSent(p.Peer, chunk)
				f.batchesForwarded.Add(uint64(len(chunk)))
				return nil
			})
		}
	}

	// Push errors are collected in errs.
	_ = g.Wait()

	if len(errs) > 0 {
		f.log.Debug("Batch forwarding incomplete", "n_errs", len(errs))
	}
	return errors.Join(errs...)
}

// Forget drops delivery tracking for the given hashes,
// typically once they have been committed.
func (f *Forwarder) Forget(hashes []odconsensus.BatchHash) {
	f.sentMu.Lock()
	defer f.sentMu.Unlock()
	for _, h := range hashes {
		f.sent.Remove(h)
	}
}

// Stats returns current statistics.
func (f *Forwarder) Stats() Stats {
	return Stats{
		BatchesForwarded: f.batchesForwarded.Load(),
		Pushes:           f.pushes.Load(),
		PushErrors:       f.pushErrors.Load(),
	}
}

func (f *Forwarder) unsent(peer odp2p.PeerID, batches []odconsensus.Batch) []odconsensus.Batch {
	f.sentMu.Lock()
	defer f.sentMu.Unlock()

	out := make([]odconsensus.Batch, 0, len(batches))
	for _, b := range batches {
		if peers, ok := f.sent.Peek(b.Hash); ok {
			if _, done := peers[peer]; done {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func (f *Forwarder) markSent(peer odp2p.PeerID, batches []odconsensus.Batch) {
	f.sentMu.Lock()
	defer f.sentMu.Unlock()

	for _, b := range batches {
		peers, ok := f.sent.Get(b.Hash)
		if !ok {
			peers = make(map[odp2p.PeerID]struct{}, 1)
			f.sent.Add(b.Hash, peers)
		}
		peers[peer] = struct{}{}
	}
}
