package odservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gordian-engine/godos/internal/glog"
	"github.com/gordian-engine/godos/od/odcache"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odmetrics"
	"github.com/gordian-engine/godos/od/odp2p"
	"github.com/gordian-engine/godos/od/odproposal"
)

// ProposalFetcher retrieves a proposal for a round from somewhere other than the local caches.
// [*odp2p.PeerFetcher] is the usual implementation.
type ProposalFetcher interface {
	FetchProposal(ctx context.Context, r odconsensus.Round) (*odconsensus.Proposal, error)
}

// Service is the on-demand ordering service.
// Create one with [New].
//
// Service methods are safe to call concurrently.
type Service struct {
	log *slog.Logger

	pending   *odcache.PendingBatches
	proposals *odcache.Proposals
	factory   *odproposal.Factory

	fetcher      ProposalFetcher
	fetchTimeout time.Duration
	fetches      singleflight.Group

	m *odmetrics.Metrics

	// Guards the current round.
	// Held while advancing the proposal window so that the cache's current round
	// never lags behind ours; never held across a fetch.
	roundMu sync.RWMutex
	current odconsensus.Round
}

var (
	_ odconsensus.OrderingService = (*Service)(nil)
	_ odp2p.Server                = (*Service)(nil)
)

// New returns a new Service.
// The [WithWindowSize] and [WithProposalLimits] options are required.
func New(log *slog.Logger, opts ...Opt) (*Service, error) {
	cfg := config{
		FetchTimeout:    DefaultFetchTimeout,
		ExclusionMemory: DefaultExclusionMemory,
	}

	var errs []error
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}

	if cfg.maxTxsOverride != nil {
		cfg.Limits.MaxTransactionsPerProposal = *cfg.maxTxsOverride
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}

	factory, err := odproposal.NewFactory(cfg.Limits)
	if err != nil {
		// Validated above.
		panic(fmt.Errorf("BUG: factory rejected validated limits: %w", err))
	}

	pending, err := odcache.NewPendingBatches(cfg.ExclusionMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending batch cache: %w", err)
	}

	proposals := odcache.NewProposals(cfg.WindowSize)
	proposals.AdvanceWindow(cfg.InitialRound)

	return &Service{
		log: log,

		pending:   pending,
		proposals: proposals,
		factory:   factory,

		fetcher:      cfg.Fetcher,
		fetchTimeout: cfg.FetchTimeout,

		m: cfg.Metrics,

		current: cfg.InitialRound,
	}, nil
}

// CurrentRound returns the most recent round reached by consensus,
// or the initial round if no outcome has been reported yet.
func (s *Service) CurrentRound() odconsensus.Round {
	s.roundMu.RLock()
	defer s.roundMu.RUnlock()
	return s.current
}

// OnBatches offers batches for inclusion in future proposals.
func (s *Service) OnBatches(batches []odconsensus.Batch) {
	if len(batches) == 0 {
		return
	}

	added := s.pending.Insert(batches)
	s.m.BatchesOffered(len(batches), added)
	s.updateGauges()

	if added < len(batches) {
		s.log.Debug(
			"Ignored known or excluded batches",
			"offered", len(batches), "added", added,
		)
	}
}

// OnTxsCommitted excludes committed batches from future proposals
// and keeps them from being admitted again.
func (s *Service) OnTxsCommitted(hashes []odconsensus.BatchHash) {
	s.exclude(odconsensus.ExclusionCommitted, hashes)
}

// OnDuplicates excludes duplicate or rejected batches from future proposals
// and keeps them from being admitted again.
func (s *Service) OnDuplicates(hashes []odconsensus.BatchHash) {
	s.exclude(odconsensus.ExclusionDuplicate, hashes)
}

func (s *Service) exclude(reason odconsensus.ExclusionReason, hashes []odconsensus.BatchHash) {
	if len(hashes) == 0 {
		return
	}

	removed := s.pending.Exclude(reason, hashes)
	s.m.BatchesExcluded(reason, removed)
	s.updateGauges()

	s.log.Debug(
		"Excluded batches",
		"reason", reason, "n", len(hashes), "removed", removed,
	)
}

// OnCollaborationOutcome records that consensus reached round r.
//
// The proposal window advances to r, and then,
// if no proposal is stored for r yet, one is built from the pending batches
// and stored.
// Rounds older than the current round are ignored.
func (s *Service) OnCollaborationOutcome(r odconsensus.Round) {
	s.roundMu.Lock()
	if r.Less(s.current) {
		cur := s.current
		s.roundMu.Unlock()

		s.log.Debug(
			"Ignoring collaboration outcome for past round",
			"round", r, "current", cur,
		)
		return
	}
	s.current = r
	evicted := s.proposals.AdvanceWindow(r)
	s.roundMu.Unlock()

	if evicted > 0 {
		s.log.Debug("Evicted proposals", "round", r, "n", evicted)
	}

	if !s.proposals.Has(r) {
		s.produce(r)
	}
	s.updateGauges()
}

// produce builds a proposal for r from the current pending snapshot
// and stores it unless another proposal for r got there first.
// It returns the proposal stored for r, which may be nil if r fell out of the window.
func (s *Service) produce(r odconsensus.Round) *odconsensus.Proposal {
	res := s.factory.Build(s.pending.SnapshotOrdered(), r)
	if res.Oversized > 0 {
		s.log.Info(
			"Skipped oversized batches in proposal",
			"round", r, "n", res.Oversized,
			"max_txs_per_batch", s.factory.Limits().MaxTransactionsPerBatch,
		)
	}

	stored, inserted := s.proposals.Put(res.Proposal)
	s.m.ProposalStored(odmetrics.ProposalSourceLocal, inserted)
	if inserted {
		s.log.Debug(
			"Stored local proposal",
			"round", r, "batches", len(res.Proposal.Batches), "deferred", res.Deferred,
		)
	}
	return stored
}

// RequestProposal returns the proposal for round r.
//
// A stored proposal is returned directly.
// A proposal for the current round is produced locally if none is stored.
// Any other round within reach of the window is fetched from peers,
// bounded by ctx or by the configured fetch timeout if ctx has no deadline;
// concurrent requests for the same round share a single fetch.
// A failed or timed out fetch reports [odconsensus.ProposalStatusNotYetAvailable].
func (s *Service) RequestProposal(
	ctx context.Context, r odconsensus.Round,
) (*odconsensus.Proposal, odconsensus.ProposalStatus) {
	p, status := s.requestProposal(ctx, r)
	s.m.ProposalRequested(status)
	return p, status
}

func (s *Service) requestProposal(
	ctx context.Context, r odconsensus.Round,
) (*odconsensus.Proposal, odconsensus.ProposalStatus) {
	if p, ok := s.localProposal(r); ok {
		return p, odconsensus.ProposalStatusPresent
	}

	if s.proposals.IsEvicted(r) {
		return nil, odconsensus.ProposalStatusEvicted
	}

	if s.fetcher == nil {
		return nil, odconsensus.ProposalStatusNotYetAvailable
	}

	if !s.withinHorizon(r) {
		s.log.Debug(
			"Not fetching proposal beyond window",
			"round", r, "current", s.CurrentRound(),
		)
		return nil, odconsensus.ProposalStatusNotYetAvailable
	}

	p := s.fetch(ctx, r)
	if p == nil {
		// The round may have been stored or evicted while fetching.
		if p, ok := s.proposals.Get(r); ok {
			return p, odconsensus.ProposalStatusPresent
		}
		if s.proposals.IsEvicted(r) {
			return nil, odconsensus.ProposalStatusEvicted
		}
		return nil, odconsensus.ProposalStatusNotYetAvailable
	}
	return p, odconsensus.ProposalStatusPresent
}

// ProvideProposal answers a peer's request for round r
// from local state only.
func (s *Service) ProvideProposal(_ context.Context, r odconsensus.Round) (*odconsensus.Proposal, bool) {
	return s.localProposal(r)
}

// localProposal returns the stored proposal for r,
// producing it first if r is the current round.
func (s *Service) localProposal(r odconsensus.Round) (*odconsensus.Proposal, bool) {
	if p, ok := s.proposals.Get(r); ok {
		return p, true
	}

	if r != s.CurrentRound() {
		return nil, false
	}

	p := s.produce(r)
	s.updateGauges()
	return p, p != nil
}

// withinHorizon reports whether r is near enough to the current round
// for its proposal to be stored.
// The proposal cache additionally limits how many rounds ahead are held,
// so proposals for later rounds never displace the current round.
func (s *Service) withinHorizon(r odconsensus.Round) bool {
	cur := s.CurrentRound()
	if r.Height <= cur.Height {
		return true
	}
	return r.Height-cur.Height < uint64(s.proposals.Window())
}

// fetch retrieves and stores the proposal for r through the fetcher.
// It returns the proposal stored for r on success, or nil.
func (s *Service) fetch(ctx context.Context, r odconsensus.Round) *odconsensus.Proposal {
	ch := s.fetches.DoChan(r.String(), func() (any, error) {
		// The shared fetch must outlive a caller that gives up early,
		// but still honors that caller's deadline.
		fetchCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc
		if deadline, ok := ctx.Deadline(); ok {
			fetchCtx, cancel = context.WithDeadline(fetchCtx, deadline)
		} else {
			fetchCtx, cancel = context.WithTimeout(fetchCtx, s.fetchTimeout)
		}
		defer cancel()

		start := time.Now()
		p, err := s.fetcher.FetchProposal(fetchCtx, r)
		s.m.FetchObserved(time.Since(start), err == nil && p != nil)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Round != r {
			return nil, errors.New("fetcher returned proposal for wrong round")
		}

		stored, ok := s.fold(p, odmetrics.ProposalSourceFetched)
		if !ok {
			return nil, errors.New("fetched proposal could not be stored")
		}
		return stored, nil
	})

	select {
	case <-ctx.Done():
		s.log.Debug(
			"Gave up waiting for proposal fetch",
			"round", r, "cause", context.Cause(ctx),
		)
		return nil
	case res := <-ch:
		if res.Err != nil {
			s.log.Debug("Proposal fetch failed", "round", r, "err", res.Err)
			return nil
		}
		return res.Val.(*odconsensus.Proposal)
	}
}

// ProcessReceivedProposal stores a proposal produced by another peer,
// unless a proposal for its round is already stored.
// When stored, its batches are excluded from the pending cache
// so they are not proposed again while in flight.
//
// Proposals for evicted rounds, or too far beyond the current round
// to fit in the window, are dropped.
func (s *Service) ProcessReceivedProposal(p *odconsensus.Proposal) {
	if p == nil {
		return
	}

	if !s.withinHorizon(p.Round) {
		s.log.Info(
			"Dropping received proposal beyond window",
			"round", p.Round, "current", s.CurrentRound(),
		)
		return
	}

	s.fold(p, odmetrics.ProposalSourceReceived)
}

// fold stores p set-once and marks its batches in flight if p was the value stored.
// It returns the proposal now stored for the round.
func (s *Service) fold(p *odconsensus.Proposal, src odmetrics.ProposalSource) (*odconsensus.Proposal, bool) {
	stored, inserted := s.proposals.Put(p)
	s.m.ProposalStored(src, inserted)

	if !inserted {
		if stored == nil {
			s.log.Debug("Dropped proposal outside window", "round", p.Round, "source", src)
			return nil, false
		}

		if s.log.Enabled(context.Background(), slog.LevelDebug) && !sameBatches(stored, p) {
			s.log.Debug(
				"Kept existing proposal over differing proposal",
				"round", p.Round, "source", src, "first_batch", firstBatchHash(stored),
			)
		}
		return stored, true
	}

	if len(p.Batches) > 0 {
		removed := s.pending.Exclude(odconsensus.ExclusionInFlight, odconsensus.BatchHashes(p.Batches))
		s.m.BatchesExcluded(odconsensus.ExclusionInFlight, removed)
	}
	s.updateGauges()

	s.log.Debug(
		"Stored proposal",
		"round", p.Round, "source", src, "batches", len(p.Batches),
	)
	return stored, true
}

// HasProposal reports whether a proposal for r is stored.
func (s *Service) HasProposal(r odconsensus.Round) bool {
	return s.proposals.Has(r)
}

// IsEmptyBatchesCache reports whether no batches are pending.
func (s *Service) IsEmptyBatchesCache() bool {
	return s.pending.IsEmpty()
}

// ForCachedBatches calls visitor with a point-in-time copy of the pending batches,
// in insertion order. The cache is not locked while visitor runs.
func (s *Service) ForCachedBatches(visitor func([]odconsensus.Batch)) {
	visitor(s.pending.SnapshotOrdered())
}

// HandleBatches accepts batches pushed by a peer.
func (s *Service) HandleBatches(_ context.Context, batches []odconsensus.Batch) {
	s.OnBatches(batches)
}

// StoredRounds returns the rounds with a stored proposal, in ascending order.
func (s *Service) StoredRounds() []odconsensus.Round {
	return s.proposals.Rounds()
}

// StoredProposal returns the stored proposal for r without producing or fetching one.
func (s *Service) StoredProposal(r odconsensus.Round) (*odconsensus.Proposal, bool) {
	return s.proposals.Get(r)
}

func (s *Service) updateGauges() {
	s.m.SetCacheSizes(s.pending.Len(), s.proposals.Len())
}

func sameBatches(a, b *odconsensus.Proposal) bool {
	if len(a.Batches) != len(b.Batches) {
		return false
	}
	for i := range a.Batches {
		if a.Batches[i].Hash != b.Batches[i].Hash {
			return false
		}
	}
	return true
}

func firstBatchHash(p *odconsensus.Proposal) slog.LogValuer {
	if len(p.Batches) == 0 {
		return glog.ShortHex(nil)
	}
	return glog.ShortHex(p.Batches[0].Hash[:])
}
