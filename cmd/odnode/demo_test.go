package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/internal/gtest"
	"github.com/gordian-engine/godos/od/odcommit"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odforward"
	"github.com/gordian-engine/godos/od/odp2p"
	"github.com/gordian-engine/godos/od/odproposal"
	"github.com/gordian-engine/godos/od/odservice"
	"github.com/gordian-engine/godos/od/odstore/odmemstore"
)

type recordingSink struct {
	published [][]odconsensus.Batch
}

func (s *recordingSink) Publish(_ context.Context, bs []odconsensus.Batch) error {
	s.published = append(s.published, bs)
	return nil
}

type recordingForwarder struct {
	proposers []odforward.Proposer
	forwarded []odconsensus.Batch
	forgotten []odconsensus.BatchHash
}

func (f *recordingForwarder) SetProposers(ps []odforward.Proposer) { f.proposers = ps }

func (f *recordingForwarder) Forward(_ context.Context, bs []odconsensus.Batch) error {
	f.forwarded = append(f.forwarded, bs...)
	return nil
}

func (f *recordingForwarder) Forget(hs []odconsensus.BatchHash) { f.forgotten = append(f.forgotten, hs...) }

func TestDemoDriver_offerAndAdvance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := gtest.NewLogger(t)

	svc, err := odservice.New(
		log,
		odservice.WithWindowSize(2),
		odservice.WithProposalLimits(odproposal.Limits{MaxBatchesPerProposal: 2, MaxTransactionsPerBatch: 4}),
	)
	require.NoError(t, err)

	blocks := odmemstore.NewBlockStore()
	committer, err := odcommit.NewCommitter(log, odcommit.CommitterConfig{
		BlockStore:    blocks,
		TxStatusIndex: odmemstore.NewTxStatusIndex(),
		Service:       svc,
	})
	require.NoError(t, err)

	sink := new(recordingSink)
	d := &demoDriver{
		log:  log,
		cfg:  DemoConfig{BatchInterval: time.Hour, RoundInterval: time.Hour, TxsPerBatch: 3},
		name: "demo",

		svc:       svc,
		gossip:    sink,
		committer: committer,
	}

	for range 3 {
		d.offerBatch(ctx)
	}
	require.Len(t, sink.published, 3)
	require.Len(t, sink.published[0][0].Transactions, 3)

	d.advance(ctx)
	require.Equal(t, odconsensus.Round{Height: 1}, svc.CurrentRound())

	cb, err := blocks.LoadBlock(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cb.Batches, 2)

	// The committed batches left the pending cache; the third remains.
	var pending []odconsensus.Batch
	svc.ForCachedBatches(func(bs []odconsensus.Batch) { pending = bs })
	require.Equal(t, sink.published[2], pending)
}

func TestHashTransactions_distinct(t *testing.T) {
	t.Parallel()

	a := hashTransactions([][]byte{[]byte("ab"), []byte("c")})
	b := hashTransactions([][]byte{[]byte("a"), []byte("bc")})
	require.NotEqual(t, a, b)
	require.Equal(t, a, hashTransactions([][]byte{[]byte("ab"), []byte("c")}))
}

func TestDemoDriver_forwarding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := gtest.NewLogger(t)

	svc, err := odservice.New(
		log,
		odservice.WithWindowSize(2),
		odservice.WithProposalLimits(odproposal.Limits{MaxBatchesPerProposal: 1, MaxTransactionsPerBatch: 4}),
	)
	require.NoError(t, err)

	committer, err := odcommit.NewCommitter(log, odcommit.CommitterConfig{
		BlockStore:    odmemstore.NewBlockStore(),
		TxStatusIndex: odmemstore.NewTxStatusIndex(),
		Service:       svc,
	})
	require.NoError(t, err)

	fwd := new(recordingForwarder)
	d := &demoDriver{
		log:  log,
		cfg:  DemoConfig{BatchInterval: time.Hour, RoundInterval: time.Hour, TxsPerBatch: 1},
		name: "demo",

		svc:       svc,
		gossip:    new(recordingSink),
		committer: committer,

		forwarder:     fwd,
		peers:         []odp2p.PeerID{"a", "b"},
		forwardRounds: 2,
	}

	d.offerBatch(ctx)
	d.offerBatch(ctx)
	require.Len(t, fwd.forwarded, 2)

	d.advance(ctx)

	// Proposers for rounds 2/0 and 3/0.
	require.Equal(t, []odforward.Proposer{
		{Peer: "a", Round: odconsensus.Round{Height: 2}, Priority: 0},
		{Peer: "b", Round: odconsensus.Round{Height: 3}, Priority: 1},
	}, fwd.proposers)

	// Only the committed batch is forgotten.
	require.Equal(t, []odconsensus.BatchHash{fwd.forwarded[0].Hash}, fwd.forgotten)
}
