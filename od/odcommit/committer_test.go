package odcommit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/internal/gtest"
	"github.com/gordian-engine/godos/od/odcommit"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odproposal"
	"github.com/gordian-engine/godos/od/odservice"
	"github.com/gordian-engine/godos/od/odstore"
	"github.com/gordian-engine/godos/od/odstore/odmemstore"
)

type fixture struct {
	Service   *odservice.Service
	Blocks    *odmemstore.BlockStore
	Index     *odmemstore.TxStatusIndex
	Committer *odcommit.Committer
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	log := gtest.NewLogger(t)
	s, err := odservice.New(
		log.With("sys", "service"),
		odservice.WithWindowSize(4),
		odservice.WithProposalLimits(odproposal.Limits{
			MaxBatchesPerProposal:   10,
			MaxTransactionsPerBatch: 10,
		}),
	)
	require.NoError(t, err)

	f := fixture{
		Service: s,
		Blocks:  odmemstore.NewBlockStore(),
		Index:   odmemstore.NewTxStatusIndex(),
	}
	f.Committer, err = odcommit.NewCommitter(log.With("sys", "committer"), odcommit.CommitterConfig{
		BlockStore:    f.Blocks,
		TxStatusIndex: f.Index,
		Service:       s,
	})
	require.NoError(t, err)
	return f
}

func TestNewCommitter_requiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := odcommit.NewCommitter(gtest.NewLogger(t), odcommit.CommitterConfig{})
	require.ErrorContains(t, err, "block store required")
	require.ErrorContains(t, err, "tx status index required")
	require.ErrorContains(t, err, "ordering service required")
}

func TestCommitter_commit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	bs := odconsensustest.NewBatchFixture().NextBatches(4, 1)
	f.Service.OnBatches(bs)

	r := odconsensus.Round{Height: 1}
	f.Service.OnCollaborationOutcome(r)

	require.NoError(t, f.Committer.Commit(ctx, odconsensus.CommittedBlock{
		Height:   1,
		Round:    r,
		Batches:  bs[:2],
		Rejected: []odconsensus.BatchHash{bs[2].Hash},
	}))

	var pending []odconsensus.Batch
	f.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
	require.Equal(t, bs[3:], pending)

	status, height, err := f.Index.TxStatus(ctx, bs[0].Hash)
	require.NoError(t, err)
	require.Equal(t, odstore.TxStatusCommitted, status)
	require.Equal(t, uint64(1), height)

	status, _, err = f.Index.TxStatus(ctx, bs[2].Hash)
	require.NoError(t, err)
	require.Equal(t, odstore.TxStatusRejected, status)

	// The committed batches never come back.
	f.Service.OnBatches(bs)
	f.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
	require.Equal(t, bs[3:], pending)

	n, err := f.Blocks.BlockCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestCommitter_commitTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	cb := odconsensus.CommittedBlock{Height: 2}
	require.NoError(t, f.Committer.Commit(ctx, cb))
	require.ErrorIs(t, f.Committer.Commit(ctx, cb), odstore.ErrBlockExists)
}

// failingIndex fails every IndexCommitted call.
type failingIndex struct {
	odstore.TxStatusIndex
}

func (failingIndex) IndexCommitted(context.Context, uint64, []odconsensus.BatchHash) error {
	return errors.New("disk full")
}

func TestCommitter_indexFailureStillNotifies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	c, err := odcommit.NewCommitter(gtest.NewLogger(t), odcommit.CommitterConfig{
		BlockStore:    f.Blocks,
		TxStatusIndex: failingIndex{TxStatusIndex: f.Index},
		Service:       f.Service,
	})
	require.NoError(t, err)

	bs := odconsensustest.NewBatchFixture().NextBatches(3, 1)
	f.Service.OnBatches(bs)

	err = c.Commit(ctx, odconsensus.CommittedBlock{
		Height:   1,
		Batches:  bs[:1],
		Rejected: []odconsensus.BatchHash{bs[1].Hash},
	})
	require.ErrorContains(t, err, "failed to index committed batches at height 1")
	require.ErrorContains(t, err, "disk full")

	// The block was saved and the service was told about it anyway.
	n, err := f.Blocks.BlockCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	f.Service.OnBatches(bs)
	var pending []odconsensus.Batch
	f.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
	require.Equal(t, bs[2:], pending)

	// The rejected index still succeeded.
	status, _, err := f.Index.TxStatus(ctx, bs[1].Hash)
	require.NoError(t, err)
	require.Equal(t, odstore.TxStatusRejected, status)
}

func TestCommitter_replay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	bs := odconsensustest.NewBatchFixture().NextBatches(3, 1)
	require.NoError(t, f.Blocks.SaveBlock(ctx, odconsensus.CommittedBlock{
		Height:   1,
		Batches:  bs[:1],
		Rejected: []odconsensus.BatchHash{bs[1].Hash},
	}))

	require.NoError(t, f.Committer.Replay(ctx))

	f.Service.OnBatches(bs)
	var pending []odconsensus.Batch
	f.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
	require.Equal(t, bs[2:], pending)
}
