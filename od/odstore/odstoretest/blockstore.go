// Package odstoretest contains compliance suites for [odstore] implementations.
package odstoretest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odstore"
)

// TestBlockStoreCompliance runs the compliance suite
// against stores created by newStore.
func TestBlockStoreCompliance(t *testing.T, newStore func(t *testing.T) odstore.BlockStore) {
	t.Run("save and load", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStore(t)

		bs := odconsensustest.NewBatchFixture().NextBatches(3, 2)
		cb := odconsensus.CommittedBlock{
			Height:   1,
			Round:    odconsensus.Round{Height: 1, Reject: 2},
			Batches:  bs[:2],
			Rejected: []odconsensus.BatchHash{bs[2].Hash},
		}
		require.NoError(t, s.SaveBlock(ctx, cb))

		got, err := s.LoadBlock(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, cb.Height, got.Height)
		require.Equal(t, cb.Round, got.Round)
		require.Equal(t, cb.Rejected, got.Rejected)
		require.Equal(t, odconsensus.BatchHashes(cb.Batches), odconsensus.BatchHashes(got.Batches))
		require.Equal(t, cb.Batches[1].Transactions, got.Batches[1].Transactions)
	})

	t.Run("missing block", func(t *testing.T) {
		t.Parallel()

		s := newStore(t)
		_, err := s.LoadBlock(context.Background(), 7)
		require.ErrorIs(t, err, odstore.ErrBlockNotFound)
	})

	t.Run("height saved once", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStore(t)

		fx := odconsensustest.NewBatchFixture()
		first := odconsensus.CommittedBlock{Height: 3, Batches: fx.NextBatches(1, 1)}
		require.NoError(t, s.SaveBlock(ctx, first))

		second := odconsensus.CommittedBlock{Height: 3, Batches: fx.NextBatches(1, 1)}
		require.ErrorIs(t, s.SaveBlock(ctx, second), odstore.ErrBlockExists)

		got, err := s.LoadBlock(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, first.Batches[0].Hash, got.Batches[0].Hash)
	})

	t.Run("count and iteration", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStore(t)

		n, err := s.BlockCount(ctx)
		require.NoError(t, err)
		require.Zero(t, n)

		for _, h := range []uint64{4, 2, 9} {
			require.NoError(t, s.SaveBlock(ctx, odconsensus.CommittedBlock{Height: h}))
		}

		n, err = s.BlockCount(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(3), n)

		var heights []uint64
		require.NoError(t, s.ForEachBlock(ctx, func(cb odconsensus.CommittedBlock) error {
			heights = append(heights, cb.Height)
			return nil
		}))
		require.Equal(t, []uint64{2, 4, 9}, heights)

		stop := errors.New("stop")
		heights = heights[:0]
		err = s.ForEachBlock(ctx, func(cb odconsensus.CommittedBlock) error {
			heights = append(heights, cb.Height)
			return stop
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, []uint64{2}, heights)
	})
}
