package odstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odstore"
)

// TestTxStatusIndexCompliance runs the compliance suite
// against indexes created by newIndex.
func TestTxStatusIndexCompliance(t *testing.T, newIndex func(t *testing.T) odstore.TxStatusIndex) {
	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t)
		status, height, err := x.TxStatus(context.Background(), odconsensus.BatchHash{1})
		require.NoError(t, err)
		require.Equal(t, odstore.TxStatusUnknown, status)
		require.Zero(t, height)
	})

	t.Run("committed and rejected", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		x := newIndex(t)

		hs := odconsensus.BatchHashes(odconsensustest.NewBatchFixture().NextBatches(3, 1))
		require.NoError(t, x.IndexCommitted(ctx, 5, hs[:2]))
		require.NoError(t, x.IndexRejected(ctx, 5, hs[2:]))

		for i, want := range []odstore.TxStatus{
			odstore.TxStatusCommitted, odstore.TxStatusCommitted, odstore.TxStatusRejected,
		} {
			status, height, err := x.TxStatus(ctx, hs[i])
			require.NoError(t, err)
			require.Equal(t, want, status, "hash %d", i)
			require.Equal(t, uint64(5), height)
		}
	})

	t.Run("committed is final", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		x := newIndex(t)

		h := odconsensustest.NewBatchFixture().NextBatch(1).Hash
		require.NoError(t, x.IndexCommitted(ctx, 2, []odconsensus.BatchHash{h}))
		require.NoError(t, x.IndexRejected(ctx, 3, []odconsensus.BatchHash{h}))
		require.NoError(t, x.IndexCommitted(ctx, 4, []odconsensus.BatchHash{h}))

		status, height, err := x.TxStatus(ctx, h)
		require.NoError(t, err)
		require.Equal(t, odstore.TxStatusCommitted, status)
		require.Equal(t, uint64(2), height)
	})

	t.Run("rejected may later commit", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		x := newIndex(t)

		h := odconsensustest.NewBatchFixture().NextBatch(1).Hash
		require.NoError(t, x.IndexRejected(ctx, 1, []odconsensus.BatchHash{h}))
		require.NoError(t, x.IndexCommitted(ctx, 2, []odconsensus.BatchHash{h}))

		status, height, err := x.TxStatus(ctx, h)
		require.NoError(t, err)
		require.Equal(t, odstore.TxStatusCommitted, status)
		require.Equal(t, uint64(2), height)
	})
}
