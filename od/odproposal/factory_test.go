package odproposal_test

import (
	"testing"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odproposal"
	"github.com/stretchr/testify/require"
)

func TestNewFactory_validation(t *testing.T) {
	t.Parallel()

	_, err := odproposal.NewFactory(odproposal.Limits{})
	require.ErrorContains(t, err, "max batches per proposal")
	require.ErrorContains(t, err, "max transactions per batch")

	_, err = odproposal.NewFactory(odproposal.Limits{
		MaxBatchesPerProposal:      1,
		MaxTransactionsPerBatch:    1,
		MaxTransactionsPerProposal: -1,
	})
	require.ErrorContains(t, err, "max transactions per proposal")
}

func TestFactory_Build(t *testing.T) {
	t.Parallel()

	r := odconsensus.Round{Height: 10}

	t.Run("takes batches in order up to the batch limit", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		f, err := odproposal.NewFactory(odproposal.Limits{
			MaxBatchesPerProposal:   3,
			MaxTransactionsPerBatch: 10,
		})
		require.NoError(t, err)

		pending := fx.NextBatches(5, 2)
		res := f.Build(pending, r)

		require.Equal(t, r, res.Proposal.Round)
		require.Equal(t, pending[:3], res.Proposal.Batches)
		require.Equal(t, 2, res.Deferred)
		require.Zero(t, res.Oversized)
	})

	t.Run("skips oversized batches", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		f, err := odproposal.NewFactory(odproposal.Limits{
			MaxBatchesPerProposal:   3,
			MaxTransactionsPerBatch: 2,
		})
		require.NoError(t, err)

		small1 := fx.NextBatch(1)
		big := fx.NextBatch(3)
		small2 := fx.NextBatch(2)

		res := f.Build([]odconsensus.Batch{small1, big, small2}, r)
		require.Equal(t, []odconsensus.Batch{small1, small2}, res.Proposal.Batches)
		require.Equal(t, 1, res.Oversized)
		require.Zero(t, res.Deferred)
	})

	t.Run("stops at the proposal transaction cap", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		f, err := odproposal.NewFactory(odproposal.Limits{
			MaxBatchesPerProposal:      10,
			MaxTransactionsPerBatch:    10,
			MaxTransactionsPerProposal: 5,
		})
		require.NoError(t, err)

		a := fx.NextBatch(2)
		b := fx.NextBatch(2)
		c := fx.NextBatch(2) // Would overflow.
		d := fx.NextBatch(1) // Would fit, but must not overtake c.

		res := f.Build([]odconsensus.Batch{a, b, c, d}, r)
		require.Equal(t, []odconsensus.Batch{a, b}, res.Proposal.Batches)
		require.Equal(t, 4, res.Proposal.TxCount())
		require.Equal(t, 2, res.Deferred)
	})

	t.Run("empty pending yields an empty proposal", func(t *testing.T) {
		t.Parallel()

		f, err := odproposal.NewFactory(odproposal.Limits{
			MaxBatchesPerProposal:   1,
			MaxTransactionsPerBatch: 1,
		})
		require.NoError(t, err)

		res := f.Build(nil, r)
		require.NotNil(t, res.Proposal)
		require.True(t, res.Proposal.IsEmpty())
		require.Equal(t, r, res.Proposal.Round)
	})

	t.Run("does not alias the pending slice", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		f, err := odproposal.NewFactory(odproposal.Limits{
			MaxBatchesPerProposal:   2,
			MaxTransactionsPerBatch: 1,
		})
		require.NoError(t, err)

		pending := fx.NextBatches(2, 1)
		res := f.Build(pending, r)
		pending[0] = fx.NextBatch(1)

		require.NotEqual(t, pending[0].Hash, res.Proposal.Batches[0].Hash)
	})
}
