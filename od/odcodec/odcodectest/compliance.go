// Package odcodectest contains a compliance suite for [odcodec.MarshalCodec] implementations.
package odcodectest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
)

// TestMarshalCodecCompliance runs the compliance suite against c.
func TestMarshalCodecCompliance(t *testing.T, c odcodec.MarshalCodec) {
	t.Run("proposal", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		p := &odconsensus.Proposal{
			Round:     odconsensus.Round{Height: 12, Reject: 3},
			Batches:   fx.NextBatches(3, 2),
			CreatedAt: fx.Epoch.Add(time.Second),
		}

		b, err := c.MarshalProposal(p)
		require.NoError(t, err)

		var got odconsensus.Proposal
		require.NoError(t, c.UnmarshalProposal(b, &got))
		requireProposalEqual(t, p, &got)
	})

	t.Run("empty proposal", func(t *testing.T) {
		t.Parallel()

		p := &odconsensus.Proposal{Round: odconsensus.Round{Height: 1}}
		b, err := c.MarshalProposal(p)
		require.NoError(t, err)

		var got odconsensus.Proposal
		require.NoError(t, c.UnmarshalProposal(b, &got))
		require.Equal(t, p.Round, got.Round)
		require.Empty(t, got.Batches)
	})

	t.Run("block", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		bs := fx.NextBatches(3, 1)
		cb := odconsensus.CommittedBlock{
			Height:   5,
			Round:    odconsensus.Round{Height: 5, Reject: 1},
			Batches:  bs[:2],
			Rejected: []odconsensus.BatchHash{bs[2].Hash},
		}

		b, err := c.MarshalBlock(cb)
		require.NoError(t, err)

		var got odconsensus.CommittedBlock
		require.NoError(t, c.UnmarshalBlock(b, &got))
		require.Equal(t, cb.Height, got.Height)
		require.Equal(t, cb.Round, got.Round)
		require.Equal(t, cb.Rejected, got.Rejected)
		requireBatchesEqual(t, cb.Batches, got.Batches)
	})

	t.Run("messages", func(t *testing.T) {
		t.Parallel()

		fx := odconsensustest.NewBatchFixture()
		r := odconsensus.Round{Height: 2}

		req := odcodec.Message{ProposalRequest: &odcodec.ProposalRequest{ID: "req-1", Round: r}}
		b, err := c.MarshalMessage(req)
		require.NoError(t, err)
		var got odcodec.Message
		require.NoError(t, c.UnmarshalMessage(b, &got))
		require.Equal(t, req, got)

		p := &odconsensus.Proposal{Round: r, Batches: fx.NextBatches(1, 1), CreatedAt: fx.Epoch}
		resp := odcodec.Message{ProposalResponse: &odcodec.ProposalResponse{ID: "req-1", Proposal: p}}
		b, err = c.MarshalMessage(resp)
		require.NoError(t, err)
		got = odcodec.Message{}
		require.NoError(t, c.UnmarshalMessage(b, &got))
		require.NotNil(t, got.ProposalResponse)
		require.Equal(t, "req-1", got.ProposalResponse.ID)
		requireProposalEqual(t, p, got.ProposalResponse.Proposal)

		none := odcodec.Message{ProposalResponse: &odcodec.ProposalResponse{ID: "req-2"}}
		b, err = c.MarshalMessage(none)
		require.NoError(t, err)
		got = odcodec.Message{}
		require.NoError(t, c.UnmarshalMessage(b, &got))
		require.Equal(t, none, got)

		bs := fx.NextBatches(2, 3)
		push := odcodec.Message{BatchPush: &odcodec.BatchPush{Batches: bs}}
		b, err = c.MarshalMessage(push)
		require.NoError(t, err)
		got = odcodec.Message{}
		require.NoError(t, c.UnmarshalMessage(b, &got))
		require.NotNil(t, got.BatchPush)
		requireBatchesEqual(t, bs, got.BatchPush.Batches)

		_, err = c.MarshalMessage(odcodec.Message{})
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()

		var p odconsensus.Proposal
		require.Error(t, c.UnmarshalProposal([]byte("\x00not valid"), &p))

		_, err := c.UnmarshalBatches([]byte("\x00not valid"))
		require.Error(t, err)

		var m odcodec.Message
		require.Error(t, c.UnmarshalMessage([]byte("\x00not valid"), &m))
	})
}

func requireProposalEqual(t *testing.T, want, got *odconsensus.Proposal) {
	t.Helper()

	require.Equal(t, want.Round, got.Round)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created at: want %s, got %s", want.CreatedAt, got.CreatedAt)
	requireBatchesEqual(t, want.Batches, got.Batches)
}

func requireBatchesEqual(t *testing.T, want, got []odconsensus.Batch) {
	t.Helper()

	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Hash, got[i].Hash)
		require.Equal(t, want[i].Transactions, got[i].Transactions)
		require.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}
