package odp2ptest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odp2p"
	"github.com/gordian-engine/godos/od/odp2p/odp2ptest"
)

func TestNetwork_requestProposal(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	srvA := odp2ptest.NewMapServer()
	ta := n.Join("a", srvA)
	tb := n.Join("b", odp2ptest.NewMapServer())

	require.Equal(t, odp2p.PeerID("a"), ta.Self())
	require.Equal(t, []odp2p.PeerID{"b"}, n.Peers("a"))

	r := odconsensus.Round{Height: 3}
	want := odconsensustest.Proposal(r)
	srvA.SetProposal(want)

	got, err := tb.RequestProposal(context.Background(), "a", r)
	require.NoError(t, err)
	require.Same(t, want, got)
	require.Equal(t, 1, n.RequestCount("a"))

	_, err = tb.RequestProposal(context.Background(), "a", r.NextHeight())
	require.ErrorIs(t, err, odp2p.ErrNoProposal)

	_, err = tb.RequestProposal(context.Background(), "nobody", r)
	require.Error(t, err)

	n.SetDown("a", true)
	_, err = tb.RequestProposal(context.Background(), "a", r)
	require.Error(t, err)
}

func TestNetwork_responseDelay(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	srv := odp2ptest.NewMapServer()
	n.Join("a", srv)
	tb := n.Join("b", odp2ptest.NewMapServer())

	r := odconsensus.Round{Height: 1}
	srv.SetProposal(odconsensustest.Proposal(r))
	n.SetResponseDelay("a", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tb.RequestProposal(ctx, "a", r)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNetwork_joinTwicePanics(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	n.Join("a", odp2ptest.NewMapServer())
	require.Panics(t, func() {
		n.Join("a", odp2ptest.NewMapServer())
	})
}

func TestNetwork_relay(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	ids := []odp2p.PeerID{"a", "b", "c", "d", "e", "f", "g"}
	servers := make(map[odp2p.PeerID]*odp2ptest.MapServer, len(ids))
	for _, id := range ids {
		servers[id] = odp2ptest.NewMapServer()
		n.Join(id, servers[id])
	}

	bs := odconsensustest.NewBatchFixture().NextBatches(2, 1)
	n.Relay(context.Background(), "d", bs)

	for _, id := range ids {
		got := servers[id].Received()
		if id == "d" {
			require.Empty(t, got)
			continue
		}
		require.Equal(t, [][]odconsensus.Batch{bs}, got, "peer %s", id)
	}
}

func TestNetwork_relaySkipsDownSubtree(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	ids := []odp2p.PeerID{"a", "b", "c", "d"}
	servers := make(map[odp2p.PeerID]*odp2ptest.MapServer, len(ids))
	for _, id := range ids {
		servers[id] = odp2ptest.NewMapServer()
		n.Join(id, servers[id])
	}

	// Rooted at a: b and c are children of a, and d is the child of b.
	n.SetDown("b", true)
	n.Relay(context.Background(), "a", odconsensustest.NewBatchFixture().NextBatches(1, 1))

	require.Empty(t, servers["b"].Received())
	require.Empty(t, servers["d"].Received())
	require.Len(t, servers["c"].Received(), 1)
}

func TestTransport_pushBatches(t *testing.T) {
	t.Parallel()

	n := odp2ptest.NewNetwork(2)
	srv := odp2ptest.NewMapServer()
	n.Join("a", srv)
	tb := n.Join("b", odp2ptest.NewMapServer())

	bs := odconsensustest.NewBatchFixture().NextBatches(1, 1)
	require.NoError(t, tb.PushBatches(context.Background(), "a", bs))
	require.Equal(t, [][]odconsensus.Batch{bs}, srv.Received())

	n.SetDown("a", true)
	require.Error(t, tb.PushBatches(context.Background(), "a", bs))
}
