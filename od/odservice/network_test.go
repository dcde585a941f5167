package odservice_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/internal/gtest"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/odmetrics"
	"github.com/gordian-engine/godos/od/odp2p"
	"github.com/gordian-engine/godos/od/odp2p/odp2ptest"
	"github.com/gordian-engine/godos/od/odservice"
)

type networkNode struct {
	ID      odp2p.PeerID
	Service *odservice.Service
	Fetcher *odp2p.PeerFetcher
	T       *odp2ptest.Transport
}

func newNetwork(t *testing.T, ids ...odp2p.PeerID) (*odp2ptest.Network, []networkNode) {
	t.Helper()

	n := odp2ptest.NewNetwork(2)
	nodes := make([]networkNode, len(ids))
	for i, id := range ids {
		log := gtest.NewLogger(t).With("node", id)

		// pf is set once the service has joined the network.
		var pf *odp2p.PeerFetcher
		s, err := odservice.New(
			log.With("sys", "service"),
			odservice.WithWindowSize(4),
			odservice.WithProposalLimits(defaultLimits),
			odservice.WithFetcher(fetcherFunc(func(ctx context.Context, r odconsensus.Round) (*odconsensus.Proposal, error) {
				return pf.FetchProposal(ctx, r)
			})),
			odservice.WithFetchTimeout(200*time.Millisecond),
		)
		require.NoError(t, err)

		tr := n.Join(id, s)
		pf = odp2p.NewPeerFetcher(log.With("sys", "fetcher"), tr, odp2p.PeerFetcherConfig{Parallelism: 2})

		nodes[i] = networkNode{ID: id, Service: s, Fetcher: pf, T: tr}
	}

	for _, nd := range nodes {
		nd.Fetcher.SetPeers(n.Peers(nd.ID))
	}
	return n, nodes
}

type fetcherFunc func(context.Context, odconsensus.Round) (*odconsensus.Proposal, error)

func (f fetcherFunc) FetchProposal(ctx context.Context, r odconsensus.Round) (*odconsensus.Proposal, error) {
	return f(ctx, r)
}

func TestService_network_fetchFromPeer(t *testing.T) {
	t.Parallel()

	_, nodes := newNetwork(t, "a", "b", "c")
	a, b := nodes[0], nodes[1]

	bs := odconsensustest.NewBatchFixture().NextBatches(4, 1)
	a.Service.OnBatches(bs)
	b.Service.OnBatches(bs)

	r := odconsensus.Round{Height: 1}
	a.Service.OnCollaborationOutcome(r)
	want, _ := a.Service.RequestProposal(context.Background(), r)

	got, status := b.Service.RequestProposal(context.Background(), r)
	require.Equal(t, odconsensus.ProposalStatusPresent, status)
	require.Same(t, want, got)

	// b now treats the fetched batches as in flight.
	var pending []odconsensus.Batch
	b.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
	require.Equal(t, bs[3:], pending)

	// b's own outcome for the round keeps the fetched proposal.
	b.Service.OnCollaborationOutcome(r)
	got, _ = b.Service.RequestProposal(context.Background(), r)
	require.Same(t, want, got)
}

func TestService_network_unreachablePeers(t *testing.T) {
	t.Parallel()

	n, nodes := newNetwork(t, "a", "b", "c")
	a, b, c := nodes[0], nodes[1], nodes[2]

	r := odconsensus.Round{Height: 2}
	a.Service.OnCollaborationOutcome(r)

	n.SetDown(a.ID, true)
	p, status := b.Service.RequestProposal(context.Background(), r)
	require.Nil(t, p)
	require.Equal(t, odconsensus.ProposalStatusNotYetAvailable, status)

	// A slow peer is abandoned at the fetch timeout, and the caller may retry.
	n.SetDown(a.ID, false)
	n.SetResponseDelay(a.ID, time.Hour)
	p, status = c.Service.RequestProposal(context.Background(), r)
	require.Nil(t, p)
	require.Equal(t, odconsensus.ProposalStatusNotYetAvailable, status)

	n.SetResponseDelay(a.ID, 0)
	p, status = c.Service.RequestProposal(context.Background(), r)
	require.NotNil(t, p)
	require.Equal(t, odconsensus.ProposalStatusPresent, status)
}

func TestService_network_relayBatches(t *testing.T) {
	t.Parallel()

	n, nodes := newNetwork(t, "a", "b", "c", "d", "e")

	bs := odconsensustest.NewBatchFixture().NextBatches(2, 1)
	nodes[2].Service.OnBatches(bs)
	n.Relay(context.Background(), nodes[2].ID, bs)

	for _, nd := range nodes {
		var pending []odconsensus.Batch
		nd.Service.ForCachedBatches(func(p []odconsensus.Batch) { pending = p })
		require.Equal(t, bs, pending, "node %s", nd.ID)
	}
}

func TestService_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m, err := odmetrics.New(reg, "godos")
	require.NoError(t, err)

	s := newService(t, odservice.WithMetrics(m))

	bs := odconsensustest.NewBatchFixture().NextBatches(3, 1)
	s.OnBatches(bs)
	s.OnBatches(bs)
	s.OnTxsCommitted([]odconsensus.BatchHash{bs[0].Hash})

	r := odconsensus.Round{Height: 1}
	s.OnCollaborationOutcome(r)
	_, _ = s.RequestProposal(context.Background(), r)
	_, _ = s.RequestProposal(context.Background(), odconsensus.Round{Height: 3})

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP godos_batches_offered_total How many batches were offered to the pending cache, including duplicates.
# TYPE godos_batches_offered_total counter
godos_batches_offered_total 6
# HELP godos_batches_added_total How many batches were newly added to the pending cache.
# TYPE godos_batches_added_total counter
godos_batches_added_total 3
# HELP godos_pending_batches Number of batches in the pending cache.
# TYPE godos_pending_batches gauge
godos_pending_batches 2
`), "godos_batches_offered_total", "godos_batches_added_total", "godos_pending_batches"))
}
