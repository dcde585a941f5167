package oddebug_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/internal/gtest"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
	"github.com/gordian-engine/godos/od/oddebug"
	"github.com/gordian-engine/godos/od/odmetrics"
	"github.com/gordian-engine/godos/od/odproposal"
	"github.com/gordian-engine/godos/od/odservice"
	"github.com/gordian-engine/godos/od/odstore/odmemstore"
)

type fixture struct {
	Service *odservice.Service
	Index   *odmemstore.TxStatusIndex
	Handler http.Handler
	Batches []odconsensus.Batch
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	log := gtest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m, err := odmetrics.New(reg, "godos")
	require.NoError(t, err)

	s, err := odservice.New(
		log,
		odservice.WithWindowSize(3),
		odservice.WithProposalLimits(odproposal.Limits{
			MaxBatchesPerProposal:   2,
			MaxTransactionsPerBatch: 5,
		}),
		odservice.WithMetrics(m),
	)
	require.NoError(t, err)

	bs := odconsensustest.NewBatchFixture().NextBatches(3, 2)
	s.OnBatches(bs)
	s.OnCollaborationOutcome(odconsensus.Round{Height: 4, Reject: 1})

	idx := odmemstore.NewTxStatusIndex()
	require.NoError(t, idx.IndexCommitted(context.Background(), 3, []odconsensus.BatchHash{bs[0].Hash}))

	return fixture{
		Service: s,
		Index:   idx,
		Handler: oddebug.NewHandler(log, oddebug.HTTPServerConfig{
			Service:       s,
			TxStatusIndex: idx,
			Gatherer:      reg,
		}),
		Batches: bs,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_round(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := get(t, f.Handler, "/round")
	require.Equal(t, http.StatusOK, w.Code)

	var r odconsensus.Round
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	require.Equal(t, odconsensus.Round{Height: 4, Reject: 1}, r)
}

func TestHandler_proposals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := get(t, f.Handler, "/proposals")
	require.Equal(t, http.StatusOK, w.Code)
	var rounds []odconsensus.Round
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rounds))
	require.Equal(t, []odconsensus.Round{{Height: 4, Reject: 1}}, rounds)

	w = get(t, f.Handler, "/proposals/4/1")
	require.Equal(t, http.StatusOK, w.Code)
	var p oddebug.ProposalSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, odconsensus.BatchHashes(f.Batches[:2]), p.Batches)
	require.Equal(t, 4, p.TxCount)

	w = get(t, f.Handler, "/proposals/4/0")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, f.Handler, "/proposals/4/99999999999")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_pendingBatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := get(t, f.Handler, "/batches/pending")
	require.Equal(t, http.StatusOK, w.Code)

	var s oddebug.PendingSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.Equal(t, 3, s.Count)
	require.Equal(t, odconsensus.BatchHashes(f.Batches), s.Hashes)
}

func TestHandler_txStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := get(t, f.Handler, "/txs/"+f.Batches[0].Hash.String())
	require.Equal(t, http.StatusOK, w.Code)
	var s oddebug.TxStatusSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.Equal(t, "Committed", s.Status)
	require.Equal(t, uint64(3), s.Height)

	w = get(t, f.Handler, "/txs/"+f.Batches[1].Hash.String())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.Equal(t, "Unknown", s.Status)

	w = get(t, f.Handler, "/txs/abcd")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_metrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := get(t, f.Handler, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "godos_pending_batches 3")
}

func TestHTTPServer_shutdownOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := oddebug.NewHTTPServer(ctx, gtest.NewLogger(t), oddebug.HTTPServerConfig{
		Listener: ln,
		Service:  f.Service,
	})

	resp, err := http.Get("http://" + ln.Addr().String() + "/round")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"Height":4`)

	cancel()
	srv.Wait()
}
