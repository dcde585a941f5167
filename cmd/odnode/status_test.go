package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/internal/gtest"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/oddebug"
	"github.com/gordian-engine/godos/od/odproposal"
	"github.com/gordian-engine/godos/od/odservice"
)

func TestPrintStatus(t *testing.T) {
	t.Parallel()

	log := gtest.NewLogger(t)
	svc, err := odservice.New(
		log,
		odservice.WithWindowSize(2),
		odservice.WithProposalLimits(odproposal.Limits{MaxBatchesPerProposal: 1, MaxTransactionsPerBatch: 4}),
	)
	require.NoError(t, err)

	d := &demoDriver{cfg: DemoConfig{TxsPerBatch: 2}, name: "test"}
	svc.OnBatches([]odconsensus.Batch{d.nextBatch(), d.nextBatch()})
	svc.OnCollaborationOutcome(odconsensus.Round{Height: 3})

	socket := filepath.Join(t.TempDir(), "od.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := oddebug.NewHTTPServer(ctx, log, oddebug.HTTPServerConfig{Listener: ln, Service: svc})

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, newUnixClient(socket)))

	require.Contains(t, out.String(), "round:            3/0")
	require.Contains(t, out.String(), "pending batches:  2")
	require.Contains(t, out.String(), "stored proposals: 1")

	cancel()
	srv.Wait()
}

func TestPrintStatus_noServer(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := printStatus(&out, newUnixClient(filepath.Join(t.TempDir(), "missing.sock")))
	require.Error(t, err)
	require.Empty(t, out.String())
}
