package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odforward"
	"github.com/gordian-engine/godos/od/odp2p"
)

// batchSink receives generated batches; satisfied by [*odlibp2p.BatchGossip].
type batchSink interface {
	Publish(context.Context, []odconsensus.Batch) error
}

// blockCommitter is satisfied by [*odcommit.Committer].
type blockCommitter interface {
	Commit(context.Context, odconsensus.CommittedBlock) error
}

// batchForwarder is satisfied by [*odforward.Forwarder].
type batchForwarder interface {
	SetProposers([]odforward.Proposer)
	Forward(context.Context, []odconsensus.Batch) error
	Forget([]odconsensus.BatchHash)
}

// demoDriver stands in for clients and for the consensus engine.
// It generates batches at a fixed rate and, at every round interval,
// reports the next height as reached and commits the resulting proposal.
// Every node running the demo acts as the proposer of its own chain.
type demoDriver struct {
	log  *slog.Logger
	cfg  DemoConfig
	name string

	svc interface {
		odconsensus.OrderingService
		CurrentRound() odconsensus.Round
	}
	gossip    batchSink
	committer blockCommitter

	// Optional; nil disables forwarding.
	forwarder     batchForwarder
	peers         []odp2p.PeerID
	forwardRounds int

	n uint64
}

func (d *demoDriver) Run(ctx context.Context) {
	batchTicker := time.NewTicker(d.cfg.BatchInterval)
	defer batchTicker.Stop()
	roundTicker := time.NewTicker(d.cfg.RoundInterval)
	defer roundTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-batchTicker.C:
			d.offerBatch(ctx)

		case <-roundTicker.C:
			d.advance(ctx)
		}
	}
}

func (d *demoDriver) offerBatch(ctx context.Context) {
	b := d.nextBatch()
	bs := []odconsensus.Batch{b}

	d.svc.OnBatches(bs)
	if err := d.gossip.Publish(ctx, bs); err != nil && ctx.Err() == nil {
		d.log.Debug("Failed to gossip batch", "err", err)
	}

	if d.forwarder != nil {
		if err := d.forwarder.Forward(ctx, bs); err != nil && ctx.Err() == nil {
			d.log.Debug("Failed to forward batch", "err", err)
		}
	}
}

func (d *demoDriver) advance(ctx context.Context) {
	r := d.svc.CurrentRound().NextHeight()
	d.svc.OnCollaborationOutcome(r)

	if d.forwarder != nil {
		d.forwarder.SetProposers(odforward.UpcomingProposers(d.peers, r.NextHeight(), d.forwardRounds))
	}

	p, status := d.svc.RequestProposal(ctx, r)
	if status != odconsensus.ProposalStatusPresent {
		d.log.Info("No proposal for round", "round", r, "status", status)
		return
	}

	if err := d.committer.Commit(ctx, odconsensus.CommittedBlock{
		Height:  r.Height,
		Round:   r,
		Batches: p.Batches,
	}); err != nil {
		d.log.Warn("Failed to commit demo block", "round", r, "err", err)
		return
	}

	if d.forwarder != nil {
		hashes := make([]odconsensus.BatchHash, len(p.Batches))
		for i, b := range p.Batches {
			hashes[i] = b.Hash
		}
		d.forwarder.Forget(hashes)
	}
}

func (d *demoDriver) nextBatch() odconsensus.Batch {
	idx := d.n
	d.n++

	txs := make([][]byte, d.cfg.TxsPerBatch)
	for i := range txs {
		txs[i] = []byte(fmt.Sprintf("%s/%d/%d", d.name, idx, i))
	}

	return odconsensus.Batch{
		Hash:         hashTransactions(txs),
		Transactions: txs,
		CreatedAt:    time.Now(),
	}
}

func hashTransactions(txs [][]byte) odconsensus.BatchHash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Errorf("BUG: unkeyed blake2b cannot fail: %w", err))
	}

	var lenBuf [binary.MaxVarintLen64]byte
	for _, tx := range txs {
		n := binary.PutUvarint(lenBuf[:], uint64(len(tx)))
		_, _ = h.Write(lenBuf[:n])
		_, _ = h.Write(tx)
	}

	var out odconsensus.BatchHash
	copy(out[:], h.Sum(nil))
	return out
}
