// Package odconsensustest contains fixtures for tests
// that need realistic batches and proposals.
package odconsensustest

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordian-engine/godos/od/odconsensus"
	"golang.org/x/crypto/blake2b"
)

// BatchFixture produces deterministic, uniquely hashed batches.
//
// The zero value is not usable; call [NewBatchFixture].
type BatchFixture struct {
	// Prefix is mixed into every transaction,
	// so that two fixtures with different prefixes never produce the same batch.
	Prefix string

	// Base time for CreatedAt; each batch is one millisecond later than the last.
	Epoch time.Time

	n int
}

// NewBatchFixture returns a fixture with an arbitrary fixed epoch.
func NewBatchFixture() *BatchFixture {
	return &BatchFixture{
		Prefix: "batch",
		Epoch:  time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NextBatch returns a new batch containing nTxs transactions.
func (f *BatchFixture) NextBatch(nTxs int) odconsensus.Batch {
	idx := f.n
	f.n++

	txs := make([][]byte, nTxs)
	for i := range txs {
		txs[i] = []byte(fmt.Sprintf("%s-%d-tx-%d", f.Prefix, idx, i))
	}

	return odconsensus.Batch{
		Hash:         HashTransactions(txs),
		Transactions: txs,
		CreatedAt:    f.Epoch.Add(time.Duration(idx) * time.Millisecond),
	}
}

// NextBatches returns n new batches, each with nTxs transactions.
func (f *BatchFixture) NextBatches(n, nTxs int) []odconsensus.Batch {
	out := make([]odconsensus.Batch, n)
	for i := range out {
		out[i] = f.NextBatch(nTxs)
	}
	return out
}

// HashTransactions computes a blake2b-256 digest over length-prefixed transactions.
// Production batch hashes come from the validation layer;
// this is only a stable stand-in for tests and demos.
func HashTransactions(txs [][]byte) odconsensus.BatchHash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Errorf("BUG: blake2b without key cannot fail: %w", err))
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

// Proposal builds a proposal for round r containing batches, in order.
func Proposal(r odconsensus.Round, batches ...odconsensus.Batch) *odconsensus.Proposal {
	return &odconsensus.Proposal{
		Round:   r,
		Batches: batches,
	}
}
