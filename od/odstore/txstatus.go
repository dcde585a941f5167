package odstore

import (
	"context"

	"github.com/gordian-engine/godos/od/odconsensus"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=TxStatus -trimprefix=TxStatus

// TxStatus is the outcome recorded for a batch.
type TxStatus uint8

const (
	// The hash has not been indexed.
	TxStatusUnknown TxStatus = iota

	TxStatusCommitted
	TxStatusRejected
)

// TxStatusIndex records the outcome of batches
// and answers status queries by hash.
type TxStatusIndex interface {
	// IndexCommitted records hashes as committed at height.
	IndexCommitted(ctx context.Context, height uint64, hashes []odconsensus.BatchHash) error

	// IndexRejected records hashes as rejected at height.
	// A hash already committed stays committed.
	IndexRejected(ctx context.Context, height uint64, hashes []odconsensus.BatchHash) error

	// TxStatus returns the recorded status of h and the height it was recorded at.
	// Unindexed hashes report TxStatusUnknown and a zero height, with no error.
	TxStatus(ctx context.Context, h odconsensus.BatchHash) (TxStatus, uint64, error)
}
