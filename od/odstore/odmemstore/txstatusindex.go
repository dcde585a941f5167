package odmemstore

import (
	"context"
	"sync"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odstore"
)

// TxStatusIndex is an in-memory [odstore.TxStatusIndex].
type TxStatusIndex struct {
	mu       sync.RWMutex
	statuses map[odconsensus.BatchHash]txRecord
}

type txRecord struct {
	Status odstore.TxStatus
	Height uint64
}

var _ odstore.TxStatusIndex = (*TxStatusIndex)(nil)

func NewTxStatusIndex() *TxStatusIndex {
	return &TxStatusIndex{
		statuses: make(map[odconsensus.BatchHash]txRecord),
	}
}

func (x *TxStatusIndex) IndexCommitted(_ context.Context, height uint64, hashes []odconsensus.BatchHash) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, h := range hashes {
		// The first commit of a hash is the one reported.
		if x.statuses[h].Status == odstore.TxStatusCommitted {
			continue
		}
		x.statuses[h] = txRecord{Status: odstore.TxStatusCommitted, Height: height}
	}
	return nil
}

func (x *TxStatusIndex) IndexRejected(_ context.Context, height uint64, hashes []odconsensus.BatchHash) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, h := range hashes {
		if x.statuses[h].Status == odstore.TxStatusCommitted {
			continue
		}
		x.statuses[h] = txRecord{Status: odstore.TxStatusRejected, Height: height}
	}
	return nil
}

func (x *TxStatusIndex) TxStatus(_ context.Context, h odconsensus.BatchHash) (odstore.TxStatus, uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec := x.statuses[h]
	return rec.Status, rec.Height, nil
}
