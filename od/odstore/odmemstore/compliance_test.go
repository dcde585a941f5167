package odmemstore_test

import (
	"testing"

	"github.com/gordian-engine/godos/od/odstore"
	"github.com/gordian-engine/godos/od/odstore/odmemstore"
	"github.com/gordian-engine/godos/od/odstore/odstoretest"
)

func TestBlockStoreCompliance(t *testing.T) {
	odstoretest.TestBlockStoreCompliance(t, func(*testing.T) odstore.BlockStore {
		return odmemstore.NewBlockStore()
	})
}

func TestTxStatusIndexCompliance(t *testing.T) {
	odstoretest.TestTxStatusIndexCompliance(t, func(*testing.T) odstore.TxStatusIndex {
		return odmemstore.NewTxStatusIndex()
	})
}
