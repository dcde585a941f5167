package odstore

import (
	"context"
	"errors"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// ErrBlockNotFound is returned by [BlockStore.LoadBlock]
// when no block was saved at the requested height.
var ErrBlockNotFound = errors.New("block not found")

// ErrBlockExists is returned by [BlockStore.SaveBlock]
// when a block was already saved at the height.
var ErrBlockExists = errors.New("block already saved at height")

// BlockStore stores committed blocks keyed by height.
type BlockStore interface {
	// SaveBlock saves cb under cb.Height.
	// A height may be saved only once; a second save returns an error wrapping [ErrBlockExists].
	SaveBlock(ctx context.Context, cb odconsensus.CommittedBlock) error

	// LoadBlock returns the block saved at height,
	// or [ErrBlockNotFound].
	LoadBlock(ctx context.Context, height uint64) (odconsensus.CommittedBlock, error)

	// BlockCount returns the number of saved blocks.
	BlockCount(ctx context.Context) (uint64, error)

	// ForEachBlock calls fn for every saved block in ascending height order,
	// stopping at the first error returned by fn.
	ForEachBlock(ctx context.Context, fn func(odconsensus.CommittedBlock) error) error
}
