package odmemstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odcodec/odjson"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odstore"
)

// BlockStore is an in-memory [odstore.BlockStore].
//
// Blocks are held in encoded form,
// so that callers never share memory with the store
// and encoding problems surface as they would with a durable store.
type BlockStore struct {
	codec odcodec.MarshalCodec

	mu     sync.RWMutex
	blocks map[uint64][]byte
}

var _ odstore.BlockStore = (*BlockStore)(nil)

// NewBlockStore returns an empty BlockStore encoding blocks as JSON.
func NewBlockStore() *BlockStore {
	return NewBlockStoreWithCodec(odjson.MarshalCodec{})
}

// NewBlockStoreWithCodec returns an empty BlockStore using codec.
func NewBlockStoreWithCodec(codec odcodec.MarshalCodec) *BlockStore {
	return &BlockStore{
		codec:  codec,
		blocks: make(map[uint64][]byte),
	}
}

func (s *BlockStore) SaveBlock(_ context.Context, cb odconsensus.CommittedBlock) error {
	b, err := s.codec.MarshalBlock(cb)
	if err != nil {
		return fmt.Errorf("failed to encode block at height %d: %w", cb.Height, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[cb.Height]; ok {
		return fmt.Errorf("%w %d", odstore.ErrBlockExists, cb.Height)
	}
	s.blocks[cb.Height] = b
	return nil
}

func (s *BlockStore) LoadBlock(_ context.Context, height uint64) (odconsensus.CommittedBlock, error) {
	s.mu.RLock()
	b, ok := s.blocks[height]
	s.mu.RUnlock()

	if !ok {
		return odconsensus.CommittedBlock{}, fmt.Errorf("height %d: %w", height, odstore.ErrBlockNotFound)
	}

	var cb odconsensus.CommittedBlock
	if err := s.codec.UnmarshalBlock(b, &cb); err != nil {
		return odconsensus.CommittedBlock{}, fmt.Errorf("failed to decode block at height %d: %w", height, err)
	}
	return cb, nil
}

func (s *BlockStore) BlockCount(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}

func (s *BlockStore) ForEachBlock(ctx context.Context, fn func(odconsensus.CommittedBlock) error) error {
	s.mu.RLock()
	heights := make([]uint64, 0, len(s.blocks))
	for h := range s.blocks {
		heights = append(heights, h)
	}
	s.mu.RUnlock()

	slices.Sort(heights)

	for _, h := range heights {
		if err := ctx.Err(); err != nil {
			return err
		}

		cb, err := s.LoadBlock(ctx, h)
		if err != nil {
			return err
		}
		if err := fn(cb); err != nil {
			return err
		}
	}
	return nil
}
