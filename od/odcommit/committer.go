// Package odcommit applies committed blocks to storage
// and feeds the resulting notifications to the ordering service.
package odcommit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odstore"
)

// exclusionNotifier is the subset of [odconsensus.OrderingService]
// the committer drives.
type exclusionNotifier interface {
	OnTxsCommitted([]odconsensus.BatchHash)
	OnDuplicates([]odconsensus.BatchHash)
}

// Committer persists committed blocks and then tells the ordering service
// which batches were committed and which were rejected.
type Committer struct {
	log *slog.Logger

	blocks odstore.BlockStore
	index  odstore.TxStatusIndex

	notify exclusionNotifier
}

// CommitterConfig holds the collaborators of a [Committer].
// All fields are required.
type CommitterConfig struct {
	BlockStore    odstore.BlockStore
	TxStatusIndex odstore.TxStatusIndex
	Service       odconsensus.OrderingService
}

// NewCommitter returns a Committer over the collaborators in cfg.
// It reports every missing collaborator in a single error.
func NewCommitter(log *slog.Logger, cfg CommitterConfig) (*Committer, error) {
	var errs []error
	if cfg.BlockStore == nil {
		errs = append(errs, errors.New("block store required"))
	}
	if cfg.TxStatusIndex == nil {
		errs = append(errs, errors.New("tx status index required"))
	}
	if cfg.Service == nil {
		errs = append(errs, errors.New("ordering service required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Committer{
		log: log,

		blocks: cfg.BlockStore,
		index:  cfg.TxStatusIndex,

		notify: cfg.Service,
	}, nil
}

// Commit saves cb, indexes the status of its batches,
// and then excludes them from the ordering service.
//
// Committing the same height twice is reported as an error
// wrapping [odstore.ErrBlockExists], and the service is not notified again.
// Once the block is saved the service is notified even if indexing fails,
// since a retry would be refused by the block store;
// the indexing error is still returned.
func (c *Committer) Commit(ctx context.Context, cb odconsensus.CommittedBlock) error {
	if err := c.blocks.SaveBlock(ctx, cb); err != nil {
		return fmt.Errorf("failed to save block at height %d: %w", cb.Height, err)
	}

	committed := odconsensus.BatchHashes(cb.Batches)

	var errs []error
	if err := c.index.IndexCommitted(ctx, cb.Height, committed); err != nil {
		errs = append(errs, fmt.Errorf("failed to index committed batches at height %d: %w", cb.Height, err))
	}
	if err := c.index.IndexRejected(ctx, cb.Height, cb.Rejected); err != nil {
		errs = append(errs, fmt.Errorf("failed to index rejected batches at height %d: %w", cb.Height, err))
	}

	if len(committed) > 0 {
		c.notify.OnTxsCommitted(committed)
	}
	if len(cb.Rejected) > 0 {
		c.notify.OnDuplicates(cb.Rejected)
	}

	if err := errors.Join(errs...); err != nil {
		c.log.Warn(
			"Committed block with incomplete index",
			"height", cb.Height, "round", cb.Round, "err", err,
		)
		return err
	}

	c.log.Info(
		"Committed block",
		"height", cb.Height, "round", cb.Round,
		"batches", len(committed), "rejected", len(cb.Rejected),
	)
	return nil
}

// Replay notifies the ordering service of every block already in the store,
// so that a restarted service does not propose batches committed before the restart.
// It does not modify the stores.
func (c *Committer) Replay(ctx context.Context) error {
	var n int
	err := c.blocks.ForEachBlock(ctx, func(cb odconsensus.CommittedBlock) error {
		n++
		if hs := odconsensus.BatchHashes(cb.Batches); len(hs) > 0 {
			c.notify.OnTxsCommitted(hs)
		}
		if len(cb.Rejected) > 0 {
			c.notify.OnDuplicates(cb.Rejected)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay blocks: %w", err)
	}

	c.log.Info("Replayed committed blocks", "n", n)
	return nil
}
