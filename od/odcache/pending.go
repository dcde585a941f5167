package odcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// PendingBatches holds batches that have not yet been excluded
// by a commit, duplicate, or in-flight notification.
//
// Batches are kept in insertion order, which is the order
// in which they are offered to the proposal factory.
//
// PendingBatches methods are safe to call concurrently.
type PendingBatches struct {
	mu sync.RWMutex

	// Insertion-ordered entries.
	// Excluded entries are tombstoned and compacted lazily.
	entries []pendingEntry
	index   map[odconsensus.BatchHash]int
	live    int

	// Hashes that must not be re-admitted.
	// Only updated while mu is held, so that an Insert racing with an Exclude
	// observes either the pre- or post-exclusion state.
	excluded *lru.Cache[odconsensus.BatchHash, odconsensus.ExclusionReason]
}

type pendingEntry struct {
	Batch odconsensus.Batch
	Dead  bool
}

// compactMinDead is the number of tombstones tolerated before
// compaction is considered at all.
const compactMinDead = 64

// NewPendingBatches returns an empty cache that remembers up to
// exclusionMemory committed or duplicate hashes.
// Refusing re-admission is only guaranteed for the exclusionMemory
// most recently excluded hashes; older ones are forgotten.
func NewPendingBatches(exclusionMemory int) (*PendingBatches, error) {
	excluded, err := lru.New[odconsensus.BatchHash, odconsensus.ExclusionReason](exclusionMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create exclusion memory: %w", err)
	}

	return &PendingBatches{
		index:    make(map[odconsensus.BatchHash]int),
		excluded: excluded,
	}, nil
}

// Insert adds every batch whose hash is not already pending
// and has not been excluded as committed or duplicate.
// The first batch inserted for a hash wins; later copies are ignored.
//
// It returns the number of batches actually added.
func (c *PendingBatches) Insert(batches []odconsensus.Batch) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, b := range batches {
		if _, ok := c.index[b.Hash]; ok {
			continue
		}
		if c.excluded.Contains(b.Hash) {
			continue
		}

		c.index[b.Hash] = len(c.entries)
		c.entries = append(c.entries, pendingEntry{Batch: b})
		c.live++
		added++
	}

	return added
}

// Exclude removes every pending batch matching one of hashes.
// Unknown hashes are ignored,
// though committed and duplicate hashes are still remembered
// so that a later Insert of the same batch is refused.
//
// It returns the number of batches actually removed.
func (c *PendingBatches) Exclude(reason odconsensus.ExclusionReason, hashes []odconsensus.BatchHash) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	remember := reason.Remembered()

	removed := 0
	for _, h := range hashes {
		if remember {
			c.excluded.Add(h, reason)
		}

		i, ok := c.index[h]
		if !ok {
			continue
		}

		delete(c.index, h)
		c.entries[i] = pendingEntry{Dead: true}
		c.live--
		removed++
	}

	c.maybeCompactLocked()

	return removed
}

// maybeCompactLocked drops tombstones once they outnumber live entries.
func (c *PendingBatches) maybeCompactLocked() {
	dead := len(c.entries) - c.live
	if dead < compactMinDead || dead < c.live {
		return
	}

	compacted := make([]pendingEntry, 0, c.live)
	for _, e := range c.entries {
		if e.Dead {
			continue
		}
		c.index[e.Batch.Hash] = len(compacted)
		compacted = append(compacted, e)
	}
	c.entries = compacted
}

// SnapshotOrdered returns the pending batches in insertion order.
// The returned slice is owned by the caller.
func (c *PendingBatches) SnapshotOrdered() []odconsensus.Batch {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshotLocked()
}

func (c *PendingBatches) snapshotLocked() []odconsensus.Batch {
	out := make([]odconsensus.Batch, 0, c.live)
	for _, e := range c.entries {
		if !e.Dead {
			out = append(out, e.Batch)
		}
	}
	return out
}

// Has reports whether a batch with hash h is pending.
func (c *PendingBatches) Has(h odconsensus.BatchHash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.index[h]
	return ok
}

// IsExcluded reports whether h is remembered as committed or duplicate,
// along with the reason it was excluded.
func (c *PendingBatches) IsExcluded(h odconsensus.BatchHash) (odconsensus.ExclusionReason, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.excluded.Peek(h)
}

// Len returns the number of pending batches.
func (c *PendingBatches) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.live
}

// IsEmpty reports whether no batches are pending.
func (c *PendingBatches) IsEmpty() bool {
	return c.Len() == 0
}

// ForEach calls fn for each pending batch in insertion order,
// stopping early if fn returns false.
//
// fn runs against a snapshot, without the cache lock held,
// so it may safely call other methods on c.
func (c *PendingBatches) ForEach(fn func(odconsensus.Batch) bool) {
	for _, b := range c.SnapshotOrdered() {
		if !fn(b) {
			return
		}
	}
}
