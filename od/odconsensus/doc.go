// Package odconsensus contains the value types shared by the
// on-demand ordering subsystem:
// rounds, batch hashes, transaction batches, and proposals.
//
// Types in this package carry no synchronization of their own.
// Batches and proposals are immutable once they enter a cache;
// callers must treat any slices reachable from them as read-only.
package odconsensus
