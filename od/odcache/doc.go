// Package odcache contains the two concurrent stores
// backing the on-demand ordering service:
// [PendingBatches], the not-yet-committed batches in arrival order,
// and [Proposals], the per-round proposals retained for a sliding window.
//
// Each type carries its own lock.
// The ordering service never holds both locks at once,
// so batch ingestion does not wait behind proposal production.
package odcache
