// Package odservice contains [Service], the on-demand ordering service.
//
// A Service turns an unordered inflow of transaction batches
// into at most one proposal per consensus round.
// It owns two independently locked caches:
// the pending batches offered through [*Service.OnBatches],
// and a window of recent proposals keyed by round.
//
// The service reacts to notifications from the consensus driver
// ([*Service.OnCollaborationOutcome], [*Service.OnTxsCommitted], [*Service.OnDuplicates])
// and answers proposal requests, fetching from peers through a [ProposalFetcher]
// when the requested round is not available locally.
// No network call is made while either cache is locked.
package odservice
