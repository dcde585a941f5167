// Package odproposal assembles proposals from pending batches.
package odproposal

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// Limits bound the size of a single proposal.
type Limits struct {
	// Maximum number of batches in one proposal. Required.
	MaxBatchesPerProposal int

	// Batches with more transactions than this are left out of the proposal,
	// but are not discarded from the pending cache. Required.
	MaxTransactionsPerBatch int

	// Optional cap on the total transaction count of a proposal.
	// Zero means no cap.
	// Assembly stops at the first batch that would exceed the cap,
	// so that later batches do not overtake earlier ones.
	MaxTransactionsPerProposal int
}

// Validate reports any missing or invalid limit.
func (l Limits) Validate() error {
	var errs []error
	if l.MaxBatchesPerProposal <= 0 {
		errs = append(errs, fmt.Errorf("max batches per proposal must be positive (got %d)", l.MaxBatchesPerProposal))
	}
	if l.MaxTransactionsPerBatch <= 0 {
		errs = append(errs, fmt.Errorf("max transactions per batch must be positive (got %d)", l.MaxTransactionsPerBatch))
	}
	if l.MaxTransactionsPerProposal < 0 {
		errs = append(errs, fmt.Errorf("max transactions per proposal must not be negative (got %d)", l.MaxTransactionsPerProposal))
	}
	return errors.Join(errs...)
}

// Factory builds proposals under a fixed set of [Limits].
//
// A Factory holds no mutable state and is safe for concurrent use.
type Factory struct {
	limits Limits

	// Overridable in tests.
	now func() time.Time
}

// NewFactory returns a Factory enforcing limits.
func NewFactory(limits Limits) (*Factory, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proposal limits: %w", err)
	}
	return &Factory{limits: limits, now: time.Now}, nil
}

// Limits returns the limits the factory enforces.
func (f *Factory) Limits() Limits {
	return f.limits
}

// BuildResult is the outcome of [*Factory.Build].
type BuildResult struct {
	Proposal *odconsensus.Proposal

	// Number of batches passed over because they exceeded MaxTransactionsPerBatch.
	Oversized int

	// Number of eligible batches not considered
	// because a proposal-wide limit was reached first.
	Deferred int
}

// Build takes batches from pending, in order, until a limit is reached.
// The returned proposal is never nil;
// when no batch qualifies it is an empty proposal for round.
func (f *Factory) Build(pending []odconsensus.Batch, round odconsensus.Round) BuildResult {
	var res BuildResult

	batches := make([]odconsensus.Batch, 0, min(len(pending), f.limits.MaxBatchesPerProposal))
	txCount := 0

	for i, b := range pending {
		if len(batches) >= f.limits.MaxBatchesPerProposal {
			res.Deferred = len(pending) - i
			break
		}

		n := b.TxCount()
		if n > f.limits.MaxTransactionsPerBatch {
			res.Oversized++
			continue
		}

		if txCap := f.limits.MaxTransactionsPerProposal; txCap > 0 && txCount+n > txCap {
			res.Deferred = len(pending) - i
			break
		}

		batches = append(batches, b)
		txCount += n
	}

	res.Proposal = &odconsensus.Proposal{
		Round:     round,
		Batches:   batches,
		CreatedAt: f.now(),
	}
	return res
}
