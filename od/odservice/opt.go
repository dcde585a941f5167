package odservice

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odmetrics"
	"github.com/gordian-engine/godos/od/odproposal"
)

// Opt is an option for [New].
type Opt func(*config) error

type config struct {
	WindowSize int
	Limits     odproposal.Limits

	haveWindow bool
	haveLimits bool

	maxTxsOverride *int

	InitialRound odconsensus.Round

	Fetcher      ProposalFetcher
	FetchTimeout time.Duration

	ExclusionMemory int

	Metrics *odmetrics.Metrics
}

// DefaultExclusionMemory is the number of committed or duplicate batch hashes
// remembered when [WithExclusionMemory] is not given.
const DefaultExclusionMemory = 1 << 16

// DefaultFetchTimeout bounds a remote proposal fetch
// whose context carries no deadline,
// when [WithFetchTimeout] is not given.
const DefaultFetchTimeout = 2 * time.Second

func (c config) validate() error {
	var errs []error
	if !c.haveWindow {
		errs = append(errs, errors.New("window size is required (use WithWindowSize)"))
	}
	if !c.haveLimits {
		errs = append(errs, errors.New("proposal limits are required (use WithProposalLimits)"))
	} else if err := c.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid proposal limits: %w", err))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive (got %s)", c.FetchTimeout))
	}
	if c.ExclusionMemory <= 0 {
		errs = append(errs, fmt.Errorf("exclusion memory must be positive (got %d)", c.ExclusionMemory))
	}
	return errors.Join(errs...)
}

// WithWindowSize sets the number of rounds of proposals retained.
// Required.
func WithWindowSize(w int) Opt {
	return func(c *config) error {
		if w < 1 {
			return fmt.Errorf("window size must be positive (got %d)", w)
		}
		c.WindowSize = w
		c.haveWindow = true
		return nil
	}
}

// WithProposalLimits sets the proposal size limits.
// Required.
func WithProposalLimits(l odproposal.Limits) Opt {
	return func(c *config) error {
		c.Limits = l
		c.haveLimits = true
		return nil
	}
}

// WithMaxTransactionsPerProposal caps the total transactions in one proposal.
// It overrides the MaxTransactionsPerProposal field of the limits
// regardless of option order.
func WithMaxTransactionsPerProposal(n int) Opt {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("max transactions per proposal must not be negative (got %d)", n)
		}
		c.maxTxsOverride = &n
		return nil
	}
}

// WithInitialRound sets the round the service considers current
// before the first collaboration outcome.
// The default is the zero round.
func WithInitialRound(r odconsensus.Round) Opt {
	return func(c *config) error {
		c.InitialRound = r
		return nil
	}
}

// WithFetcher sets how proposals unavailable locally are retrieved from peers.
// Without a fetcher, such requests report [odconsensus.ProposalStatusNotYetAvailable].
func WithFetcher(f ProposalFetcher) Opt {
	return func(c *config) error {
		c.Fetcher = f
		return nil
	}
}

// WithFetchTimeout bounds remote fetches whose context has no deadline.
func WithFetchTimeout(d time.Duration) Opt {
	return func(c *config) error {
		c.FetchTimeout = d
		return nil
	}
}

// WithExclusionMemory sets how many committed or duplicate batch hashes
// are remembered to keep those batches from being admitted again.
//
// The memory is least-recently-used: once n newer hashes have been excluded,
// an older committed batch offered again is admitted as if new.
// Size it to cover how long peers may keep re-gossiping committed batches.
func WithExclusionMemory(n int) Opt {
	return func(c *config) error {
		c.ExclusionMemory = n
		return nil
	}
}

// WithMetrics reports service activity to m.
func WithMetrics(m *odmetrics.Metrics) Opt {
	return func(c *config) error {
		c.Metrics = m
		return nil
	}
}
