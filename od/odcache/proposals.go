package odcache

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// Proposals maps rounds to proposals, retaining at most Window rounds.
//
// Each round is set at most once.
// The first proposal stored for a round is authoritative
// and later attempts to store a different value are discarded.
//
// The round most recently passed to [*Proposals.AdvanceWindow] is the current round.
// Rounds above it may occupy at most Window-1 entries
// and must be fewer than Window heights ahead of it,
// so the current round always has room and is never displaced by later rounds.
// When the cache is full, the oldest round below the current round makes room.
//
// Proposals methods are safe to call concurrently.
type Proposals struct {
	mu sync.RWMutex

	window int

	byRound map[odconsensus.Round]*odconsensus.Proposal

	current odconsensus.Round

	// Highest round stored or advanced to.
	highest odconsensus.Round

	// Rounds strictly below floor have been evicted,
	// or were never eligible, and cannot be stored again.
	floor odconsensus.Round
}

// NewProposals returns an empty cache retaining window rounds.
// It panics if window is less than 1.
func NewProposals(window int) *Proposals {
	if window < 1 {
		panic(fmt.Errorf("BUG: proposal window must be positive (got %d)", window))
	}

	return &Proposals{
		window:  window,
		byRound: make(map[odconsensus.Round]*odconsensus.Proposal, window),
	}
}

// Window returns the configured number of retained rounds.
func (c *Proposals) Window() int {
	return c.window
}

// Current returns the round most recently passed to AdvanceWindow.
func (c *Proposals) Current() odconsensus.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Put stores p under p.Round unless a proposal for that round already exists,
// the round falls below the retained window,
// or the round is ahead of the current round and there is no room for it.
//
// It returns the proposal now stored for the round, if any,
// and whether p itself was the value stored.
// Storing a round above the highest seen so far evicts
// every round at a height below p.Round.Height-Window+1.
func (c *Proposals) Put(p *odconsensus.Proposal) (stored *odconsensus.Proposal, inserted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := p.Round
	if r.Less(c.floor) {
		return nil, false
	}

	if existing, ok := c.byRound[r]; ok {
		return existing, false
	}

	if c.current.Less(r) && !c.roomAheadLocked(r) {
		return nil, false
	}

	if len(c.byRound) >= c.window {
		oldest := c.sortedRoundsLocked()[0]
		if !oldest.Less(c.current) || !oldest.Less(r) {
			// Nothing may make room for r.
			// Only possible for an r older than every retained round,
			// which then counts as evicted.
			if r.Less(c.current) {
				c.raiseFloorLocked(r.NextReject())
			}
			return nil, false
		}
		delete(c.byRound, oldest)
		c.raiseFloorLocked(oldest.NextReject())
	}

	c.byRound[r] = p

	if c.highest.Less(r) {
		c.highest = r
		c.raiseHeightFloorLocked(r)
	}
	return p, true
}

// roomAheadLocked reports whether r, a round above the current round,
// may be stored without crowding out the current round.
func (c *Proposals) roomAheadLocked(r odconsensus.Round) bool {
	w := uint64(c.window)
	if r.Height > c.current.Height && r.Height-c.current.Height >= w {
		return false
	}

	ahead := 0
	for round := range c.byRound {
		if c.current.Less(round) {
			ahead++
		}
	}
	return ahead < c.window-1
}

// Get returns the proposal stored for r.
func (c *Proposals) Get(r odconsensus.Round) (*odconsensus.Proposal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byRound[r]
	return p, ok
}

// Has reports whether a proposal is stored for r.
func (c *Proposals) Has(r odconsensus.Round) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.byRound[r]
	return ok
}

// IsEvicted reports whether r is below the retained window.
func (c *Proposals) IsEvicted(r odconsensus.Round) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return r.Less(c.floor)
}

// Len returns the number of stored proposals.
func (c *Proposals) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.byRound)
}

// Rounds returns the stored rounds in ascending order.
func (c *Proposals) Rounds() []odconsensus.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sortedRoundsLocked()
}

// AdvanceWindow makes r the current round
// and evicts every round at a height below r.Height-Window+1.
// Advancing to a round older than the current round is a no-op;
// the window never moves backwards.
//
// It returns the number of evicted proposals.
func (c *Proposals) AdvanceWindow(r odconsensus.Round) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current.Less(r) {
		return 0
	}

	c.current = r
	if c.highest.Less(r) {
		c.highest = r
	}

	before := len(c.byRound)
	c.raiseHeightFloorLocked(r)
	return before - len(c.byRound)
}

// raiseHeightFloorLocked evicts every round at a height below r.Height-Window+1.
func (c *Proposals) raiseHeightFloorLocked(r odconsensus.Round) {
	w := uint64(c.window)
	if r.Height < w {
		return
	}
	c.raiseFloorLocked(odconsensus.Round{Height: r.Height - w + 1})
}

// raiseFloorLocked moves the floor up to f if it is below f,
// deleting every stored round below the new floor.
func (c *Proposals) raiseFloorLocked(f odconsensus.Round) {
	if !c.floor.Less(f) {
		return
	}
	c.floor = f

	for round := range c.byRound {
		if round.Less(c.floor) {
			delete(c.byRound, round)
		}
	}
}

func (c *Proposals) sortedRoundsLocked() []odconsensus.Round {
	rounds := make([]odconsensus.Round, 0, len(c.byRound))
	for r := range c.byRound {
		rounds = append(rounds, r)
	}
	slices.SortFunc(rounds, odconsensus.Round.Compare)
	return rounds
}
