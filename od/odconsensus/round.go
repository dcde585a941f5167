package odconsensus

import (
	"cmp"
	"fmt"
)

// Round identifies a position in the consensus sequence of decisions.
//
// Rounds are ordered lexicographically by Height, then by Reject.
// The Reject counter increases each time consensus at a height
// fails to agree and the height is retried.
type Round struct {
	Height uint64
	Reject uint32
}

// Compare returns -1, 0, or +1 depending on whether r sorts
// before, equal to, or after other.
func (r Round) Compare(other Round) int {
	if c := cmp.Compare(r.Height, other.Height); c != 0 {
		return c
	}
	return cmp.Compare(r.Reject, other.Reject)
}

// Less reports whether r sorts strictly before other.
func (r Round) Less(other Round) bool {
	return r.Compare(other) < 0
}

// NextReject returns the round at the same height with the reject counter incremented.
func (r Round) NextReject() Round {
	return Round{Height: r.Height, Reject: r.Reject + 1}
}

// NextHeight returns the first round of the following height.
func (r Round) NextHeight() Round {
	return Round{Height: r.Height + 1}
}

func (r Round) String() string {
	return fmt.Sprintf("%d/%d", r.Height, r.Reject)
}
