package gnetdag

// FanoutTree treats a slice of n entries as a complete tree
// in which every non-leaf entry has BranchFactor children.
// With BranchFactor=3, the entries are arranged in layers like:
//
//	0 (L0)
//	1 2 3 (L1)
//	4 5 6 7 8 9 10 11 12 (L2)
//
// Methods use unchecked math; a BranchFactor below 1
// or negative indices result in undefined behavior.
type FanoutTree struct {
	BranchFactor int
}

// Parent returns the index of the parent of entryIdx,
// or -1 for the root.
func (t FanoutTree) Parent(entryIdx int) int {
	if entryIdx == 0 {
		return -1
	}
	return (entryIdx - 1) / t.BranchFactor
}

// FirstChild returns the index of the first child of entryIdx.
// The child may be beyond the end of the caller's slice.
func (t FanoutTree) FirstChild(entryIdx int) int {
	return entryIdx*t.BranchFactor + 1
}

// Children returns the indices of the children of entryIdx
// in a tree of n entries.
// The result is empty for leaves.
func (t FanoutTree) Children(entryIdx, n int) []int {
	first := t.FirstChild(entryIdx)
	if first >= n {
		return nil
	}

	last := min(first+t.BranchFactor, n)
	out := make([]int, 0, last-first)
	for i := first; i < last; i++ {
		out = append(out, i)
	}
	return out
}

// Layer returns the depth of entryIdx, with the root at layer 0.
func (t FanoutTree) Layer(entryIdx int) int {
	layer := 0
	for entryIdx > 0 {
		entryIdx = t.Parent(entryIdx)
		layer++
	}
	return layer
}

// Rotate maps an index in a slice rooted at origin
// to an index in a tree rooted at 0, for a slice of n entries.
// It allows any entry to act as the root without reordering the slice.
func Rotate(idx, origin, n int) int {
	return ((idx-origin)%n + n) % n
}

// Unrotate is the inverse of [Rotate].
func Unrotate(treeIdx, origin, n int) int {
	return (treeIdx + origin) % n
}
