package candidate

import "strconv"

// Slot is one position in a comparator group: either a real candidate,
// referenced by its index in the record, or a placeholder.
type Slot struct {
	index       int
	placeholder int
	isReal      bool
}

// RealSlot refers to the candidate at index i of the record.
func RealSlot(i int) Slot {
	return Slot{index: i, isReal: true}
}

// PlaceholderSlot is the n-th reserved filler.
func PlaceholderSlot(n int) Slot {
	return Slot{placeholder: n}
}

// IsReal reports whether the slot holds a real candidate.
func (s Slot) IsReal() bool { return s.isReal }

// Index returns the candidate index. It returns -1 for placeholders.
func (s Slot) Index() int {
	if !s.isReal {
		return -1
	}
	return s.index
}

// PlaceholderID returns the reserved identifier of a placeholder slot and an
// empty string for real slots.
func (s Slot) PlaceholderID() string {
	if s.isReal {
		return ""
	}
	return placeholderPrefix + strconv.Itoa(s.placeholder)
}

// Group is an ordered set of slots submitted to the comparator together.
type Group []Slot

// Real returns the candidate indices of the group's real members in group order.
func (g Group) Real() []int {
	out := make([]int, 0, len(g))
	for _, s := range g {
		if s.isReal {
			out = append(out, s.index)
		}
	}
	return out
}
