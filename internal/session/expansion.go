package session

import (
	"encoding/json"
	"sort"
)

// ExpansionSet is an immutable set of result indices shown expanded.
// The zero value is the empty set.
type ExpansionSet struct {
	indices []int // sorted, unique
}

// NewExpansionSet returns a set holding indices.
func NewExpansionSet(indices ...int) ExpansionSet {
	var s ExpansionSet
	for _, i := range indices {
		if !s.Contains(i) {
			s = s.Toggle(i)
		}
	}
	return s
}

// Contains reports whether i is in the set.
func (s ExpansionSet) Contains(i int) bool {
	pos := sort.SearchInts(s.indices, i)
	return pos < len(s.indices) && s.indices[pos] == i
}

// Toggle returns a new set with i removed if present, added otherwise.
func (s ExpansionSet) Toggle(i int) ExpansionSet {
	pos := sort.SearchInts(s.indices, i)
	if pos < len(s.indices) && s.indices[pos] == i {
		if len(s.indices) == 1 {
			return ExpansionSet{}
		}
		out := make([]int, 0, len(s.indices)-1)
		out = append(out, s.indices[:pos]...)
		out = append(out, s.indices[pos+1:]...)
		return ExpansionSet{indices: out}
	}
	out := make([]int, 0, len(s.indices)+1)
	out = append(out, s.indices[:pos]...)
	out = append(out, i)
	out = append(out, s.indices[pos:]...)
	return ExpansionSet{indices: out}
}

// Equal reports whether s and o hold the same indices.
func (s ExpansionSet) Equal(o ExpansionSet) bool {
	if len(s.indices) != len(o.indices) {
		return false
	}
	for k, i := range s.indices {
		if o.indices[k] != i {
			return false
		}
	}
	return true
}

// Len returns the number of expanded indices.
func (s ExpansionSet) Len() int { return len(s.indices) }

// Indices returns the indices in ascending order.
func (s ExpansionSet) Indices() []int {
	return append([]int{}, s.indices...)
}

// MarshalJSON encodes the set as an ascending array.
func (s ExpansionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Indices())
}
