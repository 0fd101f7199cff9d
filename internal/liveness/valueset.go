package liveness

import "slices"

// valueSet is a set of IR value ids.
type valueSet map[int]struct{}

func (s valueSet) add(id int) { s[id] = struct{}{} }

func (s valueSet) has(id int) bool {
	_, ok := s[id]
	return ok
}

func setFromSorted(ids []int) valueSet {
	out := make(valueSet, len(ids))
	for _, id := range ids {
		out.add(id)
	}
	return out
}

// sorted returns the members in ascending order.
func (s valueSet) sorted() []int {
	if len(s) == 0 {
		return nil
	}
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
