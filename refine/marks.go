package refine

import (
	"github.com/notargets/gomg/grid"
)

// Mark holds the refinement bits of a selected element
type Mark uint8

const (
	MarkSelected Mark = 1 << iota
	MarkRefine
	MarkCopy
	MarkToNormal
	MarkToConstrained
	MarkToConstraining

	markRule   = MarkSelected | MarkRefine | MarkCopy
	markHNodes = MarkToNormal | MarkToConstrained | MarkToConstraining
)

// ConstraintType resolves the hanging node bits, constraining wins over constrained wins over normal
func (m Mark) ConstraintType() (ct grid.ConstraintType, ok bool) {
	switch {
	case m&MarkToConstraining != 0:
		return grid.Constraining, true
	case m&MarkToConstrained != 0:
		return grid.Constrained, true
	case m&MarkToNormal != 0:
		return grid.Normal, true
	}
	return grid.Normal, false
}

func markFor(ct grid.ConstraintType) Mark {
	switch ct {
	case grid.Constrained:
		return MarkToConstrained
	case grid.Constraining:
		return MarkToConstraining
	}
	return MarkToNormal
}

// selection keeps the marked elements of every dimension in the order they were selected
type selection struct {
	marks [grid.NumDims]map[int]Mark
	order [grid.NumDims][]int
}

func newSelection() (s *selection) {
	s = &selection{}
	s.reset()
	return
}

func (s *selection) reset() {
	for d := range s.marks {
		s.marks[d] = make(map[int]Mark)
		s.order[d] = s.order[d][:0]
	}
}

// mark ors m into the marks of r and selects it, changed reports new bits
func (s *selection) mark(r grid.Ref, m Mark) (changed bool) {
	old, ok := s.marks[r.Dim][r.Index]
	if !ok {
		s.order[r.Dim] = append(s.order[r.Dim], r.Index)
	}
	m |= old | MarkSelected
	s.marks[r.Dim][r.Index] = m
	return m != old
}

func (s *selection) get(r grid.Ref) Mark { return s.marks[r.Dim][r.Index] }

func (s *selection) selected(r grid.Ref) bool { return s.marks[r.Dim][r.Index]&MarkSelected != 0 }

func (s *selection) refined(r grid.Ref) bool { return s.marks[r.Dim][r.Index]&MarkRefine != 0 }

// list is a snapshot, elements selected while iterating over it are not included
func (s *selection) list(d grid.Dim) []int {
	return append([]int{}, s.order[d]...)
}

func (s *selection) empty() bool {
	for d := range s.order {
		if len(s.order[d]) != 0 {
			return false
		}
	}
	return true
}
