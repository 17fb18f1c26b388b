package utils

import (
	"sort"
)

type Index []int

func (I Index) Copy() (r Index) {
	r = make(Index, len(I))
	copy(r, I)
	return
}

func (I Index) Apply(f func(val int) int) (r Index) {
	r = make(Index, len(I))
	for i, val := range I {
		r[i] = f(val)
	}
	return
}

// Filter keeps the values for which keep returns true, in their original order
func (I Index) Filter(keep func(val int) bool) (r Index) {
	r = Index{}
	for _, val := range I {
		if keep(val) {
			r = append(r, val)
		}
	}
	return
}

func (I Index) Sorted() (r Index) {
	r = I.Copy()
	sort.Ints(r)
	return
}
