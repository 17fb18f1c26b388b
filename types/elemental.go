package types

import (
	"fmt"
	"math"
	"sort"
)

/*
EdgeKey is an always positive number that stores an edge's vertices as indices in a way that can be compared
An edge between vertices [4] and [0] will always be stored as [0,4], in the ascending order of the index values
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) (packed EdgeKey) {
	// This packs two index coordinates into two 32 bit unsigned integers to act as a hash and an indirect access method
	var (
		limit = math.MaxUint32
	)
	for _, vert := range verts {
		if vert < 0 || vert > limit {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	var i1, i2 int
	if verts[0] <= verts[1] {
		i1, i2 = verts[0], verts[1]
	} else {
		i1, i2 = verts[1], verts[0]
	}
	packed = EdgeKey(i1 + i2<<32)
	return
}

func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	var (
		enTmp EdgeKey
	)
	enTmp = ek >> 32
	verts[1] = int(enTmp)
	verts[0] = int(ek - enTmp*(1<<32))
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

// Less orders edges by their larger vertex first, then by the smaller one.
// The ordering only depends on the vertex indices, so two processes or two
// neighboring elements holding the same edge always agree on it.
func (ek EdgeKey) Less(other EdgeKey) bool { return ek < other }

/*
ElementKey identifies a face or a volume by its sorted vertex indices, unused slots hold -1
A triangle [7,2,5] and [5,7,2] produce the same key, so the key can be used to find an element from any of its
vertex orderings
*/
type ElementKey [4]int

func NewElementKey(verts []int) (key ElementKey) {
	if len(verts) < 2 || len(verts) > 4 {
		panic(fmt.Errorf("element keys hold between 2 and 4 vertices, have %d", len(verts)))
	}
	var (
		sorted = make([]int, len(verts))
	)
	copy(sorted, verts)
	sort.Ints(sorted)
	for i := range key {
		if i < len(sorted) {
			key[i] = sorted[i]
		} else {
			key[i] = -1
		}
	}
	return
}

func (k ElementKey) NumVertices() (n int) {
	for _, v := range k {
		if v >= 0 {
			n++
		}
	}
	return
}

func (k ElementKey) Vertices() (verts []int) {
	for _, v := range k {
		if v >= 0 {
			verts = append(verts, v)
		}
	}
	return
}
