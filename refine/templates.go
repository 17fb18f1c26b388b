package refine

import (
	"fmt"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/types"
)

/*
Templates describe children by local labels: corners are 0..n-1, the midpoint of local edge i is n+i and the
center vertex of a quad is 8. The creation phase maps labels to the vertices of the new level.
*/
type template struct {
	children [][]int
	center   bool
}

const quadCenter = 8

type templateSet struct {
	redTri   [][]int
	quad4    [][]int
	quad2    [2][][]int // split edges {0,2} and {1,3}
	redTet   [][]int
	triOfTet [4][][]int // red triangle of each tet face, in tet labels
}

func newTemplateSet() (ts *templateSet) {
	ts = &templateSet{
		redTri: [][]int{{0, 3, 5}, {3, 1, 4}, {5, 4, 2}, {3, 4, 5}},
		quad4: [][]int{
			{0, 4, quadCenter, 7},
			{4, 1, 5, quadCenter},
			{quadCenter, 5, 2, 6},
			{7, quadCenter, 6, 3},
		},
		quad2: [2][][]int{
			{{0, 4, 6, 3}, {4, 1, 2, 6}},
			{{0, 1, 5, 7}, {7, 5, 2, 3}},
		},
		// Corner tets, then the octahedron cut along the diagonal between the midpoints of edges 2-0 and 3-1
		redTet: [][]int{
			{0, 4, 6, 7},
			{4, 1, 5, 8},
			{6, 5, 2, 9},
			{7, 8, 9, 3},
			{6, 8, 4, 5},
			{6, 8, 5, 9},
			{6, 8, 9, 7},
			{6, 8, 7, 4},
		},
	}
	for f, corners := range grid.TetFaces {
		edges := grid.TetFaceEdges[f]
		// Triangle label a maps to the tet corner, label 3+i to the midpoint of the i-th face edge
		var tetLabel [6]int
		for i := 0; i < 3; i++ {
			tetLabel[i] = corners[i]
			tetLabel[3+i] = 4 + faceEdgeIndex(corners, edges, i)
		}
		for _, tri := range ts.redTri {
			ts.triOfTet[f] = append(ts.triOfTet[f], []int{tetLabel[tri[0]], tetLabel[tri[1]], tetLabel[tri[2]]})
		}
	}
	return
}

// faceEdgeIndex finds the tet edge running between face corners i and i+1
func faceEdgeIndex(corners [3]int, edges [3]int, i int) int {
	a, b := corners[i], corners[(i+1)%3]
	for _, e := range edges {
		te := grid.TetEdges[e]
		if (te[0] == a && te[1] == b) || (te[0] == b && te[1] == a) {
			return e
		}
	}
	panic(fmt.Errorf("tet face %v has no edge between %d and %d", corners, a, b))
}

/*
bisect recursively splits a simplex at its first split edge in the order given by less until no split edge is left.
Faces shared by two simplices are split identically as long as both sides use the same order.
*/
func bisect(simplex []int, split map[types.EdgeKey]int, less func(a, b types.EdgeKey) bool) (children [][]int) {
	var (
		first types.EdgeKey
		found bool
	)
	for i := 0; i < len(simplex); i++ {
		for j := i + 1; j < len(simplex); j++ {
			key := types.NewEdgeKey([2]int{simplex[i], simplex[j]})
			if _, ok := split[key]; ok && (!found || less(key, first)) {
				first, found = key, true
			}
		}
	}
	if !found {
		return [][]int{simplex}
	}
	var (
		ab   = first.GetVertices(false)
		mid  = split[first]
		left = make([]int, len(simplex))
		rght = make([]int, len(simplex))
	)
	for i, v := range simplex {
		left[i], rght[i] = v, v
		switch v {
		case ab[1]:
			left[i] = mid
		case ab[0]:
			rght[i] = mid
		}
	}
	children = append(bisect(left, split, less), bisect(rght, split, less)...)
	return
}

func (r *Refiner) triTemplate(f grid.Ref, splitEdges []bool, less func(a, b types.EdgeKey) bool) (tmpl *template, err error) {
	var n int
	for _, s := range splitEdges {
		if s {
			n++
		}
	}
	switch n {
	case 3:
		return &template{children: r.templates.redTri}, nil
	case 1, 2:
		split := make(map[types.EdgeKey]int)
		for i, le := range grid.TriEdges {
			if splitEdges[i] {
				split[types.NewEdgeKey(le)] = 3 + i
			}
		}
		return &template{children: bisect([]int{0, 1, 2}, split, less)}, nil
	}
	return nil, fmt.Errorf("triangle %v without split edges: %w", f, ErrUnsupportedConfiguration)
}

func (r *Refiner) quadTemplate(f grid.Ref, splitEdges []bool) (tmpl *template, err error) {
	switch {
	case splitEdges[0] && splitEdges[1] && splitEdges[2] && splitEdges[3]:
		return &template{children: r.templates.quad4, center: true}, nil
	case splitEdges[0] && !splitEdges[1] && splitEdges[2] && !splitEdges[3]:
		return &template{children: r.templates.quad2[0]}, nil
	case !splitEdges[0] && splitEdges[1] && !splitEdges[2] && splitEdges[3]:
		return &template{children: r.templates.quad2[1]}, nil
	}
	return nil, fmt.Errorf("quad %v with split edges %v: %w", f, splitEdges, ErrUnsupportedConfiguration)
}

// tetSplits counts the split edges of a tetrahedron and lists the faces with all three edges split
func tetSplits(splitEdges []bool) (n int, fullFaces []int) {
	for _, s := range splitEdges {
		if s {
			n++
		}
	}
	for f, edges := range grid.TetFaceEdges {
		if splitEdges[edges[0]] && splitEdges[edges[1]] && splitEdges[edges[2]] {
			fullFaces = append(fullFaces, f)
		}
	}
	return
}

/*
hasTetTemplate reports whether split edges of a tetrahedron match one of the templates: all edges, the edges of one
face, or any set of edges without a complete face. The remaining patterns have four or five split edges including a
complete face, the closure refines those tetrahedra regularly.
*/
func hasTetTemplate(splitEdges []bool) bool {
	n, fullFaces := tetSplits(splitEdges)
	return n == 6 || len(fullFaces) == 0 || (n == 3 && len(fullFaces) == 1)
}

func (r *Refiner) tetTemplate(vol grid.Ref, splitEdges []bool, less func(a, b types.EdgeKey) bool) (tmpl *template, err error) {
	n, fullFaces := tetSplits(splitEdges)
	switch {
	case n == 6:
		return &template{children: r.templates.redTet}, nil
	case n == 3 && len(fullFaces) == 1:
		// Cone of the red face triangulation over the opposite corner
		var (
			f    = fullFaces[0]
			apex = 6 - grid.TetFaces[f][0] - grid.TetFaces[f][1] - grid.TetFaces[f][2]
		)
		tmpl = &template{}
		for _, tri := range r.templates.triOfTet[f] {
			tmpl.children = append(tmpl.children, []int{tri[0], tri[1], tri[2], apex})
		}
		return
	case n > 0 && len(fullFaces) == 0:
		split := make(map[types.EdgeKey]int)
		for i, le := range grid.TetEdges {
			if splitEdges[i] {
				split[types.NewEdgeKey(le)] = 4 + i
			}
		}
		return &template{children: bisect([]int{0, 1, 2, 3}, split, less)}, nil
	}
	return nil, fmt.Errorf("tetrahedron %v with split edges %v: %w", vol, splitEdges, ErrUnsupportedConfiguration)
}
