package grid

import "fmt"

func (mg *MultiGrid) OptionIsEnabled(o Option) bool { return mg.options&o == o }

// EnableOptions switches options on, enabling full interconnection builds the adjacency of existing elements
func (mg *MultiGrid) EnableOptions(o Option) {
	if o&OptionFullInterconnection != 0 && mg.options&OptionFullInterconnection == 0 {
		mg.options |= OptionFullInterconnection
		for low := DimVertex; low < NumDims; low++ {
			for high := DimVertex; high < NumDims; high++ {
				mg.up[low][high] = nil
			}
		}
		for d := DimEdge; d < NumDims; d++ {
			for i := range mg.elems[d] {
				mg.connect(Ref{d, i})
			}
		}
	}
	mg.options |= o
}

func (mg *MultiGrid) grow(low, high Dim) {
	for len(mg.up[low][high]) < len(mg.elems[low]) {
		mg.up[low][high] = append(mg.up[low][high], nil)
	}
}

func (mg *MultiGrid) connect(r Ref) {
	if r.Dim == DimVertex {
		return
	}
	el := mg.elems[r.Dim][r.Index]
	link := func(low Dim, sides []int) {
		mg.grow(low, r.Dim)
		for _, s := range sides {
			mg.up[low][r.Dim][s] = append(mg.up[low][r.Dim][s], r.Index)
		}
	}
	link(DimVertex, el.Verts)
	if r.Dim > DimEdge {
		link(DimEdge, el.Edges)
	}
	if r.Dim > DimFace {
		link(DimFace, el.Faces)
	}
}

func (mg *MultiGrid) associated(r Ref, high Dim) []int {
	if !mg.OptionIsEnabled(OptionFullInterconnection) {
		panic(fmt.Errorf("associated %s query on %v requires OptionFullInterconnection", high, r))
	}
	if high <= r.Dim {
		panic(fmt.Errorf("associated elements must be of higher dimension than %v, asked for %s", r, high))
	}
	list := mg.up[r.Dim][high]
	if r.Index >= len(list) {
		return nil
	}
	return list[r.Index]
}

// AssociatedEdges lists the edges containing a vertex
func (mg *MultiGrid) AssociatedEdges(v int) []int { return mg.associated(VertexRef(v), DimEdge) }

// AssociatedFaces lists the faces containing a vertex or an edge
func (mg *MultiGrid) AssociatedFaces(r Ref) []int { return mg.associated(r, DimFace) }

// AssociatedVolumes lists the volumes containing a vertex, an edge or a face
func (mg *MultiGrid) AssociatedVolumes(r Ref) []int { return mg.associated(r, DimVolume) }

// Associated lists the elements of dimension high that contain r
func (mg *MultiGrid) Associated(r Ref, high Dim) []int { return mg.associated(r, high) }

/*
MarkBoundary flags the boundary of level 0: faces with a single volume in 3D, edges with a single face in 2D, and
all of their sides. Elements created later inherit the flag from their parent.
*/
func (mg *MultiGrid) MarkBoundary() {
	var (
		top     = mg.TopDim()
		sideDim = top - 1
		count   = make(map[int]int)
	)
	if top < DimFace {
		return
	}
	for _, h := range mg.ElementsOnLevel(top, 0) {
		for _, s := range mg.Sides(Ref{top, h}, sideDim) {
			count[s]++
		}
	}
	for s, nAdj := range count {
		if nAdj != 1 {
			continue
		}
		el := mg.elems[sideDim][s]
		el.Boundary = true
		for _, v := range el.Verts {
			mg.elems[DimVertex][v].Boundary = true
		}
		for _, e := range el.Edges {
			mg.elems[DimEdge][e].Boundary = true
		}
	}
}
