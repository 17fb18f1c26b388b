package dof

import (
	"github.com/notargets/gomg/grid"
)

/*
SurfaceView is the set of elements without children, excluding ghosts. It is derived from the grid and recomputed by
Update whenever the grid revision changed.
*/
type SurfaceView struct {
	mg       *grid.MultiGrid
	isGhost  func(r grid.Ref) bool
	revision int
	elems    [grid.NumDims][]int
	surface  map[grid.Ref]bool
}

// NewSurfaceView builds the view, isGhost may be nil for serial grids
func NewSurfaceView(mg *grid.MultiGrid, isGhost func(r grid.Ref) bool) (sv *SurfaceView) {
	if isGhost == nil {
		isGhost = func(grid.Ref) bool { return false }
	}
	sv = &SurfaceView{mg: mg, isGhost: isGhost, revision: -1}
	sv.Update()
	return
}

// Update recomputes the view if the grid changed, it reports whether it did
func (sv *SurfaceView) Update() bool {
	if sv.revision == sv.mg.Revision() {
		return false
	}
	sv.surface = make(map[grid.Ref]bool)
	for d := grid.DimVertex; d < grid.NumDims; d++ {
		sv.elems[d] = sv.elems[d][:0]
		for i := 0; i < sv.mg.Num(d); i++ {
			r := grid.Ref{Dim: d, Index: i}
			if sv.mg.HasChildren(r) || sv.isGhost(r) {
				continue
			}
			sv.elems[d] = append(sv.elems[d], i)
			sv.surface[r] = true
		}
	}
	sv.revision = sv.mg.Revision()
	return true
}

func (sv *SurfaceView) IsSurface(r grid.Ref) bool { return sv.surface[r] }

// Elements lists the surface elements of a dimension in ascending index order
func (sv *SurfaceView) Elements(d grid.Dim) []int { return sv.elems[d] }

// Level is the level a surface element lives on
func (sv *SurfaceView) Level(r grid.Ref) int { return sv.mg.Level(r) }

func (sv *SurfaceView) Grid() *grid.MultiGrid { return sv.mg }
