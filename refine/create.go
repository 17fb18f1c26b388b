package refine

import (
	"fmt"

	"github.com/notargets/gomg/grid"
)

// create builds the new elements in the order vertices, edges, faces, volumes
func (r *Refiner) create() {
	mg := r.mg
	if !mg.HierarchicalInsertionEnabled() {
		mg.BeginHierarchicalInsertion()
		defer mg.EndHierarchicalInsertion()
	}
	for _, v := range r.sel.list(grid.DimVertex) {
		ref := grid.VertexRef(v)
		r.applyConstraint(ref)
		if _, ok := mg.ChildVertex(ref); ok {
			continue
		}
		from := len(mg.Element(ref).Children)
		mg.CreateVertex(r.shift(mg.Pos(v)), ref)
		r.finish(ref, grid.StatusNone, from)
	}
	for _, e := range r.sel.list(grid.DimEdge) {
		var (
			ref      = grid.EdgeRef(e)
			el       = mg.Element(ref)
			from     = len(el.Children)
			cv0, cv1 = r.childVertex(el.Verts[0]), r.childVertex(el.Verts[1])
		)
		r.applyConstraint(ref)
		if !r.sel.refined(ref) {
			mg.CreateEdge(cv0, cv1, ref)
			r.finish(ref, grid.StatusCopy, from)
			continue
		}
		mid := mg.CreateVertex(r.shift(mg.Centroid(ref)), ref)
		mg.CreateEdge(cv0, mid, ref)
		mg.CreateEdge(mid, cv1, ref)
		r.finish(ref, grid.StatusRegular, from)
	}
	for _, d := range []grid.Dim{grid.DimFace, grid.DimVolume} {
		for _, i := range r.sel.list(d) {
			ref := grid.Ref{Dim: d, Index: i}
			r.applyConstraint(ref)
			r.createChildren(ref)
		}
	}
}

func (r *Refiner) createChildren(ref grid.Ref) {
	var (
		mg   = r.mg
		el   = mg.Element(ref)
		from = len(el.Children)
	)
	if !r.sel.refined(ref) {
		verts := make([]int, len(el.Verts))
		for i, v := range el.Verts {
			verts[i] = r.childVertex(v)
		}
		r.createElement(ref, verts)
		r.finish(ref, grid.StatusCopy, from)
		return
	}
	tmpl, ok := r.plans[ref]
	if !ok {
		return
	}
	var (
		n       = len(el.Verts)
		labels  = make([]int, max(quadCenter+1, n+len(el.Edges)))
		regular = true
	)
	for i := range labels {
		labels[i] = -1
	}
	for i, v := range el.Verts {
		labels[i] = r.childVertex(v)
	}
	for i, e := range el.Edges {
		if mid, ok := mg.ChildVertex(grid.EdgeRef(e)); ok {
			labels[n+i] = mid
		} else {
			regular = false
		}
	}
	if tmpl.center {
		labels[quadCenter] = mg.CreateVertex(r.shift(mg.Centroid(ref)), ref)
	}
	for _, child := range tmpl.children {
		verts := make([]int, len(child))
		for i, l := range child {
			if verts[i] = labels[l]; verts[i] < 0 {
				panic(fmt.Errorf("template of %v uses label %d which has no vertex", ref, l))
			}
		}
		r.createElement(ref, verts)
	}
	status := grid.StatusRegular
	if !regular {
		status = grid.StatusIrregular
	}
	r.finish(ref, status, from)
}

func (r *Refiner) createElement(parent grid.Ref, verts []int) {
	switch parent.Dim {
	case grid.DimFace:
		r.mg.CreateFace(verts, parent)
	case grid.DimVolume:
		r.mg.CreateVolume([4]int{verts[0], verts[1], verts[2], verts[3]}, parent)
	default:
		panic(fmt.Errorf("no children of %v are created from templates", parent))
	}
}

func (r *Refiner) childVertex(v int) int {
	c, ok := r.mg.ChildVertex(grid.VertexRef(v))
	if !ok {
		panic(fmt.Errorf("vertex %d was not copied to the new level", v))
	}
	return c
}

func (r *Refiner) shift(x [3]float64) [3]float64 {
	x[2] += r.visualOffset
	return x
}

func (r *Refiner) applyConstraint(ref grid.Ref) {
	if ct, ok := r.sel.get(ref).ConstraintType(); ok {
		r.mg.SetConstraintType(ref, ct)
	}
}

// finish sets status and constraint type of the children created from index from on
func (r *Refiner) finish(parent grid.Ref, status grid.Status, from int) {
	var (
		el = r.mg.Element(parent)
		ct = grid.Normal
	)
	if el.Constraint == grid.Constraining {
		ct = grid.Constrained
	}
	for _, c := range el.Children[from:] {
		if c.Dim != grid.DimVertex {
			r.mg.SetStatus(c, status)
		}
		r.mg.SetConstraintType(c, ct)
	}
}
