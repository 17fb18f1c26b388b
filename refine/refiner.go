package refine

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/types"
)

var (
	ErrCoarseningUnsupported    = errors.New("refine: coarsening is not supported")
	ErrUnsupportedConfiguration = errors.New("refine: unsupported refinement configuration")
)

const DefaultCopyRange = 2

type Option func(r *Refiner)

func WithCopyRange(n int) Option { return func(r *Refiner) { r.copyRange = n } }

// WithVisualOffset moves every new level by dz along z so the hierarchy can be told apart in plots
func WithVisualOffset(dz float64) Option { return func(r *Refiner) { r.visualOffset = dz } }

func WithLogger(logger *zap.Logger) Option { return func(r *Refiner) { r.logger = logger } }

/*
Refiner adds a level to a MultiGrid by refining marked elements. Elements adjacent to refined edges are refined
irregularly to close the refinement, elements in a small vertex neighborhood of the closure are copied to the new
level so that every level is a valid grid of its own.
*/
type Refiner struct {
	mg           *grid.MultiGrid
	sel          *selection
	requested    []grid.Ref
	closed       map[grid.Ref]bool
	seeds        []int
	plans        map[grid.Ref]*template
	skipped      map[grid.Ref]bool
	copyRange    int
	visualOffset float64
	templates    *templateSet
	allowed      func(r grid.Ref) bool
	logger       *zap.Logger
}

func NewRefiner(mg *grid.MultiGrid, opts ...Option) (r *Refiner) {
	r = &Refiner{
		mg:        mg,
		sel:       newSelection(),
		copyRange: DefaultCopyRange,
		templates: newTemplateSet(),
		allowed:   func(grid.Ref) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.L().Named("refine")
	}
	r.ClearMarks()
	return
}

func (r *Refiner) Grid() *grid.MultiGrid { return r.mg }

func (r *Refiner) SetCopyRange(n int)          { r.copyRange = n }
func (r *Refiner) CopyRange() int              { return r.copyRange }
func (r *Refiner) SetVisualOffset(dz float64) { r.visualOffset = dz }

func (r *Refiner) MarkForRefinement(refs ...grid.Ref) {
	r.requested = append(r.requested, refs...)
}

// MarkAll marks every leaf element of the top dimension
func (r *Refiner) MarkAll() {
	top := r.mg.TopDim()
	for i := 0; i < r.mg.Num(top); i++ {
		ref := grid.Ref{Dim: top, Index: i}
		if !r.mg.HasChildren(ref) {
			r.requested = append(r.requested, ref)
		}
	}
}

func (r *Refiner) MarkForCoarsening(refs ...grid.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	return fmt.Errorf("%d elements marked, first %v: %w", len(refs), refs[0], ErrCoarseningUnsupported)
}

func (r *Refiner) NumMarked() int { return len(r.requested) }

func (r *Refiner) ClearMarks() {
	r.requested = nil
	r.sel.reset()
	r.closed = make(map[grid.Ref]bool)
	r.seeds = nil
	r.plans = make(map[grid.Ref]*template)
	r.skipped = make(map[grid.Ref]bool)
}

// Refine runs selection, closure, copy range and creation, marks are cleared afterwards
func (r *Refiner) Refine() (err error) {
	defer r.ClearMarks()
	if len(r.requested) == 0 {
		return
	}
	r.prepare()
	r.initialSelection()
	if r.sel.empty() {
		return
	}
	for r.closure() {
	}
	r.selectCopyElements()
	err = r.plan()
	r.assignConstraintMarks()
	r.create()
	return
}

func (r *Refiner) prepare() {
	if !r.mg.OptionIsEnabled(grid.OptionFullInterconnection) {
		r.logger.Warn("auto-enabling full interconnection on the multigrid")
		r.mg.EnableOptions(grid.OptionFullInterconnection)
	}
}

func (r *Refiner) refinable(ref grid.Ref) bool {
	if r.mg.HasChildren(ref) || !r.allowed(ref) {
		return false
	}
	switch s := r.mg.Element(ref).Status; s {
	case grid.StatusCopy, grid.StatusIrregular:
		r.logger.Warn("element can not be refined in its current state",
			zap.Stringer("element", ref), zap.Stringer("status", s))
		return false
	}
	return true
}

func (r *Refiner) eligible(ref grid.Ref) bool {
	return !r.mg.HasChildren(ref) && r.allowed(ref)
}

// initialSelection marks requested elements regular and pushes the marks down to their sides
func (r *Refiner) initialSelection() {
	var candidates [grid.NumDims][]int
	for _, ref := range r.requested {
		candidates[ref.Dim] = append(candidates[ref.Dim], ref.Index)
	}
	for d := grid.DimVolume; d >= grid.DimEdge; d-- {
		for _, i := range candidates[d] {
			ref := grid.Ref{Dim: d, Index: i}
			if r.sel.refined(ref) || !r.refinable(ref) {
				continue
			}
			r.sel.mark(ref, MarkRefine)
			if d == grid.DimEdge {
				for _, v := range r.mg.Element(ref).Verts {
					r.sel.mark(grid.VertexRef(v), 0)
				}
				continue
			}
			for _, s := range r.mg.Sides(ref, d-1) {
				if !r.mg.HasChildren(grid.Ref{Dim: d - 1, Index: s}) {
					candidates[d-1] = append(candidates[d-1], s)
				}
			}
		}
	}
	for _, v := range candidates[grid.DimVertex] {
		if ref := grid.VertexRef(v); r.eligible(ref) {
			r.sel.mark(ref, 0)
		}
	}
}

/*
closure selects every face touching a refined edge and every volume touching a refined face. Sides of those elements
that are not refined are copied. Returns whether anything new was selected, callers repeat it until nothing changes.
*/
func (r *Refiner) closure() (changed bool) {
	var (
		mg = r.mg
	)
	for _, e := range r.sel.list(grid.DimEdge) {
		if !r.sel.refined(grid.EdgeRef(e)) {
			continue
		}
		for _, f := range mg.AssociatedFaces(grid.EdgeRef(e)) {
			if fr := grid.FaceRef(f); r.eligible(fr) && !r.sel.refined(fr) {
				r.sel.mark(fr, MarkRefine)
				changed = true
			}
		}
	}
	for _, f := range r.sel.list(grid.DimFace) {
		if fr := grid.FaceRef(f); r.sel.refined(fr) && !r.closed[fr] {
			r.close(fr)
			changed = true
		}
	}
	if mg.Num(grid.DimVolume) == 0 {
		return
	}
	for _, f := range r.sel.list(grid.DimFace) {
		if !r.sel.refined(grid.FaceRef(f)) {
			continue
		}
		for _, v := range mg.AssociatedVolumes(grid.FaceRef(f)) {
			if vr := grid.VolumeRef(v); r.eligible(vr) && !r.sel.refined(vr) {
				r.sel.mark(vr, MarkRefine)
				changed = true
			}
		}
	}
	for _, v := range r.sel.list(grid.DimVolume) {
		if vr := grid.VolumeRef(v); r.sel.refined(vr) && !r.closed[vr] {
			r.close(vr)
			changed = true
		}
	}
	if r.promote() {
		changed = true
	}
	return
}

// promote splits every edge of refined tetrahedra whose split edges have no template, the next pass closes them
func (r *Refiner) promote() (changed bool) {
	for _, v := range r.sel.list(grid.DimVolume) {
		var (
			vr = grid.VolumeRef(v)
			el = r.mg.Element(vr)
		)
		if el.Type != grid.Tet || !r.sel.refined(vr) {
			continue
		}
		splitEdges := make([]bool, len(el.Edges))
		for j, e := range el.Edges {
			splitEdges[j] = r.splits(e)
		}
		if hasTetTemplate(splitEdges) {
			continue
		}
		for _, e := range el.Edges {
			if er := grid.EdgeRef(e); !r.sel.refined(er) && r.eligible(er) {
				r.sel.mark(er, MarkRefine)
				changed = true
			}
		}
	}
	return
}

// close copies the unselected sides of a refined element and selects its vertices
func (r *Refiner) close(ref grid.Ref) {
	r.closed[ref] = true
	for d := ref.Dim - 1; d >= grid.DimEdge; d-- {
		for _, s := range r.mg.Sides(ref, d) {
			if sr := (grid.Ref{Dim: d, Index: s}); !r.sel.selected(sr) && r.eligible(sr) {
				r.sel.mark(sr, MarkCopy)
			}
		}
	}
	r.selectVertices(ref)
}

func (r *Refiner) selectVertices(ref grid.Ref) {
	for _, v := range r.mg.Element(ref).Verts {
		if vr := grid.VertexRef(v); !r.sel.selected(vr) {
			r.sel.mark(vr, 0)
			if r.copyRange > 0 {
				r.seeds = append(r.seeds, v)
			}
		}
	}
}

// selectCopyElements copies the elements within copyRange vertex rings around the closure
func (r *Refiner) selectCopyElements() {
	var (
		mg          = r.mg
		first, end  = 0, len(r.seeds)
		copyElement = func(ref grid.Ref) {
			if r.sel.selected(ref) || !r.eligible(ref) {
				return
			}
			r.sel.mark(ref, MarkCopy)
			for d := ref.Dim - 1; d >= grid.DimEdge; d-- {
				for _, s := range mg.Sides(ref, d) {
					if sr := (grid.Ref{Dim: d, Index: s}); !r.sel.selected(sr) && r.eligible(sr) {
						r.sel.mark(sr, MarkCopy)
					}
				}
			}
			r.selectVertices(ref)
		}
	)
	for ring := 0; ring < r.copyRange; ring++ {
		for _, v := range r.seeds[first:end] {
			vr := grid.VertexRef(v)
			for _, e := range mg.AssociatedEdges(v) {
				copyElement(grid.EdgeRef(e))
			}
			for _, f := range mg.AssociatedFaces(vr) {
				copyElement(grid.FaceRef(f))
			}
			for _, vol := range mg.AssociatedVolumes(vr) {
				copyElement(grid.VolumeRef(vol))
			}
		}
		first, end = end, len(r.seeds)
	}
}

// splits reports whether an edge has or will have a midpoint on the next level
func (r *Refiner) splits(e int) bool {
	if r.sel.refined(grid.EdgeRef(e)) {
		return true
	}
	_, ok := r.mg.ChildVertex(grid.EdgeRef(e))
	return ok
}

/*
plan picks the template of every refined face and volume. Unsupported configurations are logged and the element is
left unrefined, the errors of the whole pass are returned together.
*/
func (r *Refiner) plan() (err error) {
	for _, d := range []grid.Dim{grid.DimFace, grid.DimVolume} {
		for _, i := range r.sel.list(d) {
			ref := grid.Ref{Dim: d, Index: i}
			if !r.sel.refined(ref) {
				continue
			}
			var (
				el         = r.mg.Element(ref)
				splitEdges = make([]bool, len(el.Edges))
				less       = r.edgeOrder(el)
				tmpl       *template
				planErr    error
			)
			for j, e := range el.Edges {
				splitEdges[j] = r.splits(e)
			}
			switch el.Type {
			case grid.Triangle:
				tmpl, planErr = r.triTemplate(ref, splitEdges, less)
			case grid.Quad:
				tmpl, planErr = r.quadTemplate(ref, splitEdges)
			case grid.Tet:
				for _, f := range el.Faces {
					if r.skipped[grid.FaceRef(f)] {
						planErr = fmt.Errorf("tetrahedron %v has the unrefined face %d: %w",
							ref, f, ErrUnsupportedConfiguration)
					}
				}
				if planErr == nil {
					tmpl, planErr = r.tetTemplate(ref, splitEdges, less)
				}
			default:
				planErr = fmt.Errorf("%v of type %s: %w", ref, el.Type, ErrUnsupportedConfiguration)
			}
			if planErr != nil {
				r.logger.Warn("skipping element", zap.Stringer("element", ref), zap.Error(planErr))
				r.skipped[ref] = true
				err = multierr.Append(err, planErr)
				continue
			}
			r.plans[ref] = tmpl
		}
	}
	return
}

/*
edgeOrder compares local edges of an element, given as label keys of corner pairs, by the positions of their end
points. Positions are the same on every process, vertex indices are not.
*/
func (r *Refiner) edgeOrder(el *grid.Element) func(a, b types.EdgeKey) bool {
	posKey := func(k types.EdgeKey) (key [6]float64) {
		ab := k.GetVertices(false)
		p0, p1 := r.mg.Pos(el.Verts[ab[0]]), r.mg.Pos(el.Verts[ab[1]])
		if lessPos(p1, p0) {
			p0, p1 = p1, p0
		}
		copy(key[:3], p0[:])
		copy(key[3:], p1[:])
		return
	}
	return func(a, b types.EdgeKey) bool {
		ka, kb := posKey(a), posKey(b)
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
		return false
	}
}

func lessPos(a, b [3]float64) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (r *Refiner) willRefine(ref grid.Ref) bool {
	if r.mg.HasChildren(ref) {
		return true
	}
	return r.sel.refined(ref) && !r.skipped[ref]
}

/*
assignConstraintMarks gives every selected element the constraint type it has after the pass. A split edge or face
next to an element of higher dimension that stays unrefined is constraining, its children become constrained.
*/
func (r *Refiner) assignConstraintMarks() {
	top := r.mg.TopDim()
	for d := grid.DimVertex; d < grid.NumDims; d++ {
		for _, i := range r.sel.list(d) {
			ref := grid.Ref{Dim: d, Index: i}
			if d == grid.DimVertex || d == top || !r.sel.refined(ref) || r.skipped[ref] {
				r.sel.mark(ref, markFor(r.mg.Element(ref).Constraint))
				continue
			}
			m := MarkToNormal
			for h := d + 1; h <= top; h++ {
				for _, a := range r.mg.Associated(ref, h) {
					if !r.willRefine(grid.Ref{Dim: h, Index: a}) {
						m = MarkToConstraining
					}
				}
			}
			r.sel.mark(ref, m)
		}
	}
}
