package refine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newGrid(t *testing.T, m *mesh.Mesh) *grid.MultiGrid {
	mg, err := grid.FromMesh(m)
	require.NoError(t, err)
	return mg
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func measure(mg *grid.MultiGrid, ref grid.Ref) float64 {
	var (
		el = mg.Element(ref)
		x  = make([][3]float64, len(el.Verts))
	)
	for i, v := range el.Verts {
		x[i] = mg.Pos(v)
	}
	triArea := func(a, b, c [3]float64) float64 {
		n := cross(sub(b, a), sub(c, a))
		return 0.5 * math.Sqrt(n[0]*n[0]+n[1]*n[1]+n[2]*n[2])
	}
	switch el.Type {
	case grid.Triangle:
		return triArea(x[0], x[1], x[2])
	case grid.Quad:
		return triArea(x[0], x[1], x[2]) + triArea(x[0], x[2], x[3])
	case grid.Tet:
		n := cross(sub(x[1], x[0]), sub(x[2], x[0]))
		d := sub(x[3], x[0])
		return math.Abs(n[0]*d[0]+n[1]*d[1]+n[2]*d[2]) / 6
	}
	return 0
}

func levelMeasure(mg *grid.MultiGrid, d grid.Dim, level int) (sum float64) {
	for _, i := range mg.ElementsOnLevel(d, level) {
		sum += measure(mg, grid.Ref{Dim: d, Index: i})
	}
	return
}

// checkClosure verifies that every element touching a split edge of the level was refined
func checkClosure(t *testing.T, mg *grid.MultiGrid, level int) {
	for _, e := range mg.ElementsOnLevel(grid.DimEdge, level) {
		if _, split := mg.ChildVertex(grid.EdgeRef(e)); !split {
			continue
		}
		for h := grid.DimFace; h <= mg.TopDim(); h++ {
			for _, a := range mg.Associated(grid.EdgeRef(e), h) {
				assert.True(t, mg.HasChildren(grid.Ref{Dim: h, Index: a}),
					"%s %d touches the split edge %d but was not refined", h, a, e)
			}
		}
	}
	for d := grid.DimEdge; d <= mg.TopDim(); d++ {
		for _, i := range mg.ElementsOnLevel(d, level) {
			ref := grid.Ref{Dim: d, Index: i}
			if !mg.HasChildren(ref) {
				continue
			}
			for _, v := range mg.Element(ref).Verts {
				_, ok := mg.ChildVertex(grid.VertexRef(v))
				assert.True(t, ok, "vertex %d of refined %v has no copy", v, ref)
			}
		}
	}
}

// checkConforming verifies that sides of the top dimension are shared by two elements unless on the boundary
func checkConforming(t *testing.T, mg *grid.MultiGrid, level int) {
	top := mg.TopDim()
	for _, s := range mg.ElementsOnLevel(top-1, level) {
		var (
			ref  = grid.Ref{Dim: top - 1, Index: s}
			nAdj = len(mg.Associated(ref, top))
		)
		if mg.Element(ref).Boundary {
			assert.Equal(t, 1, nAdj, "boundary side %v", ref)
		} else {
			assert.Equal(t, 2, nAdj, "interior side %v", ref)
		}
	}
}

func TestRegularTetRefinement(t *testing.T) {
	var (
		mg         = newGrid(t, mesh.UnitTet())
		core, logs = observer.New(zap.WarnLevel)
		r          = NewRefiner(mg, WithLogger(zap.New(core)))
	)
	r.MarkAll()
	require.NoError(t, r.Refine())
	assert.True(t, mg.OptionIsEnabled(grid.OptionFullInterconnection))
	assert.Equal(t, 1, logs.FilterMessage("auto-enabling full interconnection on the multigrid").Len())
	assert.Equal(t, 0, r.NumMarked())

	r.MarkAll()
	require.NoError(t, r.Refine())

	stats := mg.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, [grid.NumDims]int{10, 25, 24, 8}, stats[1].Counts)
	assert.Equal(t, 35, stats[2].Counts[grid.DimVertex])
	assert.Equal(t, 64, stats[2].Counts[grid.DimVolume])
	assert.Equal(t, 64, stats[2].Leaves[grid.DimVolume])
	assert.Equal(t, 0, stats[1].Leaves[grid.DimVolume])

	for level := 0; level < 3; level++ {
		assert.InDelta(t, 1./6., levelMeasure(mg, grid.DimVolume, level), 1.e-12)
	}
	checkConforming(t, mg, 1)
	checkConforming(t, mg, 2)

	for _, v := range mg.ElementsOnLevel(grid.DimVolume, 2) {
		var (
			ref    = grid.VolumeRef(v)
			parent = mg.Volume(v).Parent
		)
		require.True(t, parent.Valid())
		assert.Equal(t, 1, mg.Level(parent))
		anc, ok := mg.AncestorOnLevel(ref, 0)
		assert.True(t, ok)
		assert.Equal(t, grid.VolumeRef(0), anc)
	}
	for d := grid.DimEdge; d < grid.NumDims; d++ {
		for i := 0; i < mg.Num(d); i++ {
			el := mg.Element(grid.Ref{Dim: d, Index: i})
			assert.NotEqual(t, grid.StatusCopy, el.Status)
			if el.Level > 0 {
				assert.Equal(t, grid.StatusRegular, el.Status)
			}
			assert.Equal(t, grid.Normal, el.Constraint)
		}
	}
}

func TestRefineIdempotent(t *testing.T) {
	var (
		mg = newGrid(t, mesh.UnitSquareTris(2))
		r  = NewRefiner(mg, WithLogger(zap.NewNop()))
	)
	rev := mg.Revision()
	require.NoError(t, r.Refine())
	assert.Equal(t, rev, mg.Revision())
	assert.Equal(t, 1, mg.NumLevels())

	r.MarkAll()
	require.NoError(t, r.Refine())
	assert.Equal(t, 2, mg.NumLevels())
	assert.InDelta(t, 1., levelMeasure(mg, grid.DimFace, 1), 1.e-12)

	// Elements with children are never refined again
	rev = mg.Revision()
	r.MarkForRefinement(grid.FaceRef(0), grid.EdgeRef(0))
	require.NoError(t, r.Refine())
	assert.Equal(t, rev, mg.Revision())
	assert.Equal(t, 2, mg.NumLevels())
}

func TestCopyAndIrregularElementsAreNotRefined(t *testing.T) {
	var (
		mg         = newGrid(t, mesh.UnitSquareTris(2))
		core, logs = observer.New(zap.WarnLevel)
		r          = NewRefiner(mg, WithLogger(zap.New(core)))
	)
	r.MarkForRefinement(grid.FaceRef(1))
	require.NoError(t, r.Refine())
	var copyFace, irregularFace = -1, -1
	for _, f := range mg.ElementsOnLevel(grid.DimFace, 1) {
		switch mg.Face(f).Status {
		case grid.StatusCopy:
			copyFace = f
		case grid.StatusIrregular:
			irregularFace = f
		}
	}
	require.GreaterOrEqual(t, copyFace, 0)
	require.GreaterOrEqual(t, irregularFace, 0)
	rev := mg.Revision()
	r.MarkForRefinement(grid.FaceRef(copyFace), grid.FaceRef(irregularFace))
	require.NoError(t, r.Refine())
	assert.Equal(t, rev, mg.Revision())
	assert.Equal(t, 2, logs.FilterMessage("element can not be refined in its current state").Len())
}

func TestTriangleClosure(t *testing.T) {
	{ // Without copy range only the marked face and its neighbors reach the new level
		var (
			mg = newGrid(t, mesh.UnitSquareTris(2))
			r  = NewRefiner(mg, WithCopyRange(0), WithLogger(zap.NewNop()))
		)
		r.MarkForRefinement(grid.FaceRef(1))
		require.NoError(t, r.Refine())
		checkClosure(t, mg, 0)

		assert.Len(t, mg.ChildrenOfDim(grid.FaceRef(1), grid.DimFace), 4)
		for _, c := range mg.ChildrenOfDim(grid.FaceRef(1), grid.DimFace) {
			assert.Equal(t, grid.StatusRegular, mg.Face(c).Status)
		}
		var refined int
		for _, f := range mg.ElementsOnLevel(grid.DimFace, 0) {
			if f == 1 || !mg.HasChildren(grid.FaceRef(f)) {
				continue
			}
			refined++
			children := mg.ChildrenOfDim(grid.FaceRef(f), grid.DimFace)
			assert.Len(t, children, 2)
			for _, c := range children {
				assert.Equal(t, grid.StatusIrregular, mg.Face(c).Status)
			}
		}
		assert.Equal(t, 2, refined)
		assert.Len(t, mg.ElementsOnLevel(grid.DimFace, 1), 8)
		assert.InDelta(t, 3./8., levelMeasure(mg, grid.DimFace, 1), 1.e-12)
		for _, f := range mg.ElementsOnLevel(grid.DimFace, 1) {
			assert.NotEqual(t, grid.StatusCopy, mg.Face(f).Status)
		}
	}
	{ // The copy range adds copies around the closure
		var (
			mg = newGrid(t, mesh.UnitSquareTris(2))
			r  = NewRefiner(mg, WithLogger(zap.NewNop()))
		)
		assert.Equal(t, DefaultCopyRange, r.CopyRange())
		r.MarkForRefinement(grid.FaceRef(1))
		require.NoError(t, r.Refine())
		checkClosure(t, mg, 0)
		var copies int
		for _, f := range mg.ElementsOnLevel(grid.DimFace, 1) {
			if mg.Face(f).Status == grid.StatusCopy {
				copies++
				parent := mg.Face(f).Parent
				assert.Len(t, mg.Face(parent.Index).Children, 1)
			}
		}
		assert.Greater(t, copies, 0)
		assert.Greater(t, len(mg.ElementsOnLevel(grid.DimFace, 1)), 8)
		assert.LessOrEqual(t, levelMeasure(mg, grid.DimFace, 1), 1.+1.e-12)
	}
	{ // Refining the finer level keeps closing the refinement
		var (
			mg = newGrid(t, mesh.UnitSquareTris(4))
			r  = NewRefiner(mg, WithLogger(zap.NewNop()))
		)
		r.MarkAll()
		require.NoError(t, r.Refine())
		for _, f := range mg.ElementsOnLevel(grid.DimFace, 1) {
			if c := mg.Centroid(grid.FaceRef(f)); c[0] < 0.25 && c[1] < 0.25 {
				r.MarkForRefinement(grid.FaceRef(f))
			}
		}
		require.NoError(t, r.Refine())
		checkClosure(t, mg, 1)
		assert.Equal(t, 3, mg.NumLevels())
		for _, e := range mg.ElementsOnLevel(grid.DimEdge, 2) {
			nAdj := len(mg.AssociatedFaces(grid.EdgeRef(e)))
			assert.True(t, nAdj == 1 || nAdj == 2, "edge %d has %d faces", e, nAdj)
		}
	}
}

func TestQuadRefinement(t *testing.T) {
	{ // Uniform
		var (
			mg = newGrid(t, mesh.UnitSquareQuads(2))
			r  = NewRefiner(mg, WithLogger(zap.NewNop()))
		)
		r.MarkAll()
		require.NoError(t, r.Refine())
		checkClosure(t, mg, 0)
		stats := mg.Stats()
		assert.Equal(t, 16, stats[1].Counts[grid.DimFace])
		assert.Equal(t, 25, stats[1].Counts[grid.DimVertex])
		assert.InDelta(t, 1., levelMeasure(mg, grid.DimFace, 1), 1.e-12)
		for _, f := range mg.ElementsOnLevel(grid.DimFace, 1) {
			assert.Equal(t, grid.StatusRegular, mg.Face(f).Status)
			assert.Equal(t, grid.Quad, mg.Face(f).Type)
		}
		checkConforming(t, mg, 1)
	}
	{ // Quads next to a single split edge have no template, the split edges hang
		var (
			mg = newGrid(t, mesh.UnitSquareQuads(2))
			r  = NewRefiner(mg, WithCopyRange(0), WithLogger(zap.NewNop()))
		)
		r.MarkForRefinement(grid.FaceRef(0))
		err := r.Refine()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
		assert.Len(t, multierr.Errors(err), 2)
		assert.Len(t, mg.ChildrenOfDim(grid.FaceRef(0), grid.DimFace), 4)
		assert.False(t, mg.HasChildren(grid.FaceRef(1)))
		assert.False(t, mg.HasChildren(grid.FaceRef(2)))
		assert.False(t, mg.HasChildren(grid.FaceRef(3)))

		for _, pair := range [][2]int{{1, 4}, {4, 3}} {
			e, ok := mg.FindEdge(pair[0], pair[1])
			require.True(t, ok)
			assert.Equal(t, grid.Constraining, mg.Edge(e).Constraint)
			mid, ok := mg.ChildVertex(grid.EdgeRef(e))
			require.True(t, ok)
			assert.Equal(t, grid.Constrained, mg.Vertex(mid).Constraint)
			for _, c := range mg.ChildrenOfDim(grid.EdgeRef(e), grid.DimEdge) {
				assert.Equal(t, grid.Constrained, mg.Edge(c).Constraint)
			}
		}
		for _, pair := range [][2]int{{0, 1}, {3, 0}} {
			e, ok := mg.FindEdge(pair[0], pair[1])
			require.True(t, ok)
			assert.Equal(t, grid.Normal, mg.Edge(e).Constraint)
		}
	}
}

func TestTetClosure(t *testing.T) {
	var (
		mg = newGrid(t, mesh.CubeTets())
		r  = NewRefiner(mg, WithLogger(zap.NewNop()))
	)
	r.MarkForRefinement(grid.VolumeRef(0))
	require.NoError(t, r.Refine())
	checkClosure(t, mg, 0)
	checkConforming(t, mg, 1)
	assert.InDelta(t, 1., levelMeasure(mg, grid.DimVolume, 1), 1.e-12)

	// Tet 0 is red, tets 1 and 2 share a face with it, the others only the cube diagonal
	for vol, n := range []int{8, 4, 4, 2, 2, 2} {
		children := mg.ChildrenOfDim(grid.VolumeRef(vol), grid.DimVolume)
		assert.Len(t, children, n, "children of tet %d", vol)
		var sum float64
		for _, c := range children {
			sum += measure(mg, grid.VolumeRef(c))
		}
		assert.InDelta(t, measure(mg, grid.VolumeRef(vol)), sum, 1.e-12)
		status := grid.StatusIrregular
		if vol == 0 {
			status = grid.StatusRegular
		}
		for _, c := range children {
			assert.Equal(t, status, mg.Volume(c).Status)
		}
	}
}

func TestAdaptiveTetRefinement(t *testing.T) {
	// childrenKeepMeasure checks that the children of every refined volume of the level fill their parent
	childrenKeepMeasure := func(mg *grid.MultiGrid, level int) {
		for _, vol := range mg.ElementsOnLevel(grid.DimVolume, level) {
			children := mg.ChildrenOfDim(grid.VolumeRef(vol), grid.DimVolume)
			if len(children) == 0 {
				continue
			}
			var sum float64
			for _, c := range children {
				sum += measure(mg, grid.VolumeRef(c))
			}
			assert.InDelta(t, measure(mg, grid.VolumeRef(vol)), sum, 1.e-12, "children of tet %d", vol)
		}
	}
	{ // Tets 0 and 3 leave five split edges on tet 2, which is refined regularly
		var (
			mg = newGrid(t, mesh.CubeTets())
			r  = NewRefiner(mg, WithLogger(zap.NewNop()))
		)
		r.MarkForRefinement(grid.VolumeRef(0), grid.VolumeRef(3))
		require.NoError(t, r.Refine())
		checkClosure(t, mg, 0)
		checkConforming(t, mg, 1)
		childrenKeepMeasure(mg, 0)
		assert.InDelta(t, 1., levelMeasure(mg, grid.DimVolume, 1), 1.e-12)
		for vol, n := range []int{8, 4, 8, 8, 2, 4} {
			assert.Len(t, mg.ChildrenOfDim(grid.VolumeRef(vol), grid.DimVolume), n, "children of tet %d", vol)
		}
		for _, c := range mg.ChildrenOfDim(grid.VolumeRef(2), grid.DimVolume) {
			assert.Equal(t, grid.StatusRegular, mg.Volume(c).Status)
		}
	}
	{ // One corner tet after a uniform pass
		var (
			mg = newGrid(t, mesh.CubeTets())
			r  = NewRefiner(mg, WithLogger(zap.NewNop()))
		)
		r.MarkAll()
		require.NoError(t, r.Refine())
		corner := -1
		for _, vol := range mg.ElementsOnLevel(grid.DimVolume, 1) {
			for _, v := range mg.Volume(vol).Verts {
				if mg.Pos(v) == [3]float64{} {
					corner = vol
				}
			}
			if corner >= 0 {
				break
			}
		}
		require.GreaterOrEqual(t, corner, 0)
		r.MarkForRefinement(grid.VolumeRef(corner))
		require.NoError(t, r.Refine())
		assert.Equal(t, 3, mg.NumLevels())
		checkClosure(t, mg, 1)
		childrenKeepMeasure(mg, 1)
		assert.Len(t, mg.ChildrenOfDim(grid.VolumeRef(corner), grid.DimVolume), 8)
	}
}

func TestVisualOffset(t *testing.T) {
	var (
		mg = newGrid(t, mesh.UnitTet())
		r  = NewRefiner(mg, WithVisualOffset(0.01), WithLogger(zap.NewNop()))
	)
	r.MarkAll()
	require.NoError(t, r.Refine())
	c, ok := mg.ChildVertex(grid.VertexRef(0))
	require.True(t, ok)
	assert.InDelta(t, 0.01, mg.Pos(c)[2], 1.e-15)
	e, ok := mg.FindEdge(0, 3)
	require.True(t, ok)
	mid, ok := mg.ChildVertex(grid.EdgeRef(e))
	require.True(t, ok)
	assert.InDelta(t, 0.51, mg.Pos(mid)[2], 1.e-14)
}

func TestCoarseningUnsupported(t *testing.T) {
	r := NewRefiner(newGrid(t, mesh.UnitTet()), WithLogger(zap.NewNop()))
	assert.NoError(t, r.MarkForCoarsening())
	assert.ErrorIs(t, r.MarkForCoarsening(grid.VolumeRef(0)), ErrCoarseningUnsupported)
}

func TestTemplates(t *testing.T) {
	{ // Bisection follows the edge order
		split := map[types.EdgeKey]int{
			types.NewEdgeKey([2]int{0, 1}): 3,
			types.NewEdgeKey([2]int{1, 2}): 4,
		}
		children := bisect([]int{0, 1, 2}, split, func(a, b types.EdgeKey) bool { return a.Less(b) })
		assert.Equal(t, [][]int{{0, 3, 2}, {3, 1, 4}, {3, 4, 2}}, children)
	}
	{ // Every red face triangle is a face of one of the red children
		ts := newTemplateSet()
		require.Len(t, ts.redTet, 8)
		childFaces := make(map[types.ElementKey]int)
		for _, tet := range ts.redTet {
			for _, lf := range grid.TetFaces {
				childFaces[types.NewElementKey([]int{tet[lf[0]], tet[lf[1]], tet[lf[2]]})]++
			}
		}
		for f := range ts.triOfTet {
			require.Len(t, ts.triOfTet[f], 4)
			for _, tri := range ts.triOfTet[f] {
				assert.Equal(t, 1, childFaces[types.NewElementKey(tri)], "face %d triangle %v", f, tri)
			}
		}
		// Inner faces are shared by two children
		var shared int
		for _, n := range childFaces {
			if n == 2 {
				shared++
			}
		}
		assert.Equal(t, 8, shared)
	}
}
