package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gomg/mesh"
)

type recorder struct {
	created []Ref
	ended   int
}

func (r *recorder) ElementCreated(mg *MultiGrid, ref Ref)     { r.created = append(r.created, ref) }
func (r *recorder) HierarchicalInsertionEnded(mg *MultiGrid) { r.ended++ }

func TestFromMesh(t *testing.T) {
	{ // Single tetrahedron
		mg, err := FromMesh(mesh.UnitTet())
		require.NoError(t, err)
		assert.Equal(t, 4, mg.Num(DimVertex))
		assert.Equal(t, 6, mg.Num(DimEdge))
		assert.Equal(t, 4, mg.Num(DimFace))
		assert.Equal(t, 1, mg.Num(DimVolume))
		assert.Equal(t, 1, mg.NumLevels())
		assert.Equal(t, DimVolume, mg.TopDim())

		vol := mg.Volume(0)
		for i, le := range TetEdges {
			e := mg.Edge(vol.Edges[i])
			assert.ElementsMatch(t, []int{vol.Verts[le[0]], vol.Verts[le[1]]}, e.Verts)
		}
		for i, lf := range TetFaces {
			f := mg.Face(vol.Faces[i])
			assert.ElementsMatch(t, []int{vol.Verts[lf[0]], vol.Verts[lf[1]], vol.Verts[lf[2]]}, f.Verts)
			for j, le := range TetFaceEdges[i] {
				assert.Equal(t, vol.Edges[le], f.Edges[j])
			}
			assert.True(t, f.Boundary)
		}
		assert.False(t, vol.Boundary)
		f, ok := mg.FindFace(3, 1, 2)
		assert.True(t, ok)
		assert.Equal(t, vol.Faces[1], f)
		_, ok = mg.FindVolume(0, 1, 2, 3)
		assert.True(t, ok)
	}
	{ // Interior sides of the cube are not boundary
		mg, err := FromMesh(mesh.CubeTets())
		require.NoError(t, err)
		var nBoundary int
		for i := 0; i < mg.Num(DimFace); i++ {
			if mg.Face(i).Boundary {
				nBoundary++
			}
		}
		assert.Equal(t, 12, nBoundary)
		assert.Equal(t, 18, mg.Num(DimFace))
		assert.Equal(t, 19, mg.Num(DimEdge))
		for v := 0; v < 8; v++ {
			assert.True(t, mg.Vertex(v).Boundary)
		}
		e, ok := mg.FindEdge(7, 0)
		require.True(t, ok)
		assert.False(t, mg.Edge(e).Boundary)
	}
	{ // 2D boundary is made of edges
		mg, err := FromMesh(mesh.UnitSquareTris(2))
		require.NoError(t, err)
		assert.Equal(t, DimFace, mg.TopDim())
		assert.False(t, mg.Vertex(4).Boundary)
		assert.True(t, mg.Vertex(3).Boundary)
	}
}

func TestHierarchicalInsertion(t *testing.T) {
	mg, err := FromMesh(mesh.UnitSquareTris(1))
	require.NoError(t, err)
	rec := &recorder{}
	mg.AddObserver(rec)

	assert.Panics(t, func() { mg.CreateVertex([3]float64{}, VertexRef(0)) })

	rev := mg.Revision()
	mg.BeginHierarchicalInsertion()
	assert.Panics(t, func() { mg.CreateVertex([3]float64{}, NoParent) })
	c0 := mg.CreateVertex(mg.Pos(0), VertexRef(0))
	c1 := mg.CreateVertex(mg.Pos(1), VertexRef(1))
	e01, ok := mg.FindEdge(0, 1)
	require.True(t, ok)
	ce := mg.CreateEdge(c0, c1, EdgeRef(e01))
	assert.Panics(t, func() { mg.CreateEdge(c0, 2, EdgeRef(e01)) }) // vertex 2 is on level 0
	mg.EndHierarchicalInsertion()

	assert.Greater(t, mg.Revision(), rev)
	assert.Equal(t, 1, rec.ended)
	assert.Equal(t, []Ref{VertexRef(c0), VertexRef(c1), EdgeRef(ce)}, rec.created)
	assert.Equal(t, 2, mg.NumLevels())
	assert.Equal(t, 1, mg.Edge(ce).Level)
	assert.True(t, mg.HasChildren(EdgeRef(e01)))
	assert.True(t, mg.Edge(ce).Boundary)
	v, ok := mg.ChildVertex(VertexRef(0))
	assert.True(t, ok)
	assert.Equal(t, c0, v)
	assert.Equal(t, c0, mg.LeafVertex(0))
	assert.Equal(t, 2, mg.LeafVertex(2))
	anc, ok := mg.AncestorOnLevel(EdgeRef(ce), 0)
	assert.True(t, ok)
	assert.Equal(t, EdgeRef(e01), anc)
	assert.Equal(t, []int{c0, c1}, mg.ElementsOnLevel(DimVertex, 1))

	mg.RemoveObserver(rec)
	mg.EnsureLevels(4)
	assert.Equal(t, 4, mg.NumLevels())
	assert.Empty(t, mg.ElementsOnLevel(DimFace, 3))
	stats := mg.Stats()
	assert.Len(t, stats, 4)
	assert.Equal(t, 2, stats[1].Counts[DimVertex])
	assert.Equal(t, 2, stats[0].Leaves[DimVertex])
}

func TestAssociatedElements(t *testing.T) {
	mg, err := FromMesh(mesh.UnitTet())
	require.NoError(t, err)
	assert.False(t, mg.OptionIsEnabled(OptionFullInterconnection))
	assert.Panics(t, func() { mg.AssociatedEdges(0) })

	mg.EnableOptions(OptionFullInterconnection)
	assert.Len(t, mg.AssociatedEdges(0), 3)
	assert.Len(t, mg.AssociatedFaces(VertexRef(0)), 3)
	assert.Len(t, mg.AssociatedVolumes(VertexRef(0)), 1)
	e, _ := mg.FindEdge(0, 1)
	assert.Len(t, mg.AssociatedFaces(EdgeRef(e)), 2)
	assert.Equal(t, []int{0}, mg.AssociatedVolumes(FaceRef(0)))
	assert.Panics(t, func() { mg.Associated(FaceRef(0), DimEdge) })

	// Adjacency is maintained for new elements
	v := mg.CreateVertex([3]float64{1, 1, 1}, NoParent)
	f := mg.CreateFace([]int{1, 2, v}, NoParent)
	e12, _ := mg.FindEdge(1, 2)
	assert.ElementsMatch(t, []int{mg.Volume(0).Faces[0], mg.Volume(0).Faces[1], f}, mg.AssociatedFaces(EdgeRef(e12)))
	assert.Len(t, mg.AssociatedEdges(v), 2)
}
