package disc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
	"github.com/notargets/gomg/mesh"
	"github.com/notargets/gomg/refine"
)

func uniformSpace(t *testing.T, m *mesh.Mesh, n int) *dof.ApproximationSpace {
	mg, err := grid.FromMesh(m)
	require.NoError(t, err)
	r := refine.NewRefiner(mg, refine.WithLogger(zap.NewNop()))
	for i := 0; i < n; i++ {
		r.MarkAll()
		require.NoError(t, r.Refine())
	}
	return dof.NewApproximationSpace(mg, dof.WithLogger(zap.NewNop()))
}

// solveSurface solves the surface problem directly
func solveSurface(t *testing.T, rd *ReactionDiffusion) *algebra.Vector {
	A, err := rd.AssembleSurfaceOperator()
	require.NoError(t, err)
	b, err := rd.AssembleSurfaceRHS()
	require.NoError(t, err)
	lu := algebra.NewLU()
	require.NoError(t, lu.Init(A, nil))
	u := algebra.NewVector(b.Len())
	require.NoError(t, lu.Apply(u, b))
	return u
}

func TestSimplexGradients(t *testing.T) {
	vol, grads, err := simplexGradients([][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, vol, 1.e-15)
	assert.Equal(t, [][3]float64{{-1, -1, 0}, {1, 0, 0}, {0, 1, 0}}, grads)

	vol, grads, err = simplexGradients([][3]float64{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}, {0, 0, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 8./6., vol, 1.e-15)
	assert.InDeltaSlice(t, []float64{-0.5, -0.5, -0.5}, grads[0][:], 1.e-15)
	assert.InDeltaSlice(t, []float64{0, 0, 0.5}, grads[3][:], 1.e-15)

	_, _, err = simplexGradients([][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}})
	assert.ErrorIs(t, err, ErrDegenerateElement)
}

func TestLevelOperator(t *testing.T) {
	var (
		space = uniformSpace(t, mesh.UnitSquareTris(2), 1)
		rd    = NewReactionDiffusion(space, WithLogger(zap.NewNop()))
	)
	{ // Only the center vertex of the coarse level is interior
		A, err := rd.AssembleLevelOperator(0, space.LevelDoFDistribution(0))
		require.NoError(t, err)
		for i := 0; i < 9; i++ {
			expected := 1.
			if i == 4 {
				expected = 4
			}
			assert.InDelta(t, expected, A.Diagonal()[i], 1.e-14)
		}
		assert.Equal(t, 9, A.NNZ())
	}
	{ // The fine level operator is the symmetric five point stencil
		var (
			dd     = space.LevelDoFDistribution(1)
			A, err = rd.AssembleLevelOperator(1, dd)
			mg     = space.Grid()
		)
		require.NoError(t, err)
		D := A.Dense()
		n, _ := D.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				assert.InDelta(t, D.At(i, j), D.At(j, i), 1.e-14)
			}
			if mg.Vertex(dd.Vertex(i)).Boundary {
				assert.Equal(t, 1., D.At(i, i))
				continue
			}
			assert.InDelta(t, 4., D.At(i, i), 1.e-14)
		}
	}
	{ // Linearization adds the lumped derivative of the cubic term
		var (
			dd = space.LevelDoFDistribution(0)
			nl = NewReactionDiffusion(space, WithCubic(2), WithReaction(1), WithLogger(zap.NewNop()))
			u  = algebra.NewVector(9)
		)
		assert.True(t, nl.Nonlinear())
		assert.False(t, rd.Nonlinear())
		u.Set(3)
		J, err := nl.AssembleLevelJacobian(u, 0, dd)
		require.NoError(t, err)
		// Lumped mass of the center is a third of its six triangles
		assert.InDelta(t, 4+(1+3*2*9)*0.25, J.Diagonal()[4], 1.e-14)
		assert.Equal(t, 1., J.Diagonal()[0])
		_, err = nl.AssembleLevelJacobian(algebra.NewVector(2), 0, dd)
		assert.ErrorIs(t, err, algebra.ErrDimensionMismatch)
	}
	{ // Empty levels give empty operators
		space.Grid().EnsureLevels(3)
		A, err := rd.AssembleLevelOperator(2, space.LevelDoFDistribution(2))
		require.NoError(t, err)
		nr, nc := A.Dims()
		assert.Equal(t, [2]int{0, 0}, [2]int{nr, nc})
	}
}

func TestSurfaceSolve(t *testing.T) {
	{ // The five point stencil is exact for quadratics
		var (
			space = uniformSpace(t, mesh.UnitSquareTris(2), 2)
			exact = func(x [3]float64) float64 { return x[0]*x[0] + x[1]*x[1] }
			rd    = NewReactionDiffusion(space, WithLogger(zap.NewNop()),
				WithSource(func([3]float64) float64 { return -4 }), WithDirichlet(exact))
			u  = solveSurface(t, rd)
			dd = space.SurfaceDoFDistribution()
		)
		for i, v := range dd.Vertices() {
			assert.InDelta(t, exact(space.Grid().Pos(v)), u.Data[i], 1.e-12)
		}
		d, err := rd.SurfaceDefect(u)
		require.NoError(t, err)
		assert.Less(t, d.Norm(), 1.e-12)
	}
	{ // Linear boundary data is reproduced on tetrahedra
		var (
			space = uniformSpace(t, mesh.CubeTets(), 1)
			exact = func(x [3]float64) float64 { return 1 + x[0] - 2*x[1] + 3*x[2] }
			rd    = NewReactionDiffusion(space, WithDiffusion(2), WithDirichlet(exact), WithLogger(zap.NewNop()))
			u     = solveSurface(t, rd)
			dd    = space.SurfaceDoFDistribution()
		)
		for i, v := range dd.Vertices() {
			assert.InDelta(t, exact(space.Grid().Pos(v)), u.Data[i], 1.e-12)
		}
		assert.Len(t, space.SurfaceBoundaryDoFs(), 26)
	}
	{ // The cubic term enters the defect
		var (
			space = uniformSpace(t, mesh.UnitSquareTris(2), 0)
			rd    = NewReactionDiffusion(space, WithCubic(1), WithLogger(zap.NewNop()))
			u     = algebra.NewVector(9)
		)
		u.Data[4] = 2
		d, err := rd.SurfaceDefect(u)
		require.NoError(t, err)
		assert.InDelta(t, -4*2-8*0.25, d.Data[4], 1.e-14)
	}
}

func TestUnsupportedElements(t *testing.T) {
	var (
		space = uniformSpace(t, mesh.UnitSquareQuads(2), 0)
		rd    = NewReactionDiffusion(space, WithLogger(zap.NewNop()))
	)
	_, err := rd.AssembleLevelOperator(0, space.LevelDoFDistribution(0))
	assert.ErrorIs(t, err, grid.ErrUnsupportedElement)
	_, err = rd.AssembleSurfaceRHS()
	assert.ErrorIs(t, err, grid.ErrUnsupportedElement)
}

func TestDirichletConstraint(t *testing.T) {
	var (
		space = uniformSpace(t, mesh.UnitSquareTris(2), 1)
		dc    = NewDirichletConstraint(space)
		v     = space.CreateLevelVector(1)
	)
	v.Set(1)
	require.NoError(t, dc.AdjustProlongation(v, 1))
	var sum float64
	for _, x := range v.Data {
		sum += x
	}
	assert.Equal(t, 9., sum)
	c := space.CreateLevelVector(0)
	c.Set(1)
	require.NoError(t, dc.AdjustRestriction(c, 0))
	assert.Equal(t, 1., c.Data[4])
	assert.Equal(t, 0., c.Data[0])
}
