package algebra

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/notargets/gomg/parallel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// laplace1D is the tridiagonal matrix of the 1D Laplacian with Dirichlet ends eliminated
func laplace1D(n int) *Matrix {
	b := NewMatrixBuilder(n, n)
	for i := 0; i < n; i++ {
		b.Add(i, i, 2)
		if i > 0 {
			b.Add(i, i-1, -1)
		}
		if i < n-1 {
			b.Add(i, i+1, -1)
		}
	}
	return b.Build("laplace1D")
}

func randomVector(n int, seed int64) *Vector {
	rng := rand.New(rand.NewSource(seed))
	v := NewVector(n)
	for i := range v.Data {
		v.Data[i] = rng.Float64() - 0.5
	}
	return v
}

type notAMatrix struct{}

func (notAMatrix) Apply(f, u *Vector) error    { return nil }
func (notAMatrix) ApplySub(f, u *Vector) error { return nil }

func TestVector(t *testing.T) {
	v := NewVectorFrom([]float64{3, 4})
	assert.Equal(t, 5., v.Norm())
	assert.Equal(t, Consistent, v.StorageType())
	w := v.Clone()
	w.Data[0] = 0
	assert.Equal(t, 3., v.Data[0])
	w.AddScaled(2, v)
	assert.Equal(t, []float64{6, 12}, w.Data)
	w.Sub(v)
	assert.Equal(t, []float64{3, 8}, w.Data)
	assert.Equal(t, 41., w.Dot(v))
	w.Scale(0.5)
	assert.Equal(t, []float64{1.5, 4}, w.Data)
	assert.Panics(t, func() { w.Add(NewVector(3)) })
	assert.Equal(t, 0., NewVector(0).Norm())

	v.SetStorageType(Additive)
	v.AddStorageType(Unique)
	assert.True(t, v.HasStorageType(Additive|Unique))
	assert.False(t, v.HasStorageType(Consistent))
	assert.Equal(t, "Additive|Unique", v.StorageType().String())
	v.RemoveStorageType(Unique)
	assert.Equal(t, "Additive", v.StorageType().String())
	assert.Equal(t, "Undefined", StorageType(0).String())

	l := parallel.NewLayout()
	l.Add(1, 1)
	v.ZeroLayout(l)
	v.ZeroLayout(nil)
	assert.Equal(t, []float64{3, 0}, v.Data)
}

func TestMatrix(t *testing.T) {
	var (
		A = laplace1D(4)
		u = NewVectorFrom([]float64{1, 2, 3, 4})
		f = NewVector(4)
	)
	require.NoError(t, A.Apply(f, u))
	assert.Equal(t, []float64{0, 0, 0, 5}, f.Data)
	require.NoError(t, A.ApplySub(f, u))
	assert.Equal(t, []float64{0, 0, 0, 0}, f.Data)
	assert.Equal(t, []float64{2, 2, 2, 2}, A.Diagonal())
	assert.Equal(t, 10, A.NNZ())
	assert.Equal(t, -1., A.Dense().At(2, 1))

	b := NewMatrixBuilder(2, 3)
	b.Set(0, 2, 1)
	b.Add(1, 0, 2)
	assert.Equal(t, 1., b.At(0, 2))
	P := b.Build("P")
	assert.Panics(t, func() { b.Add(0, 0, 1) })
	x := NewVector(3)
	require.NoError(t, P.ApplyTransposed(x, NewVectorFrom([]float64{1, 1})))
	assert.Equal(t, []float64{2, 0, 1}, x.Data)
	assert.ErrorIs(t, P.Apply(NewVector(3), x), ErrDimensionMismatch)
	assert.ErrorIs(t, P.ApplyTransposed(NewVector(2), x), ErrDimensionMismatch)
}

func TestIterators(t *testing.T) {
	var (
		n = 10
		A = laplace1D(n)
	)
	iterators := []LinearIterator{
		NewJacobi(0.66),
		NewGaussSeidel(Forward),
		NewGaussSeidel(Backward),
		NewGaussSeidel(Symmetric),
		NewLU(),
		NewCG(),
	}
	for _, it := range iterators {
		t.Run(it.Name(), func(t *testing.T) {
			c, d := NewVector(n), randomVector(n, 1)
			assert.ErrorIs(t, it.ApplyUpdateDefect(c, d), ErrNotInitialized)
			require.NoError(t, it.Init(A, nil))

			// The updated defect is the old one minus A c
			d0 := d.Clone()
			require.NoError(t, it.ApplyUpdateDefect(c, d))
			check := d0.Clone()
			require.NoError(t, A.ApplySub(check, c))
			for i := range d.Data {
				assert.InDelta(t, check.Data[i], d.Data[i], 1.e-12)
			}
			assert.Less(t, d.Norm(), d0.Norm())

			// Apply leaves the defect alone and computes the same correction
			var (
				c2     = NewVector(n)
				before = d0.Clone()
			)
			require.NoError(t, it.Apply(c2, d0))
			assert.Equal(t, before.Data, d0.Data)
			assert.InDeltaSlice(t, c.Data, c2.Data, 1.e-14)

			cl := it.Clone()
			assert.Equal(t, it.Name(), cl.Name())
			assert.ErrorIs(t, cl.ApplyUpdateDefect(NewVector(n), d0.Clone()), ErrNotInitialized)
			assert.ErrorIs(t, cl.Init(notAMatrix{}, nil), ErrMatrixRequired)
		})
	}
	{ // Direct solvers solve exactly
		for _, it := range []LinearIterator{NewLU(), NewCG()} {
			require.NoError(t, it.Init(A, nil))
			c, d := NewVector(n), randomVector(n, 2)
			require.NoError(t, it.ApplyUpdateDefect(c, d))
			assert.Less(t, d.Norm(), 1.e-10, it.Name())
		}
	}
	{ // Singular operators
		b := NewMatrixBuilder(2, 2)
		b.Set(0, 0, 1)
		b.Set(0, 1, 1)
		b.Set(1, 0, 1)
		b.Set(1, 1, 1)
		assert.ErrorIs(t, NewLU().Init(b.Build("singular"), nil), ErrSingular)
		z := NewMatrixBuilder(2, 2)
		z.Set(0, 1, 1)
		z.Set(1, 0, 1)
		Z := z.Build("zero diagonal")
		assert.ErrorIs(t, NewJacobi(1).Init(Z, nil), ErrSingular)
		assert.ErrorIs(t, NewGaussSeidel(Forward).Init(Z, nil), ErrSingular)
		assert.ErrorIs(t, NewCG().Init(Z, nil), ErrSingular)
	}
	{ // Empty operators
		E := NewMatrixBuilder(0, 0).Build("empty")
		lu := NewLU()
		require.NoError(t, lu.Init(E, nil))
		require.NoError(t, lu.ApplyUpdateDefect(NewVector(0), NewVector(0)))
		jac := NewJacobi(1)
		require.NoError(t, jac.Init(E, nil))
		require.NoError(t, jac.ApplyUpdateDefect(NewVector(0), NewVector(0)))
	}
}

func TestLinearSolver(t *testing.T) {
	var (
		n = 10
		A = laplace1D(n)
		b = randomVector(n, 3)
	)
	{
		s := NewLinearSolver(NewGaussSeidel(Symmetric), WithMaxIterations(1000), WithTolerance(1.e-14, 1.e-10),
			WithSolverLogger(zap.NewNop()))
		x := NewVector(n)
		_, err := s.Solve(x, b)
		assert.ErrorIs(t, err, ErrNotInitialized)
		require.NoError(t, s.Init(A, x))
		res, err := s.Solve(x, b)
		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.Len(t, res.Defects, res.Iterations+1)
		assert.Less(t, res.FinalDefect, 1.e-10*res.InitialDefect)
		assert.Less(t, res.Rate(), 1.)
		for k := 1; k < len(res.Defects); k++ {
			assert.Less(t, res.Defects[k], res.Defects[k-1])
		}
		r := b.Clone()
		require.NoError(t, A.ApplySub(r, x))
		assert.InDelta(t, res.FinalDefect, r.Norm(), 1.e-14)
	}
	{ // An exact preconditioner needs one iteration
		s := NewLinearSolver(NewLU(), WithSolverLogger(zap.NewNop()))
		require.NoError(t, s.Init(A, nil))
		res, err := s.Solve(NewVector(n), b)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Iterations)
	}
	{ // Too few iterations
		s := NewLinearSolver(NewJacobi(0.5), WithMaxIterations(3), WithSolverLogger(zap.NewNop()))
		require.NoError(t, s.Init(A, nil))
		res, err := s.Solve(NewVector(n), b)
		assert.ErrorIs(t, err, ErrNotConverged)
		assert.False(t, res.Converged)
		assert.Equal(t, 3, res.Iterations)
	}
	{ // A NaN correction stops the iteration
		s := NewLinearSolver(NewJacobi(math.NaN()), WithSolverLogger(zap.NewNop()))
		require.NoError(t, s.Init(A, nil))
		res, err := s.Solve(NewVector(n), b)
		assert.ErrorIs(t, err, ErrDiverged)
		assert.Equal(t, 1, res.Iterations)
	}
}

func TestAdditiveToConsistent(t *testing.T) {
	var (
		w      = parallel.NewWorld(2, zap.NewNop())
		result [2][]float64
	)
	err := w.Run(context.Background(), func(ctx context.Context, comm *parallel.Communicator) error {
		var (
			rank = comm.Rank()
			v    = NewVectorFrom([]float64{1, 2, 3})
			l    = parallel.NewLayout()
		)
		// Entry 2 of rank 0 and entry 0 of rank 1 are the same DoF
		if rank == 0 {
			l.Add(1, 2)
			v.SetLayouts(VectorLayouts{HMaster: l})
		} else {
			l.Add(0, 0)
			v.SetLayouts(VectorLayouts{HSlave: l})
		}
		if err := AdditiveToConsistent(ctx, comm, v); err == nil {
			return fmt.Errorf("consistent vectors must be rejected")
		}
		v.SetStorageType(Additive)
		if err := AdditiveToConsistent(ctx, comm, v); err != nil {
			return err
		}
		if !v.HasStorageType(Consistent) {
			return fmt.Errorf("rank %d has storage type %s", rank, v.StorageType())
		}
		result[rank] = v.Clone().Data
		if err := ConsistentToUnique(v); err != nil {
			return err
		}
		if rank == 1 && v.Data[0] != 0 {
			return fmt.Errorf("slave entry kept its value %g", v.Data[0])
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4}, result[0])
	assert.Equal(t, []float64{4, 2, 3}, result[1])
}
