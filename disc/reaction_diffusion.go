package disc

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gomg/algebra"
	"github.com/notargets/gomg/dof"
	"github.com/notargets/gomg/grid"
)

var (
	ErrDegenerateElement = errors.New("disc: degenerate element")
	ErrMissingDoF        = errors.New("disc: element vertex without DoF")
)

// Function is a coefficient or boundary value as a function of position
type Function func(x [3]float64) float64

type Option func(rd *ReactionDiffusion)

func WithDiffusion(k float64) Option { return func(rd *ReactionDiffusion) { rd.diffusion = k } }
func WithReaction(r float64) Option  { return func(rd *ReactionDiffusion) { rd.reaction = r } }

// WithCubic adds the nonlinear term c*u^3
func WithCubic(c float64) Option      { return func(rd *ReactionDiffusion) { rd.cubic = c } }
func WithSource(f Function) Option    { return func(rd *ReactionDiffusion) { rd.source = f } }
func WithDirichlet(g Function) Option { return func(rd *ReactionDiffusion) { rd.dirichlet = g } }
func WithLogger(logger *zap.Logger) Option {
	return func(rd *ReactionDiffusion) { rd.logger = logger }
}

/*
ReactionDiffusion assembles linear finite elements for -k*Laplace(u) + r*u + c*u^3 = f with u = g on the boundary.
Mass terms are lumped. Boundary DoFs are eliminated symmetrically: their rows and columns are replaced by the identity
and the boundary values move to the right hand side.
*/
type ReactionDiffusion struct {
	space                      *dof.ApproximationSpace
	diffusion, reaction, cubic float64
	source, dirichlet          Function
	logger                     *zap.Logger
}

func NewReactionDiffusion(space *dof.ApproximationSpace, opts ...Option) (rd *ReactionDiffusion) {
	rd = &ReactionDiffusion{
		space:     space,
		diffusion: 1,
		source:    func([3]float64) float64 { return 0 },
		dirichlet: func([3]float64) float64 { return 0 },
		logger:    zap.L().Named("disc"),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return
}

func (rd *ReactionDiffusion) Space() *dof.ApproximationSpace { return rd.space }

// Nonlinear is true when the cubic term is active
func (rd *ReactionDiffusion) Nonlinear() bool { return rd.cubic != 0 }

// element holds the local data of one simplex
type element struct {
	dofs  []int
	pos   [][3]float64
	stiff [][]float64 // k * grad(phi_i) . grad(phi_j) * vol
	mass  float64     // lumped mass of each vertex, vol / (dim+1)
}

func factorial(n int) (f float64) {
	f = 1
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return
}

// simplexGradients returns the volume and the barycentric gradients of a triangle or tetrahedron
func simplexGradients(x [][3]float64) (vol float64, grads [][3]float64, err error) {
	dim := len(x) - 1
	J := mat.NewDense(dim, dim, nil)
	for i := 1; i <= dim; i++ {
		for k := 0; k < dim; k++ {
			J.Set(k, i-1, x[i][k]-x[0][k])
		}
	}
	det := mat.Det(J)
	if math.Abs(det) < 1.e-300 {
		return 0, nil, ErrDegenerateElement
	}
	var Jinv mat.Dense
	if err = Jinv.Inverse(J); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrDegenerateElement, err)
	}
	grads = make([][3]float64, dim+1)
	for i := 0; i < dim; i++ {
		for k := 0; k < dim; k++ {
			grads[i+1][k] = Jinv.At(i, k)
			grads[0][k] -= Jinv.At(i, k)
		}
	}
	vol = math.Abs(det) / factorial(dim)
	return
}

// localElement computes stiffness and lumped mass of a triangle or tetrahedron
func (rd *ReactionDiffusion) localElement(r grid.Ref, index func(v int) (int, bool)) (el *element, err error) {
	var (
		mg = rd.space.Grid()
		ge = mg.Element(r)
	)
	if ge.Type != grid.Triangle && ge.Type != grid.Tet {
		return nil, fmt.Errorf("%s %d: %w", ge.Type, r.Index, grid.ErrUnsupportedElement)
	}
	el = &element{
		dofs: make([]int, len(ge.Verts)),
		pos:  make([][3]float64, len(ge.Verts)),
	}
	for i, v := range ge.Verts {
		var ok bool
		if el.dofs[i], ok = index(v); !ok {
			return nil, fmt.Errorf("vertex %d of %v: %w", v, r, ErrMissingDoF)
		}
		el.pos[i] = mg.Pos(v)
	}
	vol, grads, err := simplexGradients(el.pos)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", r, err)
	}
	n := len(ge.Verts)
	el.stiff = make([][]float64, n)
	for i := range el.stiff {
		el.stiff[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			el.stiff[i][j] = rd.diffusion * vol *
				(grads[i][0]*grads[j][0] + grads[i][1]*grads[j][1] + grads[i][2]*grads[j][2])
		}
	}
	el.mass = vol / float64(n)
	return
}

// elements builds the local data of every element in refs
func (rd *ReactionDiffusion) elements(d grid.Dim, refs []int, index func(v int) (int, bool)) (els []*element,
	err error) {
	els = make([]*element, 0, len(refs))
	for _, i := range refs {
		var el *element
		if el, err = rd.localElement(grid.Ref{Dim: d, Index: i}, index); err != nil {
			return nil, err
		}
		els = append(els, el)
	}
	return
}

func (rd *ReactionDiffusion) boundary(dd *dof.DoFDistribution) (bnd []bool) {
	mg := rd.space.Grid()
	bnd = make([]bool, dd.NumDoFs())
	for i, v := range dd.Vertices() {
		bnd[i] = mg.Vertex(v).Boundary
	}
	return
}

// assemble builds the matrix of the elements, u is the linearization point of the cubic term and may be nil
func (rd *ReactionDiffusion) assemble(name string, els []*element, n int, bnd []bool, u *algebra.Vector) (
	A *algebra.Matrix, err error) {
	if u != nil && u.Len() != n {
		return nil, fmt.Errorf("linearization point of length %d for %d DoFs: %w", u.Len(), n,
			algebra.ErrDimensionMismatch)
	}
	b := algebra.NewMatrixBuilder(n, n)
	for _, el := range els {
		for a, i := range el.dofs {
			if bnd[i] {
				continue
			}
			for c, j := range el.dofs {
				if bnd[j] {
					continue
				}
				b.Add(i, j, el.stiff[a][c])
			}
			diag := rd.reaction
			if u != nil && rd.cubic != 0 {
				diag += 3 * rd.cubic * u.Data[i] * u.Data[i]
			}
			if diag != 0 {
				b.Add(i, i, diag*el.mass)
			}
		}
	}
	for i, isBnd := range bnd {
		if isBnd {
			b.Set(i, i, 1)
		}
	}
	A = b.Build(name)
	return
}

func (rd *ReactionDiffusion) levelElements(level int, dd *dof.DoFDistribution) ([]*element, error) {
	mg := rd.space.Grid()
	return rd.elements(mg.TopDim(), mg.ElementsOnLevel(mg.TopDim(), level), dd.Index)
}

// AssembleLevelOperator assembles the linear operator on all elements of a level
func (rd *ReactionDiffusion) AssembleLevelOperator(level int, dd *dof.DoFDistribution) (A *algebra.Matrix,
	err error) {
	return rd.AssembleLevelJacobian(nil, level, dd)
}

// AssembleLevelJacobian assembles the jacobian at the level vector u, a nil u gives the linear operator
func (rd *ReactionDiffusion) AssembleLevelJacobian(u *algebra.Vector, level int, dd *dof.DoFDistribution) (
	A *algebra.Matrix, err error) {
	els, err := rd.levelElements(level, dd)
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", level, err)
	}
	if A, err = rd.assemble(fmt.Sprintf("A%d", level), els, dd.NumDoFs(), rd.boundary(dd), u); err != nil {
		return nil, fmt.Errorf("level %d: %w", level, err)
	}
	rd.logger.Debug("level operator assembled", zap.Int("level", level), zap.Int("dofs", dd.NumDoFs()),
		zap.Int("nnz", A.NNZ()))
	return
}

func (rd *ReactionDiffusion) surfaceElements() ([]*element, *dof.DoFDistribution, error) {
	var (
		mg   = rd.space.Grid()
		dd   = rd.space.SurfaceDoFDistribution()
		view = rd.space.SurfaceView()
	)
	els, err := rd.elements(mg.TopDim(), view.Elements(mg.TopDim()), func(v int) (int, bool) {
		return dd.Index(mg.LeafVertex(v))
	})
	return els, dd, err
}

// AssembleSurfaceOperator assembles the linear operator on the surface elements
func (rd *ReactionDiffusion) AssembleSurfaceOperator() (A *algebra.Matrix, err error) {
	return rd.AssembleSurfaceJacobian(nil)
}

// AssembleSurfaceJacobian assembles the jacobian at the surface vector u
func (rd *ReactionDiffusion) AssembleSurfaceJacobian(u *algebra.Vector) (A *algebra.Matrix, err error) {
	els, dd, err := rd.surfaceElements()
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	return rd.assemble("A_surface", els, dd.NumDoFs(), rd.boundary(dd), u)
}

/*
AssembleSurfaceRHS assembles the lumped source. Boundary rows hold the boundary value, the coupling of interior rows to
boundary values is moved to the right hand side.
*/
func (rd *ReactionDiffusion) AssembleSurfaceRHS() (b *algebra.Vector, err error) {
	els, dd, err := rd.surfaceElements()
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	var (
		bnd = rd.boundary(dd)
		g   = rd.DirichletValues(dd)
	)
	b = rd.space.CreateSurfaceVector()
	for _, el := range els {
		for a, i := range el.dofs {
			if bnd[i] {
				continue
			}
			b.Data[i] += el.mass * rd.source(el.pos[a])
			for c, j := range el.dofs {
				if bnd[j] {
					b.Data[i] -= el.stiff[a][c] * g.Data[j]
				}
			}
		}
	}
	for i, isBnd := range bnd {
		if isBnd {
			b.Data[i] = g.Data[i]
		}
	}
	return
}

/*
SurfaceDefect computes d = b - F(u) for the nonlinear problem, zero on boundary rows when u holds the boundary values.
Used by the Newton iteration of the solve command.
*/
func (rd *ReactionDiffusion) SurfaceDefect(u *algebra.Vector) (d *algebra.Vector, err error) {
	if d, err = rd.AssembleSurfaceRHS(); err != nil {
		return
	}
	A, err := rd.AssembleSurfaceOperator()
	if err != nil {
		return nil, err
	}
	if err = A.ApplySub(d, u); err != nil {
		return nil, err
	}
	if rd.cubic == 0 {
		return
	}
	els, dd, err := rd.surfaceElements()
	if err != nil {
		return nil, err
	}
	bnd := rd.boundary(dd)
	for _, el := range els {
		for _, i := range el.dofs {
			if !bnd[i] {
				d.Data[i] -= rd.cubic * el.mass * u.Data[i] * u.Data[i] * u.Data[i]
			}
		}
	}
	return
}

// DirichletValues evaluates the boundary function at every DoF, interior entries are zero
func (rd *ReactionDiffusion) DirichletValues(dd *dof.DoFDistribution) (g *algebra.Vector) {
	mg := rd.space.Grid()
	g = algebra.NewVector(dd.NumDoFs())
	for i, v := range dd.Vertices() {
		if mg.Vertex(v).Boundary {
			g.Data[i] = rd.dirichlet(mg.Pos(v))
		}
	}
	return
}
